// Package jsonl 实现成交报告的异步 JSONL 落盘。
// 交易路径只负责投递，JSON 编码与文件 I/O 在后台 goroutine 完成；缓冲区满时丢弃并计数，不阻塞下单。
package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/core/model"
)

// FileName 成交报告文件名
const FileName = "trades.jsonl"

var (
	// ErrClosed 写入器已关闭
	ErrClosed = errors.New("成交日志已关闭")
	// ErrBufferFull 缓冲区已满，记录被丢弃
	ErrBufferFull = errors.New("成交日志缓冲区已满")
)

type opType int

const (
	opWrite opType = iota
	opFlush
	opClose
)

type op struct {
	typ    opType
	report *model.TradeReport
	done   chan error
}

// TradeLog 异步成交报告日志
type TradeLog struct {
	path   string
	ch     chan op
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
	sendMu    sync.Mutex
	wg        sync.WaitGroup

	written atomic.Int64
	dropped atomic.Int64
}

// NewTradeLog 在 dir 下创建（或追加）成交报告文件
// 参数 bufferSize: 投递缓冲区大小
func NewTradeLog(dir string, bufferSize int, logger *zap.Logger) (*TradeLog, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	l := &TradeLog{
		path:   path,
		ch:     make(chan op, bufferSize),
		logger: logger.Named("tradelog"),
	}
	l.wg.Add(1)
	go l.loop(f)
	return l, nil
}

// Path 输出文件路径
func (l *TradeLog) Path() string { return l.path }

// Report 投递一条成交报告（非阻塞）
func (l *TradeLog) Report(r *model.TradeReport) error {
	if l.closed.Load() {
		return ErrClosed
	}
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	if l.closed.Load() {
		return ErrClosed
	}
	select {
	case l.ch <- op{typ: opWrite, report: r}:
		return nil
	default:
		l.dropped.Add(1)
		return ErrBufferFull
	}
}

// Flush 等待已投递的记录写入文件
func (l *TradeLog) Flush() error {
	if l.closed.Load() {
		return nil
	}
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	if l.closed.Load() {
		return nil
	}
	done := make(chan error, 1)
	l.ch <- op{typ: opFlush, done: done}
	return <-done
}

// Close flush 后关闭文件；可重复调用
func (l *TradeLog) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.sendMu.Lock()
		defer l.sendMu.Unlock()
		done := make(chan error, 1)
		l.ch <- op{typ: opClose, done: done}
		l.closeErr = <-done
		close(l.ch)
	})
	l.wg.Wait()
	return l.closeErr
}

// Stats 已写入与丢弃的记录数
func (l *TradeLog) Stats() (written, dropped int64) {
	return l.written.Load(), l.dropped.Load()
}

func (l *TradeLog) loop(f *os.File) {
	defer l.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, 64<<10)
	enc := json.NewEncoder(bw)

	for req := range l.ch {
		switch req.typ {
		case opWrite:
			// Encoder 自带换行
			if err := enc.Encode(req.report); err != nil {
				l.logger.Warn("写入成交报告失败", zap.String("id", req.report.ID), zap.Error(err))
				continue
			}
			l.written.Add(1)
		case opFlush:
			req.done <- bw.Flush()
		case opClose:
			req.done <- bw.Flush()
			return
		}
	}
}
