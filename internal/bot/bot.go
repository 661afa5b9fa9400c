// Package bot 实现套利机器人的控制循环。
// 单个 goroutine 串行执行：检查行情源 -> 判断是否有新数据 -> 重算利率 -> 评估并交易；
// 无新数据时短暂休眠。
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/core/marketdata"
	"implied-rate-arbitrage/internal/core/model"
	"implied-rate-arbitrage/internal/metrics"
)

// State 机器人运行状态
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrAlreadyLaunched 重复启动
	ErrAlreadyLaunched = errors.New("机器人已启动")
	// ErrStopped 已停止的机器人不能再次启动
	ErrStopped = errors.New("机器人已停止")
)

// FeedSupervisor 行情源重启监督
type FeedSupervisor interface {
	Check(ctx context.Context) error
}

// Freshness 数据更新闸门
type Freshness interface {
	ShouldUpdate() bool
	MarkProcessed()
}

// RateEngine 利率引擎
type RateEngine interface {
	UpdateRates(spotPrices map[string]float64, bids, asks map[string]model.Level)
	Ready() bool
	Snapshot() model.RateSnapshot
}

// Trader 套利交易
type Trader interface {
	EvaluateAndTradeEachMaturity(ctx context.Context) error
}

// RatesPublisher 利率快照发布
type RatesPublisher interface {
	PublishRates(ctx context.Context, snap model.RateSnapshot) error
}

// Deps 控制循环依赖
type Deps struct {
	Book       marketdata.BookSource
	Spot       marketdata.SpotSource
	Supervisor FeedSupervisor
	Freshness  Freshness
	Engine     RateEngine
	Trader     Trader
	// Publisher 可选
	Publisher RatesPublisher
	// Session 可选，Stop 时关闭
	Session io.Closer
}

// Options 控制循环参数
type Options struct {
	// IdleSleep 无新数据时的休眠间隔
	IdleSleep time.Duration
	// HaltOnCycleError 单轮出错时是否终止循环
	HaltOnCycleError bool
}

// Bot 套利机器人
type Bot struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	state atomic.Int32

	mu       sync.Mutex
	launched bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}

	teardownOnce sync.Once
}

// New 创建机器人
func New(deps Deps, opts Options, logger *zap.Logger) *Bot {
	if opts.IdleSleep <= 0 {
		opts.IdleSleep = 5 * time.Millisecond
	}
	return &Bot{
		deps:   deps,
		opts:   opts,
		logger: logger.Named("bot"),
	}
}

// State 当前状态
func (b *Bot) State() State { return State(b.state.Load()) }

func (b *Bot) setState(s State) {
	prev := State(b.state.Swap(int32(s)))
	if prev != s {
		b.logger.Debug("状态变化", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Rates 当前利率快照
func (b *Bot) Rates() model.RateSnapshot { return b.deps.Engine.Snapshot() }

// Launch 启动行情源并阻塞运行控制循环，直到 ctx 取消、Stop 或致命错误
// 返回: 正常停止返回 nil；启动失败、行情源重启次数超限或（配置要求时）单轮出错返回错误
func (b *Bot) Launch(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrStopped
	}
	if b.launched {
		b.mu.Unlock()
		return ErrAlreadyLaunched
	}
	b.launched = true
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	defer func() {
		cancel()
		b.teardown()
		b.setState(StateStopped)
		close(done)
	}()

	b.setState(StateStarting)
	if err := b.startFeeds(runCtx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	b.setState(StateRunning)
	b.logger.Info("控制循环已启动")

	err := b.loop(runCtx)
	if err != nil {
		b.logger.Error("控制循环终止", zap.Error(err))
	} else {
		b.logger.Info("控制循环已退出")
	}
	return err
}

func (b *Bot) startFeeds(ctx context.Context) error {
	if err := b.deps.Book.Start(ctx); err != nil {
		return fmt.Errorf("订单簿行情源: %w", err)
	}
	if err := b.deps.Spot.Start(ctx); err != nil {
		return fmt.Errorf("现货行情源: %w", err)
	}
	return nil
}

func (b *Bot) loop(ctx context.Context) error {
	// 进行中的一轮不随 Stop 中断，订单请求由 HTTP 超时兜底
	cycleCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := b.deps.Supervisor.Check(ctx); err != nil {
			b.setState(StateError)
			return err
		}

		worked, err := b.cycle(cycleCtx)
		if err != nil {
			metrics.CycleErrors.Inc()
			b.setState(StateError)
			b.logger.Error("本轮出错", zap.Error(err))
			if b.opts.HaltOnCycleError {
				return fmt.Errorf("控制循环出错: %w", err)
			}
			b.setState(StateRunning)
		}
		if worked {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.opts.IdleSleep):
		}
	}
}

// cycle 有新数据时重算利率并评估交易
// 返回: 是否处理了新数据
func (b *Bot) cycle(ctx context.Context) (bool, error) {
	if !b.deps.Freshness.ShouldUpdate() {
		return false, nil
	}
	b.deps.Freshness.MarkProcessed()
	b.deps.Engine.UpdateRates(b.deps.Spot.LastPrices(), b.deps.Book.Bids(), b.deps.Book.Asks())

	if b.deps.Publisher != nil {
		if err := b.deps.Publisher.PublishRates(ctx, b.deps.Engine.Snapshot()); err != nil {
			b.logger.Warn("发布利率快照失败", zap.Error(err))
		}
	}

	if !b.deps.Engine.Ready() {
		return true, nil
	}
	return true, b.deps.Trader.EvaluateAndTradeEachMaturity(ctx)
}

// Stop 停止控制循环，等待进行中的一轮结束，关闭行情源与会话；可重复调用
func (b *Bot) Stop() {
	b.mu.Lock()
	b.stopped = true
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		return
	}
	b.teardown()
	b.setState(StateStopped)
}

func (b *Bot) teardown() {
	b.teardownOnce.Do(func() {
		b.deps.Book.Stop()
		b.deps.Spot.Stop()
		if b.deps.Session != nil {
			if err := b.deps.Session.Close(); err != nil {
				b.logger.Warn("关闭会话失败", zap.Error(err))
			}
		}
		b.logger.Info("机器人已停止")
	})
}
