package primary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/config"
	"implied-rate-arbitrage/internal/core/model"
	"implied-rate-arbitrage/internal/metrics"
)

// FeedName 订单簿行情源名称
const FeedName = "book"

// BookFeed WebSocket 订单簿行情源
// 订阅可交易合约的最优买卖价；任何读取错误、解析错误或交易所错误消息都会让行情源停止，
// 由监督器负责重启。已收到的报价跨重启保留。
type BookFeed struct {
	cfg     *config.ExchangeConfig
	session AccountTokenSource
	tickers []string
	logger  *zap.Logger

	// conn 当前连接；connMu 串行化写入与替换
	conn   *websocket.Conn
	connMu sync.Mutex
	cancel context.CancelFunc

	book       atomic.Pointer[model.Book]
	lastUpdate atomic.Int64
	running    atomic.Bool
}

// NewBookFeed 创建订单簿行情源
// 参数 tickers: 订阅的合约代码
func NewBookFeed(cfg *config.ExchangeConfig, session AccountTokenSource, tickers []string, logger *zap.Logger) *BookFeed {
	f := &BookFeed{
		cfg:     cfg,
		session: session,
		tickers: append([]string(nil), tickers...),
		logger:  logger.Named("bookfeed"),
	}
	f.book.Store(model.EmptyBook())
	return f
}

// Name 行情源名称
func (f *BookFeed) Name() string { return FeedName }

// Start 连接、订阅并启动读取与心跳循环
func (f *BookFeed) Start(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.running.Load() {
		return nil
	}

	token, err := f.session.Token()
	if err != nil {
		return err
	}
	conn, err := f.dial(ctx, token)
	if errors.Is(err, ErrUnauthorized) {
		f.logger.Warn("行情 WebSocket 令牌被拒绝，重新认证后重连")
		if err := f.session.Refresh(ctx, token); err != nil {
			return fmt.Errorf("重新认证失败: %w", err)
		}
		if token, err = f.session.Token(); err != nil {
			return err
		}
		conn, err = f.dial(ctx, token)
	}
	if err != nil {
		return err
	}

	if err := f.subscribe(conn); err != nil {
		conn.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.conn = conn
	f.cancel = cancel
	f.running.Store(true)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout()))
	})

	go f.readLoop(runCtx, conn)
	go f.pingLoop(runCtx, conn)

	f.logger.Info("订单簿行情源已启动", zap.String("url", f.cfg.WSURL), zap.Int("tickers", len(f.tickers)))
	return nil
}

// dial 携带令牌建立 WebSocket 连接；握手返回 401 时包装 ErrUnauthorized
func (f *BookFeed) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("X-Auth-Token", token)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, f.cfg.WSURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("连接行情 WebSocket 失败: HTTP %d: %w", resp.StatusCode, ErrUnauthorized)
		}
		return nil, fmt.Errorf("连接行情 WebSocket 失败: %w", err)
	}
	return conn, nil
}

// subscribe 发送行情（及可选的订单回报）订阅
func (f *BookFeed) subscribe(conn *websocket.Conn) error {
	products := make([]InstrumentID, 0, len(f.tickers))
	for _, t := range f.tickers {
		products = append(products, InstrumentID{MarketID: f.cfg.MarketID, Symbol: t})
	}
	if err := conn.WriteJSON(MarketDataSubscription{
		Type:     "smd",
		Level:    1,
		Entries:  []string{EntryBids, EntryOffers},
		Products: products,
		Depth:    1,
	}); err != nil {
		return fmt.Errorf("发送行情订阅失败: %w", err)
	}

	if f.cfg.SubscribeOrderReports {
		if err := conn.WriteJSON(OrderReportSubscription{
			Type:               "os",
			Accounts:           []AccountRef{{AccountID: f.session.Account()}},
			SnapshotOnlyActive: true,
		}); err != nil {
			return fmt.Errorf("发送订单回报订阅失败: %w", err)
		}
	}
	return nil
}

// readLoop 读取循环：每条行情生成新快照并推进时间戳
func (f *BookFeed) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout())); err != nil {
			f.fail(conn, fmt.Errorf("设置读取超时失败: %w", err))
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.fail(conn, fmt.Errorf("读取行情消息失败: %w", err))
			return
		}

		ev, err := Parse(data)
		if err != nil {
			if errors.Is(err, ErrExchangeMessage) {
				f.fail(conn, err)
			} else {
				f.fail(conn, fmt.Errorf("%w (data=%s)", err, truncate(data, 200)))
			}
			return
		}

		switch ev.Type {
		case TypeMarketData:
			f.apply(ev.Quote)
		case TypeOrderReport:
			f.logger.Info("收到订单回报", zap.ByteString("report", ev.OrderReport))
		default:
			f.logger.Debug("忽略推送消息", zap.String("type", ev.Type))
		}
	}
}

// apply 写时复制更新快照，时间戳单调不减
func (f *BookFeed) apply(q *model.Quote) {
	f.book.Store(f.book.Load().Apply(q))
	for {
		prev := f.lastUpdate.Load()
		if q.ArrivedAtUnixNs <= prev {
			break
		}
		if f.lastUpdate.CompareAndSwap(prev, q.ArrivedAtUnixNs) {
			break
		}
	}
	metrics.FeedLastUpdate.WithLabelValues(FeedName).Set(float64(q.ArrivedAtUnixNs) / 1e9)
}

// pingLoop 心跳循环（gorilla/websocket 不允许并发写，connMu 串行化）
func (f *BookFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(f.cfg.PingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != conn {
				f.connMu.Unlock()
				return
			}
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			f.connMu.Unlock()
			if err != nil {
				f.fail(conn, fmt.Errorf("发送 ping 失败: %w", err))
				return
			}
		}
	}
}

// fail 当前连接出错：停止行情源（旧连接的迟到错误被忽略）
func (f *BookFeed) fail(conn *websocket.Conn, err error) {
	f.connMu.Lock()
	if f.conn != conn {
		f.connMu.Unlock()
		return
	}
	f.closeLocked()
	f.connMu.Unlock()
	f.logger.Warn("订单簿行情源已停止", zap.Error(err))
}

// Stop 关闭连接并停止；可重复调用
func (f *BookFeed) Stop() {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return
	}
	f.closeLocked()
	f.logger.Info("订单簿行情源已关闭")
}

func (f *BookFeed) closeLocked() {
	f.running.Store(false)
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}

// Running 是否在运行
func (f *BookFeed) Running() bool { return f.running.Load() }

// LastUpdate 最后一条行情到达时间（Unix 纳秒）
func (f *BookFeed) LastUpdate() int64 { return f.lastUpdate.Load() }

// Bids 最优买价（副本）
func (f *BookFeed) Bids() map[string]model.Level {
	return model.CopyLevels(f.book.Load().Bids)
}

// Asks 最优卖价（副本）
func (f *BookFeed) Asks() map[string]model.Level {
	return model.CopyLevels(f.book.Load().Asks)
}

func truncate(data []byte, n int) []byte {
	if len(data) > n {
		return data[:n]
	}
	return data
}
