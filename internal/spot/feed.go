// Package spot 实现标的现价轮询行情源。
// 按固定间隔从 chart 接口拉取每个标的的最新成交价，只有价格实际变动时才推进时间戳。
package spot

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"implied-rate-arbitrage/internal/config"
	"implied-rate-arbitrage/internal/core/model"
	"implied-rate-arbitrage/internal/metrics"
	"implied-rate-arbitrage/internal/util/timeutil"
)

// FeedName 现货行情源名称
const FeedName = "spot"

// PriceEpsilon 价格变动阈值，不超过该值视为未变
const PriceEpsilon = 1e-4

// chartResponse chart 接口响应（只取需要的字段）
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Feed 现货轮询行情源
type Feed struct {
	cfg        *config.SpotConfig
	symbols    map[string]string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() int64

	prices     atomic.Pointer[map[string]float64]
	lastUpdate atomic.Int64
	running    atomic.Bool

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed 创建现货行情源
// 参数 symbols: 标的根代码 -> 行情源代码
func NewFeed(cfg *config.SpotConfig, symbols map[string]string, logger *zap.Logger) *Feed {
	f := &Feed{
		cfg:        cfg,
		symbols:    symbols,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     logger.Named("spot"),
		now:        timeutil.NowNano,
	}
	empty := map[string]float64{}
	f.prices.Store(&empty)
	return f
}

// Name 行情源名称
func (f *Feed) Name() string { return FeedName }

// Start 同步拉取一次现价，成功后启动轮询
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running.Load() {
		return nil
	}

	if err := f.poll(ctx); err != nil {
		return fmt.Errorf("现货行情源启动失败: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.gen++
	f.cancel = cancel
	f.done = make(chan struct{})
	f.running.Store(true)

	go f.loop(runCtx, f.gen, f.done)

	f.logger.Info("现货行情源已启动", zap.Int("symbols", len(f.symbols)), zap.Duration("interval", f.cfg.PollInterval()))
	return nil
}

func (f *Feed) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.poll(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				f.fail(gen, err)
				return
			}
		}
	}
}

// poll 并发拉取全部标的；任一价格变动超过阈值才替换快照并推进时间戳
func (f *Feed) poll(ctx context.Context) error {
	var mu sync.Mutex
	fetched := make(map[string]float64, len(f.symbols))
	g, gctx := errgroup.WithContext(ctx)
	for root, sym := range f.symbols {
		root, sym := root, sym
		g.Go(func() error {
			px, err := f.fetch(gctx, sym)
			if err != nil {
				return fmt.Errorf("%s (%s): %w", root, sym, err)
			}
			mu.Lock()
			fetched[root] = px
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	current := *f.prices.Load()
	if !changed(current, fetched) {
		return nil
	}

	f.prices.Store(&fetched)
	ts := f.now()
	for {
		prev := f.lastUpdate.Load()
		if ts <= prev || f.lastUpdate.CompareAndSwap(prev, ts) {
			break
		}
	}
	metrics.FeedLastUpdate.WithLabelValues(FeedName).Set(float64(ts) / 1e9)
	f.logger.Debug("现价已更新", zap.Any("prices", fetched))
	return nil
}

// fetch 拉取单个代码的最新成交价
func (f *Feed) fetch(ctx context.Context, symbol string) (float64, error) {
	u := strings.TrimRight(f.cfg.URL, "/") + "/" + url.PathEscape(symbol) + "?interval=1d&range=1d"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "implied-rate-arbitrage/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("解析响应失败: %w", err)
	}
	if body.Chart.Error != nil {
		return 0, fmt.Errorf("接口错误 %s: %s", body.Chart.Error.Code, body.Chart.Error.Description)
	}
	if len(body.Chart.Result) == 0 || body.Chart.Result[0].Meta.RegularMarketPrice == nil {
		return 0, fmt.Errorf("响应缺少 regularMarketPrice")
	}
	px := *body.Chart.Result[0].Meta.RegularMarketPrice
	if px <= 0 || math.IsNaN(px) || math.IsInf(px, 0) {
		return 0, fmt.Errorf("无效价格 %v", px)
	}
	return px, nil
}

// changed 是否有标的新增或价格变动超过阈值
func changed(old, next map[string]float64) bool {
	for k, v := range next {
		prev, ok := old[k]
		if !ok || math.Abs(prev-v) > PriceEpsilon {
			return true
		}
	}
	return false
}

// fail 轮询出错：当前代次的行情源停止
func (f *Feed) fail(gen uint64, err error) {
	f.mu.Lock()
	if f.gen != gen || !f.running.Load() {
		f.mu.Unlock()
		return
	}
	f.running.Store(false)
	f.cancel()
	f.mu.Unlock()
	f.logger.Warn("现货行情源已停止", zap.Error(err))
}

// Stop 停止轮询并等待进行中的请求返回；可重复调用
func (f *Feed) Stop() {
	f.mu.Lock()
	if f.cancel == nil {
		f.mu.Unlock()
		return
	}
	f.running.Store(false)
	f.cancel()
	f.cancel = nil
	done := f.done
	f.mu.Unlock()

	<-done
	f.logger.Info("现货行情源已关闭")
}

// Running 是否在运行
func (f *Feed) Running() bool { return f.running.Load() }

// LastUpdate 最后一次价格变动时间（Unix 纳秒）
func (f *Feed) LastUpdate() int64 { return f.lastUpdate.Load() }

// LastPrices 标的 -> 现价（副本）
func (f *Feed) LastPrices() map[string]float64 {
	return model.CopyPrices(*f.prices.Load())
}

// Price 单个标的现价
func (f *Feed) Price(underlier string) (float64, bool) {
	px, ok := (*f.prices.Load())[underlier]
	return px, ok
}
