// Package rates 实现隐含利率引擎。
// 对每个同时具有报价与标的现价的可交易合约计算年化隐含利率，
// 并按到期分组回答"最高 taker 利率"与"最低 offered 利率"。
package rates

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/core/model"
	"implied-rate-arbitrage/internal/metrics"
)

// DaysInYear Actual/365 计息基准
const DaysInYear = 365

// ImplicitRate 计算年化隐含利率（Actual/365，按日复利）
// 公式: ((quoted/spot)^(1/days) - 1) × 365
// 参数 quoted: 期货报价
// 参数 spot: 标的现价
// 参数 days: 距到期自然日（必须为正）
func ImplicitRate(quoted, spot float64, days int) float64 {
	return (math.Pow(quoted/spot, 1/float64(days)) - 1) * DaysInYear
}

// TagResolver 合约代码 -> 到期分组
type TagResolver interface {
	MaturityTagOf(ticker string) (string, bool)
}

// Option 引擎选项
type Option func(*Engine)

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine 隐含利率引擎
// 利率表每轮整体重建并原子替换，读方拿到的总是同一轮的完整快照。
type Engine struct {
	futuresByUnderlier map[string][]*model.Future
	tags               TagResolver
	logger             *zap.Logger
	now                func() time.Time

	snapshot atomic.Pointer[model.RateSnapshot]
}

// NewEngine 创建利率引擎
// 参数 futuresByUnderlier: 标的 -> 可交易合约（共享只读引用）
// 参数 tags: 到期分组解析
func NewEngine(futuresByUnderlier map[string][]*model.Future, tags TagResolver, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		futuresByUnderlier: futuresByUnderlier,
		tags:               tags,
		logger:             logger.Named("rates"),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.snapshot.Store(&model.RateSnapshot{
		Taker:   model.RateTable{},
		Offered: model.RateTable{},
	})
	return e
}

// UpdateRates 基于一次行情快照重建 taker/offered 利率表
// 参数 spotPrices: 标的 -> 现价
// 参数 bids / asks: 合约代码 -> 最优档位
// 缺少某一侧报价的合约本轮不出现在该侧表中；到期合约被跳过。
func (e *Engine) UpdateRates(spotPrices map[string]float64, bids, asks map[string]model.Level) {
	start := time.Now()
	now := e.now()
	taker := model.RateTable{}
	offered := model.RateTable{}

	for underlier, spot := range spotPrices {
		if spot <= 0 {
			continue
		}
		for _, future := range e.futuresByUnderlier[underlier] {
			tag, ok := e.tags.MaturityTagOf(future.Ticker)
			if !ok {
				continue
			}
			days, err := future.DaysToMaturity(now)
			if err != nil {
				if errors.Is(err, model.ErrExpiredInstrument) {
					metrics.ExpiredInstruments.WithLabelValues(future.Ticker).Inc()
					e.logger.Debug("跳过到期合约", zap.String("ticker", future.Ticker), zap.Error(err))
				}
				continue
			}
			if bid, ok := bids[future.Ticker]; ok && bid.Price > 0 {
				taker.Set(tag, future.Ticker, ImplicitRate(bid.Price, spot, days))
			}
			if ask, ok := asks[future.Ticker]; ok && ask.Price > 0 {
				offered.Set(tag, future.Ticker, ImplicitRate(ask.Price, spot, days))
			}
		}
	}

	e.snapshot.Store(&model.RateSnapshot{Taker: taker, Offered: offered, ComputedAt: now})
	metrics.RateUpdates.Inc()
	metrics.RateUpdateDuration.Observe(time.Since(start).Seconds())
}

// MaxTakerRate 到期分组内最高 taker 利率（应卖出的合约）
func (e *Engine) MaxTakerRate(tag string) (string, float64, error) {
	return pick(e.snapshot.Load().Taker[tag], tag, func(a, b float64) bool { return a > b })
}

// MinOfferedRate 到期分组内最低 offered 利率（应买入的合约）
func (e *Engine) MinOfferedRate(tag string) (string, float64, error) {
	return pick(e.snapshot.Load().Offered[tag], tag, func(a, b float64) bool { return a < b })
}

// pick 按 better 选出最优项；利率相同时取字典序较小的代码
func pick(byTicker map[string]float64, tag string, better func(a, b float64) bool) (string, float64, error) {
	if len(byTicker) == 0 {
		return "", 0, fmt.Errorf("%s: %w", tag, model.ErrNoRates)
	}
	bestTicker := ""
	bestRate := 0.0
	for ticker, rate := range byTicker {
		if bestTicker == "" || better(rate, bestRate) || (rate == bestRate && ticker < bestTicker) {
			bestTicker, bestRate = ticker, rate
		}
	}
	return bestTicker, bestRate, nil
}

// MaturityReadyToTrade 两张表在该分组都至少有一条利率
func (e *Engine) MaturityReadyToTrade(tag string) bool {
	s := e.snapshot.Load()
	return len(s.Taker[tag]) > 0 && len(s.Offered[tag]) > 0
}

// Ready 两张表都非空
func (e *Engine) Ready() bool {
	s := e.snapshot.Load()
	return len(s.Taker) > 0 && len(s.Offered) > 0
}

// TakerRates taker 利率表（深拷贝）
func (e *Engine) TakerRates() model.RateTable {
	return e.snapshot.Load().Taker.Clone()
}

// OfferedRates offered 利率表（深拷贝）
func (e *Engine) OfferedRates() model.RateTable {
	return e.snapshot.Load().Offered.Clone()
}

// Snapshot 当前完整快照（深拷贝）
func (e *Engine) Snapshot() model.RateSnapshot {
	s := e.snapshot.Load()
	return model.RateSnapshot{
		Taker:      s.Taker.Clone(),
		Offered:    s.Offered.Clone(),
		ComputedAt: s.ComputedAt,
	}
}
