// Package trader 实现按到期分组的套利决策与下单。
// 比较分组内最高 taker 利率与最低 offered 利率，利差超过交易成本时
// 根据盘口流动性、合约乘数与标的现价计算匹配手数，并提交一买一卖两笔 IOC 限价单。
package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/core/model"
	"implied-rate-arbitrage/internal/metrics"
)

// RateSource 利率引擎的只读视图
type RateSource interface {
	MaxTakerRate(tag string) (string, float64, error)
	MinOfferedRate(tag string) (string, float64, error)
	MaturityReadyToTrade(tag string) bool
}

// Instruments 合约目录的只读视图
type Instruments interface {
	InstrumentByTicker(ticker string) (*model.Future, bool)
	TradeableMaturityTags() []string
}

// Quotes 订单簿快照读取
type Quotes interface {
	Bids() map[string]model.Level
	Asks() map[string]model.Level
}

// Prices 标的现价读取
type Prices interface {
	Price(underlier string) (float64, bool)
}

// Freshness 提交前复核是否出现新行情
type Freshness interface {
	ShouldUpdate() bool
}

// OrderGateway 下单能力
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderHandle, error)
	OrderStatus(ctx context.Context, h model.OrderHandle) (model.OrderStatus, error)
}

// Reporter 成交报告输出
type Reporter interface {
	Report(r *model.TradeReport) error
}

// Deps 交易器依赖
type Deps struct {
	Instruments Instruments
	Rates       RateSource
	Quotes      Quotes
	Prices      Prices
	Freshness   Freshness
	Gateway     OrderGateway
	// Reporters 可为空
	Reporters []Reporter
}

// Trader 套利交易器
type Trader struct {
	deps      Deps
	threshold float64
	logger    *zap.Logger
	now       func() time.Time
}

// New 创建交易器
// 参数 threshold: 交易成本（利差阈值）
func New(deps Deps, threshold float64, logger *zap.Logger) *Trader {
	return &Trader{
		deps:      deps,
		threshold: threshold,
		logger:    logger.Named("trader"),
		now:       time.Now,
	}
}

// EvaluateAndTradeEachMaturity 对每个可交易到期分组评估并交易
// 发现行情已更新时提前结束本轮（下一轮会基于新数据重算）。
func (t *Trader) EvaluateAndTradeEachMaturity(ctx context.Context) error {
	var errs []error
	for _, tag := range t.deps.Instruments.TradeableMaturityTags() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !t.deps.Rates.MaturityReadyToTrade(tag) {
			continue
		}
		_, err := t.Evaluate(ctx, tag)
		if errors.Is(err, model.ErrStaleData) {
			t.logger.Info("行情已更新，跳过本轮剩余分组", zap.String("tag", tag))
			break
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Evaluate 评估单个到期分组
// 返回: 提交了订单时返回成交报告；无机会时返回 (nil, nil)
func (t *Trader) Evaluate(ctx context.Context, tag string) (*model.TradeReport, error) {
	sellTicker, maxTaker, err := t.deps.Rates.MaxTakerRate(tag)
	if err != nil {
		return nil, err
	}
	buyTicker, minOffered, err := t.deps.Rates.MinOfferedRate(tag)
	if err != nil {
		return nil, err
	}
	metrics.BestSpread.WithLabelValues(tag).Set(maxTaker - minOffered)

	if !Profitable(maxTaker, minOffered, t.threshold) {
		metrics.TradeDecisions.WithLabelValues(tag, "no_edge").Inc()
		return nil, nil
	}

	asks := t.deps.Quotes.Asks()
	bids := t.deps.Quotes.Bids()
	futureToBuy, ok := t.deps.Instruments.InstrumentByTicker(buyTicker)
	if !ok {
		return nil, t.fail(tag, fmt.Errorf("未知合约 %s", buyTicker))
	}
	futureToSell, ok := t.deps.Instruments.InstrumentByTicker(sellTicker)
	if !ok {
		return nil, t.fail(tag, fmt.Errorf("未知合约 %s", sellTicker))
	}
	ask, ok := asks[buyTicker]
	if !ok {
		return nil, t.fail(tag, fmt.Errorf("%s 无卖盘", buyTicker))
	}
	bid, ok := bids[sellTicker]
	if !ok {
		return nil, t.fail(tag, fmt.Errorf("%s 无买盘", sellTicker))
	}

	underlierToBuy := futureToSell.Underlier
	underlierToSell := futureToBuy.Underlier
	buyPxUnderlier, ok := t.deps.Prices.Price(underlierToBuy)
	if !ok {
		return nil, t.fail(tag, fmt.Errorf("%s 无现价", underlierToBuy))
	}
	sellPxUnderlier, ok := t.deps.Prices.Price(underlierToSell)
	if !ok {
		return nil, t.fail(tag, fmt.Errorf("%s 无现价", underlierToSell))
	}

	notional, buySize, sellSize := Size(SizingInput{
		AskSize:            ask.Size,
		BidSize:            bid.Size,
		BuyContractSize:    futureToBuy.ContractSize,
		SellContractSize:   futureToSell.ContractSize,
		BuyUnderlierPrice:  buyPxUnderlier,
		SellUnderlierPrice: sellPxUnderlier,
	})
	if buySize*sellSize == 0 {
		metrics.TradeDecisions.WithLabelValues(tag, "zero_size").Inc()
		t.logger.Info("手数取整为零，跳过",
			zap.String("tag", tag), zap.String("buy", buyTicker), zap.String("sell", sellTicker),
			zap.Int64("buy_size", buySize), zap.Int64("sell_size", sellSize))
		return nil, nil
	}

	// 提交前复核：利率计算之后出现新行情则放弃本次机会
	if t.deps.Freshness.ShouldUpdate() {
		metrics.TradeDecisions.WithLabelValues(tag, "stale").Inc()
		return nil, fmt.Errorf("%s: %w", tag, model.ErrStaleData)
	}

	report := &model.TradeReport{
		ID:          uuid.NewString(),
		MaturityTag: tag,
		Buy: model.TradeLeg{
			Ticker: buyTicker, Side: model.SideBuy, Size: buySize, Price: ask.Price,
			Rate: minOffered, Underlier: underlierToSell,
		},
		Sell: model.TradeLeg{
			Ticker: sellTicker, Side: model.SideSell, Size: sellSize, Price: bid.Price,
			Rate: maxTaker, Underlier: underlierToBuy,
		},
		Notional:    notional,
		RateSpread:  maxTaker - minOffered,
		SubmittedAt: t.now(),
	}

	if err := t.submit(ctx, &report.Buy); err != nil {
		t.emit(report)
		return report, t.fail(tag, fmt.Errorf("买入 %s 下单失败: %w", buyTicker, err))
	}
	if err := t.submit(ctx, &report.Sell); err != nil {
		// 买入腿已提交，卖出腿失败：不做回滚，仅报告
		t.emit(report)
		return report, t.fail(tag, fmt.Errorf("卖出 %s 下单失败（买入腿已提交）: %w", sellTicker, err))
	}

	t.queryStatus(ctx, &report.Buy)
	t.queryStatus(ctx, &report.Sell)

	metrics.TradeDecisions.WithLabelValues(tag, "submitted").Inc()
	t.logger.Info("已提交套利订单",
		zap.String("id", report.ID),
		zap.String("tag", tag),
		zap.String("buy", buyTicker), zap.Int64("buy_size", buySize), zap.Float64("buy_px", ask.Price),
		zap.Float64("offered_rate", minOffered), zap.String("buy_status", string(report.Buy.Status)),
		zap.String("sell", sellTicker), zap.Int64("sell_size", sellSize), zap.Float64("sell_px", bid.Price),
		zap.Float64("taker_rate", maxTaker), zap.String("sell_status", string(report.Sell.Status)),
		zap.Float64("spread", report.RateSpread),
	)
	t.emit(report)
	return report, nil
}

func (t *Trader) submit(ctx context.Context, leg *model.TradeLeg) error {
	h, err := t.deps.Gateway.PlaceOrder(ctx, model.OrderRequest{
		Ticker:      leg.Ticker,
		Side:        leg.Side,
		Size:        leg.Size,
		Price:       leg.Price,
		TimeInForce: model.TimeInForceIOC,
		Type:        model.OrderTypeLimit,
	})
	if err != nil {
		metrics.OrdersPlaced.WithLabelValues(string(leg.Side), "error").Inc()
		leg.Error = err.Error()
		return err
	}
	metrics.OrdersPlaced.WithLabelValues(string(leg.Side), "ok").Inc()
	leg.Handle = h
	return nil
}

// queryStatus 查询订单执行状态，失败只记录日志
func (t *Trader) queryStatus(ctx context.Context, leg *model.TradeLeg) {
	status, err := t.deps.Gateway.OrderStatus(ctx, leg.Handle)
	if err != nil {
		t.logger.Warn("查询订单状态失败", zap.String("ticker", leg.Ticker), zap.String("client_id", leg.Handle.ClientID), zap.Error(err))
		leg.Status = model.OrderStatusUnknown
		return
	}
	leg.Status = status
}

func (t *Trader) emit(r *model.TradeReport) {
	for _, rep := range t.deps.Reporters {
		if err := rep.Report(r); err != nil {
			t.logger.Warn("输出成交报告失败", zap.String("id", r.ID), zap.Error(err))
		}
	}
}

func (t *Trader) fail(tag string, err error) error {
	metrics.TradeDecisions.WithLabelValues(tag, "error").Inc()
	return fmt.Errorf("分组 %s: %w", tag, err)
}
