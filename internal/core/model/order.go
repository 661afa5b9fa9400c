package model

import "time"

// Side 订单方向
type Side string

const (
	// SideBuy 买入（吃卖一）
	SideBuy Side = "BUY"
	// SideSell 卖出（打买一）
	SideSell Side = "SELL"
)

// TimeInForce 订单有效期
type TimeInForce string

const (
	// TimeInForceIOC 立即成交否则撤销
	TimeInForceIOC TimeInForce = "IOC"
	// TimeInForceDay 当日有效
	TimeInForceDay TimeInForce = "DAY"
)

// OrderType 订单类型
type OrderType string

const (
	// OrderTypeLimit 限价单
	OrderTypeLimit OrderType = "LIMIT"
	// OrderTypeMarket 市价单
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus 订单状态（交易所原样返回，常见值见下方常量）
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusPendingNew      OrderStatus = "PENDING_NEW"
	OrderStatusUnknown         OrderStatus = "UNKNOWN"
)

// OrderRequest 下单请求
type OrderRequest struct {
	Ticker      string
	Side        Side
	Size        int64
	Price       float64
	TimeInForce TimeInForce
	Type        OrderType
}

// OrderHandle 下单回执，用于查询订单状态
type OrderHandle struct {
	// ClientID 交易所分配的客户端订单号
	ClientID string `json:"client_id"`
	// Proprietary 交易所自营标识
	Proprietary string `json:"proprietary,omitempty"`
}

// TradeLeg 成交报告中的单腿信息
type TradeLeg struct {
	Ticker    string      `json:"ticker"`
	Side      Side        `json:"side"`
	Size      int64       `json:"size"`
	Price     float64     `json:"price"`
	Rate      float64     `json:"rate"`
	Underlier string      `json:"underlier"`
	Handle    OrderHandle `json:"handle"`
	Status    OrderStatus `json:"status,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// TradeReport 一次套利交易的结构化报告
type TradeReport struct {
	// ID 报告唯一标识
	ID string `json:"id"`
	// MaturityTag 到期分组
	MaturityTag string `json:"maturity_tag"`
	// Buy 买入腿（低利率，offered）
	Buy TradeLeg `json:"buy"`
	// Sell 卖出腿（高利率，taker）
	Sell TradeLeg `json:"sell"`
	// Notional 名义金额上限（统一货币单位）
	Notional float64 `json:"notional"`
	// RateSpread 实现的利差: taker - offered
	RateSpread float64 `json:"rate_spread"`
	// SubmittedAt 提交时间
	SubmittedAt time.Time `json:"submitted_at"`
}
