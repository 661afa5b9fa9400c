// Package primary 定义交易所 REST 与 WebSocket 消息类型。
package primary

import "encoding/json"

// 行情条目类型
const (
	// EntryBids 买盘
	EntryBids = "BI"
	// EntryOffers 卖盘
	EntryOffers = "OF"
)

// 推送消息类型
const (
	// TypeMarketData 行情推送
	TypeMarketData = "Md"
	// TypeOrderReport 订单回报推送
	TypeOrderReport = "or"
)

// InstrumentID 合约标识
type InstrumentID struct {
	// MarketID 市场标识，如 ROFX
	MarketID string `json:"marketId"`
	// Symbol 合约代码，如 GGALFeb21
	Symbol string `json:"symbol"`
}

// MarketDataSubscription 行情订阅请求
type MarketDataSubscription struct {
	// Type 固定为 smd
	Type string `json:"type"`
	// Level 行情级别
	Level int `json:"level"`
	// Entries 订阅条目: BI, OF
	Entries []string `json:"entries"`
	// Products 订阅合约
	Products []InstrumentID `json:"products"`
	// Depth 深度
	Depth int `json:"depth"`
}

// OrderReportSubscription 订单回报订阅请求
type OrderReportSubscription struct {
	// Type 固定为 os
	Type string `json:"type"`
	// Accounts 账户列表
	Accounts []AccountRef `json:"accounts"`
	// SnapshotOnlyActive 仅推送活动订单快照
	SnapshotOnlyActive bool `json:"snapshotOnlyActive"`
}

// AccountRef 账户引用
type AccountRef struct {
	AccountID string `json:"accountId"`
}

// MDEntry 单档行情
type MDEntry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// StreamMessage WebSocket 推送消息
// 行情、订单回报与错误消息共用一个外层结构，按 type/status 区分。
type StreamMessage struct {
	// Type 消息类型: Md, or
	Type string `json:"type"`
	// Status 错误消息时为 ERROR
	Status string `json:"status,omitempty"`
	// Description 错误描述
	Description string `json:"description,omitempty"`
	// InstrumentID 行情所属合约
	InstrumentID *InstrumentID `json:"instrumentId,omitempty"`
	// MarketData 条目类型 -> 档位列表
	MarketData map[string][]MDEntry `json:"marketData,omitempty"`
	// OrderReport 订单回报原文
	OrderReport json.RawMessage `json:"orderReport,omitempty"`
}

// InstrumentDetail 合约详情
type InstrumentDetail struct {
	InstrumentID InstrumentID `json:"instrumentId"`
	// MaturityDate 到期日，格式 20060102
	MaturityDate string `json:"maturityDate"`
	// ContractMultiplier 合约乘数
	ContractMultiplier float64 `json:"contractMultiplier"`
	// Underlying 交易所给出的标的（仅用于日志）
	Underlying string `json:"underlying,omitempty"`
}

// InstrumentsResponse /rest/instruments/details 响应
type InstrumentsResponse struct {
	Status      string             `json:"status"`
	Description string             `json:"description,omitempty"`
	Instruments []InstrumentDetail `json:"instruments"`
}

// OrderAck 下单回执
type OrderAck struct {
	ClientID    string `json:"clientId"`
	Proprietary string `json:"proprietary"`
}

// NewOrderResponse /rest/order/newSingleOrder 响应
type NewOrderResponse struct {
	Status      string   `json:"status"`
	Description string   `json:"description,omitempty"`
	Message     string   `json:"message,omitempty"`
	Order       OrderAck `json:"order"`
}

// OrderState 订单状态详情
type OrderState struct {
	ClientID    string  `json:"clOrdId"`
	Proprietary string  `json:"proprietary"`
	Status      string  `json:"status"`
	Text        string  `json:"text,omitempty"`
	CumQty      float64 `json:"cumQty"`
	LeavesQty   float64 `json:"leavesQty"`
}

// OrderStatusResponse /rest/order/id 响应
type OrderStatusResponse struct {
	Status      string     `json:"status"`
	Description string     `json:"description,omitempty"`
	Order       OrderState `json:"order"`
}
