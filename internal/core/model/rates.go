package model

import "time"

// RateTable 到期分组 -> 合约代码 -> 隐含年化利率
type RateTable map[string]map[string]float64

// Clone 深拷贝
func (t RateTable) Clone() RateTable {
	out := make(RateTable, len(t))
	for tag, byTicker := range t {
		inner := make(map[string]float64, len(byTicker))
		for ticker, rate := range byTicker {
			inner[ticker] = rate
		}
		out[tag] = inner
	}
	return out
}

// Set 写入一条利率，按需创建分组
func (t RateTable) Set(tag, ticker string, rate float64) {
	inner, ok := t[tag]
	if !ok {
		inner = make(map[string]float64)
		t[tag] = inner
	}
	inner[ticker] = rate
}

// RateSnapshot 一轮更新产生的完整利率表
// 两张表总是来自同一轮计算，不会混用。
type RateSnapshot struct {
	// Taker 由买一价计算（可卖出的一侧）
	Taker RateTable `json:"taker"`
	// Offered 由卖一价计算（可买入的一侧）
	Offered RateTable `json:"offered"`
	// ComputedAt 计算时间
	ComputedAt time.Time `json:"computed_at"`
}
