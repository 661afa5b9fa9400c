package model

// Level 订单簿最优档位
type Level struct {
	// Price 价格
	Price float64 `json:"price"`
	// Size 数量（整数手）
	Size float64 `json:"size"`
}

// IsValid 价格与数量均为正
func (l Level) IsValid() bool {
	return l.Price > 0 && l.Size > 0
}

// Quote 单个合约的一次行情推送
// Bid/Ask 为空表示本次推送不含该方向。
type Quote struct {
	// Ticker 合约代码
	Ticker string
	// Bid 最优买价档位（可选）
	Bid *Level
	// Ask 最优卖价档位（可选）
	Ask *Level
	// ArrivedAtUnixNs 本机收到消息的时间戳（纳秒）
	ArrivedAtUnixNs int64
}

// Book 订单簿快照：合约代码 -> 最优买/卖档位
// 快照一经发布即不可修改，更新时整体替换。
type Book struct {
	Bids map[string]Level
	Asks map[string]Level
}

// EmptyBook 创建空快照
func EmptyBook() *Book {
	return &Book{
		Bids: make(map[string]Level),
		Asks: make(map[string]Level),
	}
}

// Apply 基于当前快照与一条行情生成新快照（写时复制）
func (b *Book) Apply(q *Quote) *Book {
	next := &Book{
		Bids: CopyLevels(b.Bids),
		Asks: CopyLevels(b.Asks),
	}
	if q.Bid != nil {
		next.Bids[q.Ticker] = *q.Bid
	}
	if q.Ask != nil {
		next.Asks[q.Ticker] = *q.Ask
	}
	return next
}

// CopyLevels 深拷贝档位表
func CopyLevels(src map[string]Level) map[string]Level {
	dst := make(map[string]Level, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// CopyPrices 深拷贝价格表
func CopyPrices(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
