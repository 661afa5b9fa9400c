package primary

import (
	"encoding/json"
	"errors"
	"fmt"

	"implied-rate-arbitrage/internal/core/model"
	"implied-rate-arbitrage/internal/util/timeutil"
)

// ErrExchangeMessage 交易所推送的错误消息
var ErrExchangeMessage = errors.New("交易所错误消息")

// Event 解析后的推送事件
type Event struct {
	// Type 消息类型
	Type string
	// Quote 行情消息时非空
	Quote *model.Quote
	// OrderReport 订单回报原文
	OrderReport json.RawMessage
}

// Parse 解析 WebSocket 推送
// 错误消息返回 ErrExchangeMessage；未识别的消息类型返回 Type 非空、Quote 为空的事件。
func Parse(data []byte) (*Event, error) {
	arrivedAt := timeutil.NowNano()

	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("解析推送消息失败: %w", err)
	}
	if msg.Status == statusError {
		return nil, fmt.Errorf("%w: %s", ErrExchangeMessage, msg.Description)
	}

	switch msg.Type {
	case TypeMarketData:
		if msg.InstrumentID == nil || msg.InstrumentID.Symbol == "" {
			return nil, fmt.Errorf("行情消息缺少 instrumentId.symbol")
		}
		if msg.MarketData == nil {
			return nil, fmt.Errorf("%s: 行情消息缺少 marketData", msg.InstrumentID.Symbol)
		}
		q := &model.Quote{
			Ticker:          msg.InstrumentID.Symbol,
			ArrivedAtUnixNs: arrivedAt,
		}
		if entries := msg.MarketData[EntryBids]; len(entries) > 0 {
			q.Bid = &model.Level{Price: entries[0].Price, Size: entries[0].Size}
		}
		if entries := msg.MarketData[EntryOffers]; len(entries) > 0 {
			q.Ask = &model.Level{Price: entries[0].Price, Size: entries[0].Size}
		}
		return &Event{Type: msg.Type, Quote: q}, nil
	case TypeOrderReport:
		return &Event{Type: msg.Type, OrderReport: msg.OrderReport}, nil
	default:
		return &Event{Type: msg.Type}, nil
	}
}
