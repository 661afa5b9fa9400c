// Package jsonl 输出模块测试
package jsonl

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/core/model"
)

func sampleReport(id string) *model.TradeReport {
	return &model.TradeReport{
		ID:          id,
		MaturityTag: "Feb21",
		Buy: model.TradeLeg{
			Ticker: "GGALFeb21", Side: model.SideBuy, Size: 10, Price: 120, Rate: 0.3699, Underlier: "DO",
			Handle: model.OrderHandle{ClientID: "c1", Proprietary: "PBCP"}, Status: model.OrderStatusFilled,
		},
		Sell: model.TradeLeg{
			Ticker: "DOFeb21", Side: model.SideSell, Size: 1, Price: 125, Rate: 0.4528, Underlier: "GGAL",
			Handle: model.OrderHandle{ClientID: "c2", Proprietary: "PBCP"}, Status: model.OrderStatusFilled,
		},
		Notional:    100000,
		RateSpread:  0.0829,
		SubmittedAt: time.Date(2021, 1, 1, 15, 0, 0, 0, time.UTC),
	}
}

// 属性: 成交报告 JSON 必含必需字段
func TestTradeReport_OutputCompleteness_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("trades JSON 必含必需字段", prop.ForAll(
		func(buyPx, sellPx float64, buySize, sellSize int64, tag string) bool {
			r := sampleReport("id")
			r.MaturityTag = tag
			r.Buy.Price, r.Sell.Price = buyPx, sellPx
			r.Buy.Size, r.Sell.Size = buySize, sellSize

			b, err := json.Marshal(r)
			if err != nil {
				return false
			}
			var m map[string]any
			if err := json.Unmarshal(b, &m); err != nil {
				return false
			}
			for _, k := range []string{"id", "maturity_tag", "buy", "sell", "notional", "rate_spread", "submitted_at"} {
				if _, ok := m[k]; !ok {
					return false
				}
			}
			buy, ok := m["buy"].(map[string]any)
			if !ok {
				return false
			}
			for _, k := range []string{"ticker", "side", "size", "price", "rate", "underlier", "handle"} {
				if _, ok := buy[k]; !ok {
					return false
				}
			}
			return true
		},
		gen.Float64Range(1, 200000),
		gen.Float64Range(1, 200000),
		gen.Int64Range(1, 10000),
		gen.Int64Range(1, 10000),
		gen.OneConstOf("Feb21", "Mar21", "Abr21"),
	))

	properties.TestingRun(t)
}

func TestTradeLog_WriteAndClose(t *testing.T) {
	l, err := NewTradeLog(t.TempDir(), 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTradeLog: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := l.Report(sampleReport("r" + string(rune('0'+i)))); err != nil {
			t.Fatalf("Report: %v", err)
		}
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := l.Report(sampleReport("late")); err != ErrClosed {
		t.Fatalf("Report after Close = %v, want ErrClosed", err)
	}

	written, dropped := l.Stats()
	if written != 10 || dropped != 0 {
		t.Fatalf("Stats() = (%d, %d), want (10, 0)", written, dropped)
	}

	f, err := os.Open(l.Path())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lines := 0
	for sc.Scan() {
		var r model.TradeReport
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if r.Buy.Ticker != "GGALFeb21" || r.Sell.Size != 1 {
			t.Fatalf("line %d: unexpected report %+v", lines, r)
		}
		lines++
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if lines != 10 {
		t.Fatalf("lines=%d, want 10", lines)
	}
}

func TestTradeLog_AppendsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		l, err := NewTradeLog(dir, 10, zap.NewNop())
		if err != nil {
			t.Fatalf("NewTradeLog: %v", err)
		}
		if err := l.Report(sampleReport("x")); err != nil {
			t.Fatalf("Report: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	data, err := os.ReadFile(dir + "/" + FileName)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	if n != 2 {
		t.Fatalf("lines=%d, want 2", n)
	}
}
