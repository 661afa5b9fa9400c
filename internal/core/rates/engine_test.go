package rates

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/core/model"
)

type tagMap map[string]string

func (m tagMap) MaturityTagOf(ticker string) (string, bool) {
	tag, ok := m[ticker]
	return tag, ok
}

var (
	today    = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	maturity = time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC)
)

func newTestEngine() *Engine {
	futures := map[string][]*model.Future{
		"GGAL": {model.NewFuture("GGALFeb21", maturity, "GGAL", 100)},
		"DO":   {model.NewFuture("DOFeb21", maturity, "DO", 1000)},
	}
	tags := tagMap{"GGALFeb21": "Feb21", "DOFeb21": "Feb21"}
	return NewEngine(futures, tags, zap.NewNop(), WithClock(func() time.Time { return today }))
}

func spot100() map[string]float64 {
	return map[string]float64{"GGAL": 100, "DO": 100}
}

func TestImplicitRate_KnownValue(t *testing.T) {
	// 2021-01-01 -> 2021-06-30 共 180 天
	got := ImplicitRate(130, 100, 180)
	want := 0.532404341670506
	if math.Abs(got-want) > 1e-10 {
		t.Fatalf("ImplicitRate(130,100,180) = %.15f, want %.15f", got, want)
	}
	if got2 := ImplicitRate(100, 100, 30); got2 != 0 {
		t.Fatalf("平价时利率应为 0，got %v", got2)
	}
}

// 属性: 按日复利定价后反推出的利率与原利率一致
func TestImplicitRate_InvertsDailyCompounding_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("反推利率", prop.ForAll(
		func(rate float64, spot float64, days int) bool {
			price := math.Pow(1+rate/DaysInYear, float64(days)) * spot
			return math.Abs(ImplicitRate(price, spot, days)-rate) < 1e-9
		},
		gen.Float64Range(-0.5, 2),
		gen.Float64Range(1, 100000),
		gen.IntRange(1, 730),
	))

	properties.TestingRun(t)
}

func TestEngine_ArbitrageOpportunity(t *testing.T) {
	e := newTestEngine()
	e.UpdateRates(spot100(),
		map[string]model.Level{"GGALFeb21": {Price: 115, Size: 10}, "DOFeb21": {Price: 125, Size: 10}},
		map[string]model.Level{"GGALFeb21": {Price: 120, Size: 10}, "DOFeb21": {Price: 130, Size: 10}},
	)

	sellTicker, maxTaker, err := e.MaxTakerRate("Feb21")
	if err != nil {
		t.Fatalf("MaxTakerRate: %v", err)
	}
	buyTicker, minOffered, err := e.MinOfferedRate("Feb21")
	if err != nil {
		t.Fatalf("MinOfferedRate: %v", err)
	}
	if sellTicker != "DOFeb21" || buyTicker != "GGALFeb21" {
		t.Fatalf("sell=%s buy=%s, want DOFeb21/GGALFeb21", sellTicker, buyTicker)
	}
	if !(maxTaker > minOffered) {
		t.Fatalf("应存在套利机会: taker=%f offered=%f", maxTaker, minOffered)
	}
	if !e.Ready() || !e.MaturityReadyToTrade("Feb21") {
		t.Fatalf("引擎应就绪")
	}
}

func TestEngine_NoArbitrageOpportunity(t *testing.T) {
	e := newTestEngine()
	e.UpdateRates(spot100(),
		map[string]model.Level{"GGALFeb21": {Price: 115, Size: 10}, "DOFeb21": {Price: 120, Size: 10}},
		map[string]model.Level{"GGALFeb21": {Price: 125, Size: 10}, "DOFeb21": {Price: 130, Size: 10}},
	)

	_, maxTaker, _ := e.MaxTakerRate("Feb21")
	_, minOffered, _ := e.MinOfferedRate("Feb21")
	if !(maxTaker < minOffered) {
		t.Fatalf("不应存在套利机会: taker=%f offered=%f", maxTaker, minOffered)
	}
}

func TestEngine_RecoversRatesFromPrices(t *testing.T) {
	e := newTestEngine()
	days := 180
	takerRate, offeredRate := 0.45, 0.40
	takerPx := math.Pow(1+takerRate/DaysInYear, float64(days)) * 100
	offeredPx := math.Pow(1+offeredRate/DaysInYear, float64(days)) * 100

	e.UpdateRates(spot100(),
		map[string]model.Level{"GGALFeb21": {Price: 100, Size: 10}, "DOFeb21": {Price: takerPx, Size: 10}},
		map[string]model.Level{"GGALFeb21": {Price: offeredPx, Size: 10}, "DOFeb21": {Price: 500, Size: 10}},
	)

	_, maxTaker, _ := e.MaxTakerRate("Feb21")
	_, minOffered, _ := e.MinOfferedRate("Feb21")
	if math.Abs(maxTaker-takerRate) > 1e-10 {
		t.Errorf("maxTaker = %.12f, want %.12f", maxTaker, takerRate)
	}
	if math.Abs(minOffered-offeredRate) > 1e-10 {
		t.Errorf("minOffered = %.12f, want %.12f", minOffered, offeredRate)
	}
}

func TestEngine_TablesFullyReplaced(t *testing.T) {
	e := newTestEngine()
	e.UpdateRates(spot100(),
		map[string]model.Level{"GGALFeb21": {Price: 115, Size: 10}, "DOFeb21": {Price: 125, Size: 10}},
		map[string]model.Level{"GGALFeb21": {Price: 120, Size: 10}, "DOFeb21": {Price: 130, Size: 10}},
	)

	// 第二轮 DOFeb21 报价消失
	e.UpdateRates(spot100(),
		map[string]model.Level{"GGALFeb21": {Price: 116, Size: 10}},
		map[string]model.Level{"GGALFeb21": {Price: 121, Size: 10}},
	)

	taker := e.TakerRates()
	if _, ok := taker["Feb21"]["DOFeb21"]; ok {
		t.Fatalf("上一轮的 DOFeb21 利率不应残留")
	}
	if len(taker["Feb21"]) != 1 || len(e.OfferedRates()["Feb21"]) != 1 {
		t.Fatalf("表应只包含本轮 GGALFeb21: %v", taker)
	}

	// 第三轮没有任何报价
	e.UpdateRates(spot100(), nil, nil)
	if e.Ready() || e.MaturityReadyToTrade("Feb21") {
		t.Fatalf("无报价时不应就绪")
	}
	if _, _, err := e.MaxTakerRate("Feb21"); !errors.Is(err, model.ErrNoRates) {
		t.Fatalf("err = %v, want ErrNoRates", err)
	}
}

func TestEngine_OneSidedQuotes(t *testing.T) {
	e := newTestEngine()
	e.UpdateRates(spot100(),
		map[string]model.Level{"GGALFeb21": {Price: 115, Size: 10}},
		map[string]model.Level{"DOFeb21": {Price: 130, Size: 10}},
	)
	if !e.MaturityReadyToTrade("Feb21") {
		t.Fatalf("两侧各有一条利率即可交易")
	}
	if _, ok := e.TakerRates()["Feb21"]["DOFeb21"]; ok {
		t.Fatalf("DOFeb21 无买价不应出现在 taker 表")
	}
}

func TestEngine_SkipsExpiredAndMissingSpot(t *testing.T) {
	futures := map[string][]*model.Future{
		"GGAL": {
			model.NewFuture("GGALEne21", today, "GGAL", 100),
			model.NewFuture("GGALFeb21", maturity, "GGAL", 100),
		},
		"DO": {model.NewFuture("DOFeb21", maturity, "DO", 1000)},
	}
	tags := tagMap{"GGALEne21": "Ene21", "GGALFeb21": "Feb21", "DOFeb21": "Feb21"}
	e := NewEngine(futures, tags, zap.NewNop(), WithClock(func() time.Time { return today }))

	bids := map[string]model.Level{
		"GGALEne21": {Price: 101, Size: 1},
		"GGALFeb21": {Price: 115, Size: 1},
		"DOFeb21":   {Price: 125, Size: 1},
	}
	e.UpdateRates(map[string]float64{"GGAL": 100}, bids, bids)

	taker := e.TakerRates()
	if _, ok := taker["Ene21"]; ok {
		t.Fatalf("当日到期合约不应参与计算")
	}
	if _, ok := taker["Feb21"]["DOFeb21"]; ok {
		t.Fatalf("无标的现价的合约不应参与计算")
	}
	if _, ok := taker["Feb21"]["GGALFeb21"]; !ok {
		t.Fatalf("GGALFeb21 应有利率")
	}
}

func TestEngine_SnapshotIsCopy(t *testing.T) {
	e := newTestEngine()
	e.UpdateRates(spot100(),
		map[string]model.Level{"GGALFeb21": {Price: 115, Size: 10}},
		map[string]model.Level{"GGALFeb21": {Price: 120, Size: 10}},
	)
	snap := e.Snapshot()
	snap.Taker["Feb21"]["GGALFeb21"] = 99
	if _, r, _ := e.MaxTakerRate("Feb21"); r == 99 {
		t.Fatalf("修改快照不应影响引擎")
	}
	if !snap.ComputedAt.Equal(today) {
		t.Fatalf("ComputedAt = %v, want %v", snap.ComputedAt, today)
	}
}
