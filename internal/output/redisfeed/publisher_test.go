package redisfeed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/core/model"
)

func newTestPublisher(t *testing.T) (*Publisher, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = sub.Close() })

	p := NewWithClient(rdb, "test", zap.NewNop())
	t.Cleanup(func() { _ = p.Close() })
	return p, sub, mr
}

func TestPublisher_PublishRates(t *testing.T) {
	ctx := context.Background()
	p, sub, mr := newTestPublisher(t)
	require.NoError(t, p.Ping(ctx))

	ps := sub.Subscribe(ctx, p.RatesChannel())
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	snap := model.RateSnapshot{
		Taker:      model.RateTable{"Feb21": {"DOFeb21": 0.4528}},
		Offered:    model.RateTable{"Feb21": {"GGALFeb21": 0.3699}},
		ComputedAt: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishRates(ctx, snap))

	select {
	case msg := <-ps.Channel():
		var got model.RateSnapshot
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, 0.4528, got.Taker["Feb21"]["DOFeb21"])
		assert.Equal(t, 0.3699, got.Offered["Feb21"]["GGALFeb21"])
	case <-time.After(2 * time.Second):
		t.Fatal("未收到利率快照")
	}

	latest, err := mr.Get("test:rates:latest")
	require.NoError(t, err)
	assert.Contains(t, latest, "DOFeb21")
}

func TestPublisher_ReportKeepsHistory(t *testing.T) {
	ctx := context.Background()
	p, sub, mr := newTestPublisher(t)

	ps := sub.Subscribe(ctx, p.TradesChannel())
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	r := &model.TradeReport{
		ID:          "abc",
		MaturityTag: "Feb21",
		Buy:         model.TradeLeg{Ticker: "GGALFeb21", Side: model.SideBuy, Size: 10, Price: 120},
		Sell:        model.TradeLeg{Ticker: "DOFeb21", Side: model.SideSell, Size: 1, Price: 125},
	}
	require.NoError(t, p.Report(r))

	select {
	case msg := <-ps.Channel():
		var got model.TradeReport
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "abc", got.ID)
		assert.Equal(t, int64(10), got.Buy.Size)
	case <-time.After(2 * time.Second):
		t.Fatal("未收到成交报告")
	}

	history, err := mr.List("test:trades:history")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPublisher_ReportFailsWhenRedisDown(t *testing.T) {
	p, _, mr := newTestPublisher(t)
	mr.Close()
	assert.Error(t, p.Report(&model.TradeReport{ID: "x"}))
}
