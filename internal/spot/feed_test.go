package spot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/config"
)

// chartServer 按代码返回可修改的价格
type chartServer struct {
	srv      *httptest.Server
	mu       sync.Mutex
	prices   map[string]float64
	failing  bool
	requests atomic.Int64
}

func newChartServer(t *testing.T, prices map[string]float64) *chartServer {
	t.Helper()
	s := &chartServer{prices: prices}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failing {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		sym := strings.TrimPrefix(r.URL.Path, "/chart/")
		px, ok := s.prices[sym]
		if !ok {
			fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
			return
		}
		fmt.Fprintf(w, `{"chart":{"result":[{"meta":{"symbol":%q,"regularMarketPrice":%v}}],"error":null}}`, sym, px)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *chartServer) set(sym string, px float64) {
	s.mu.Lock()
	s.prices[sym] = px
	s.mu.Unlock()
}

func (s *chartServer) fail() {
	s.mu.Lock()
	s.failing = true
	s.mu.Unlock()
}

func newTestFeed(s *chartServer) *Feed {
	cfg := &config.SpotConfig{URL: s.srv.URL + "/chart", PollIntervalMs: 10, TimeoutMs: 1000}
	return NewFeed(cfg, map[string]string{"GGAL": "GGAL.BA", "DO": "ARS=X"}, zap.NewNop())
}

func TestFeed_StartFetchesPrices(t *testing.T) {
	s := newChartServer(t, map[string]float64{"GGAL.BA": 100, "ARS=X": 88.5})
	f := newTestFeed(s)

	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	assert.True(t, f.Running())
	assert.Positive(t, f.LastUpdate())
	assert.Equal(t, map[string]float64{"GGAL": 100, "DO": 88.5}, f.LastPrices())

	px, ok := f.Price("DO")
	assert.True(t, ok)
	assert.Equal(t, 88.5, px)
	_, ok = f.Price("YPFD")
	assert.False(t, ok)
}

func TestFeed_TimestampOnlyMovesOnPriceChange(t *testing.T) {
	s := newChartServer(t, map[string]float64{"GGAL.BA": 100, "ARS=X": 88.5})
	f := newTestFeed(s)
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	ts := f.LastUpdate()

	// 至少再轮询几次，价格未变
	seen := s.requests.Load()
	require.Eventually(t, func() bool { return s.requests.Load() >= seen+6 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, ts, f.LastUpdate())

	// 变动不超过阈值
	s.set("GGAL.BA", 100+PriceEpsilon/2)
	seen = s.requests.Load()
	require.Eventually(t, func() bool { return s.requests.Load() >= seen+6 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, ts, f.LastUpdate())

	s.set("GGAL.BA", 101)
	require.Eventually(t, func() bool { return f.LastUpdate() > ts }, 2*time.Second, 5*time.Millisecond)
	px, _ := f.Price("GGAL")
	assert.Equal(t, 101.0, px)
}

func TestFeed_FetchErrorStopsFeed(t *testing.T) {
	s := newChartServer(t, map[string]float64{"GGAL.BA": 100, "ARS=X": 88.5})
	f := newTestFeed(s)
	require.NoError(t, f.Start(context.Background()))

	s.fail()
	require.Eventually(t, func() bool { return !f.Running() }, 2*time.Second, 5*time.Millisecond)

	// 已有价格保留
	assert.Len(t, f.LastPrices(), 2)
	f.Stop()
	f.Stop()
}

func TestFeed_StartFailsOnUnknownSymbol(t *testing.T) {
	s := newChartServer(t, map[string]float64{"GGAL.BA": 100})
	f := newTestFeed(s)

	err := f.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARS=X")
	assert.False(t, f.Running())
	assert.Zero(t, f.LastUpdate())
	f.Stop()
}

func TestChanged(t *testing.T) {
	tests := []struct {
		name string
		old  map[string]float64
		next map[string]float64
		want bool
	}{
		{"相同", map[string]float64{"A": 1}, map[string]float64{"A": 1}, false},
		{"阈值内", map[string]float64{"A": 1}, map[string]float64{"A": 1.00005}, false},
		{"超过阈值", map[string]float64{"A": 1}, map[string]float64{"A": 1.001}, true},
		{"新增标的", map[string]float64{}, map[string]float64{"A": 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := changed(tt.old, tt.next); got != tt.want {
				t.Fatalf("changed() = %v, want %v", got, tt.want)
			}
		})
	}
}
