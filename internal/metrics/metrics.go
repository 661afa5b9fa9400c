// Package metrics 定义 Prometheus 指标并提供 /metrics 与 /healthz 服务。
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// RateUpdates 利率表重算次数
	RateUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratebot_rate_updates_total",
		Help: "Number of full rate-table rebuilds.",
	})

	// RateUpdateDuration 单次重算耗时
	RateUpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratebot_rate_update_duration_seconds",
		Help:    "Time spent rebuilding rate tables.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
	})

	// ExpiredInstruments 因到期被跳过的合约次数
	ExpiredInstruments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratebot_expired_instruments_total",
		Help: "Instruments skipped during rate computation because they matured.",
	}, []string{"ticker"})

	// BestSpread 各到期分组最优利差（taker - offered）
	BestSpread = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ratebot_best_rate_spread",
		Help: "Best taker rate minus best offered rate per maturity tag.",
	}, []string{"tag"})

	// TradeDecisions 交易决策结果
	TradeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratebot_trade_decisions_total",
		Help: "Trade evaluations by outcome.",
	}, []string{"tag", "outcome"}) // outcome = no_edge | zero_size | stale | submitted | error

	// OrdersPlaced 下单次数
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratebot_orders_total",
		Help: "Orders sent to the exchange by side and result.",
	}, []string{"side", "result"})

	// FeedRestarts 行情源重启次数
	FeedRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratebot_feed_restarts_total",
		Help: "Feed restart attempts by feed and result.",
	}, []string{"feed", "result"})

	// FeedLastUpdate 行情源最后更新时间（unix 秒）
	FeedLastUpdate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ratebot_feed_last_update_timestamp",
		Help: "Unix seconds of the last data update per feed.",
	}, []string{"feed"})

	// CycleErrors 控制循环单轮错误次数
	CycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratebot_cycle_errors_total",
		Help: "Control-loop iterations that ended with an error.",
	})
)

// Serve 启动指标与健康检查 HTTP 服务，ctx 取消时优雅关闭
// 参数 addr: 监听地址，为空则不启动
func Serve(ctx context.Context, addr string, log *zap.Logger) {
	if addr == "" {
		log.Info("指标服务未启用")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("指标服务启动", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("指标服务异常", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("指标服务关闭失败", zap.Error(err))
		}
	}()
}
