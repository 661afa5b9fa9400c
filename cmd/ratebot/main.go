// Package main 是隐含利率期货套利机器人的入口点。
// 启动流程：加载配置与凭证 -> 认证会话 -> 拉取合约目录 -> 组装行情源、利率引擎与交易器 -> 运行控制循环。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"implied-rate-arbitrage/internal/bot"
	"implied-rate-arbitrage/internal/catalog"
	"implied-rate-arbitrage/internal/config"
	"implied-rate-arbitrage/internal/core/gate"
	"implied-rate-arbitrage/internal/core/marketdata"
	"implied-rate-arbitrage/internal/core/rates"
	"implied-rate-arbitrage/internal/core/trader"
	"implied-rate-arbitrage/internal/exchange/primary"
	"implied-rate-arbitrage/internal/metrics"
	"implied-rate-arbitrage/internal/output/console"
	"implied-rate-arbitrage/internal/output/jsonl"
	"implied-rate-arbitrage/internal/output/redisfeed"
	"implied-rate-arbitrage/internal/spot"
)

func main() {
	var configPath, envPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.StringVar(&envPath, "env", ".env", "凭证 .env 文件路径（可选）")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	creds, err := config.LoadCredentials(envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载凭证失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(&cfg.App)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.Addr, logger)

	if err := run(ctx, cfg, creds, logger); err != nil {
		logger.Error("机器人退出", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("关闭完成")
}

func run(ctx context.Context, cfg *config.Config, creds config.Credentials, logger *zap.Logger) error {
	session := primary.NewSession(&cfg.Exchange, creds, logger)
	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startCancel()
	if err := session.Open(startCtx); err != nil {
		return err
	}

	client := primary.NewClient(&cfg.Exchange, session, logger)
	records, err := client.FetchInstruments(startCtx)
	if err != nil {
		_ = session.Close()
		return err
	}
	cat, err := catalog.New(cfg.Tickers, records)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("构建合约目录失败: %w", err)
	}
	if len(cat.TradeableMaturityTags()) == 0 {
		logger.Warn("没有可交易的到期分组", zap.Strings("tickers", cfg.Tickers))
	}
	logger.Info("合约目录就绪",
		zap.Strings("tags", cat.TradeableMaturityTags()),
		zap.Strings("tickers", cat.TradeableTickers()))

	symbols := make(map[string]string)
	for _, root := range cat.TradeableUnderliers() {
		symbols[root] = cfg.Spot.SpotSymbol(root)
	}

	book := primary.NewBookFeed(&cfg.Exchange, session, cat.TradeableTickers(), logger)
	spotFeed := spot.NewFeed(&cfg.Spot, symbols, logger)
	watchman := gate.NewWatchman(gate.New(), book, spotFeed)
	engine := rates.NewEngine(cat.TradeableByUnderlier(), cat, logger)

	var reporters []trader.Reporter
	if cfg.Output.TradesEnabled {
		tradeLog, err := jsonl.NewTradeLog(cfg.Output.Dir, cfg.Output.BufferSize, logger)
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("创建成交报告文件失败: %w", err)
		}
		defer tradeLog.Close()
		reporters = append(reporters, tradeLog)
	}

	var publisher bot.RatesPublisher
	if cfg.Redis.Enabled {
		pub := redisfeed.New(&cfg.Redis, logger)
		if err := pub.Ping(startCtx); err != nil {
			logger.Warn("Redis 不可用，发布可能失败", zap.Error(err))
		}
		defer pub.Close()
		reporters = append(reporters, pub)
		publisher = pub
	}

	tr := trader.New(trader.Deps{
		Instruments: cat,
		Rates:       engine,
		Quotes:      book,
		Prices:      spotFeed,
		Freshness:   watchman,
		Gateway:     client,
		Reporters:   reporters,
	}, cfg.Strategy.Threshold(), logger)

	supervisor := marketdata.NewSupervisor(marketdata.RestartPolicy{
		MaxConsecutiveFailures: cfg.Restart.MaxConsecutiveFailures,
		Base:                   time.Duration(cfg.Restart.BaseMs) * time.Millisecond,
		Max:                    time.Duration(cfg.Restart.MaxMs) * time.Millisecond,
		Jitter:                 cfg.Restart.Jitter,
		StableAfter:            time.Duration(cfg.Restart.StableAfterMs) * time.Millisecond,
	}, logger, book, spotFeed)

	b := bot.New(bot.Deps{
		Book:       book,
		Spot:       spotFeed,
		Supervisor: supervisor,
		Freshness:  watchman,
		Engine:     engine,
		Trader:     tr,
		Publisher:  publisher,
		Session:    session,
	}, bot.Options{
		IdleSleep:        cfg.Strategy.IdleSleep(),
		HaltOnCycleError: cfg.Strategy.HaltOnCycleError,
	}, logger)

	printer := console.NewPrinter(engine, os.Stdout, cfg.Output.PrintInterval(), logger)
	go printer.Run(ctx)

	err = b.Launch(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newLogger 创建生产配置的日志器；配置了 log_file 时同时写入按大小轮转的文件
func newLogger(app *config.AppConfig) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(app.LogLevel); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	if app.LogFile == "" {
		return logger.Named(app.Name)
	}

	rotator := &lumberjack.Logger{
		Filename:   app.LogFile,
		MaxSize:    app.LogMaxSizeMB,
		MaxBackups: app.LogMaxBackups,
		Compress:   true,
	}
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), zapcore.AddSync(rotator), cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})).Named(app.Name)
}
