// Package redisfeed 将利率快照与成交报告发布到 Redis，供外部看板订阅。
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/config"
	"implied-rate-arbitrage/internal/core/model"
)

// historyLimit 成交报告历史保留条数
const historyLimit = 1000

// Publisher Redis 发布器
//   - PUBLISH <prefix>:rates   每轮利率快照
//   - SET     <prefix>:rates:latest 最新快照
//   - PUBLISH <prefix>:trades  成交报告
//   - LPUSH   <prefix>:trades:history（保留最近 1000 条）
type Publisher struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// New 按配置创建发布器
func New(cfg *config.RedisConfig, logger *zap.Logger) *Publisher {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	return NewWithClient(rdb, cfg.ChannelPrefix, logger)
}

// NewWithClient 使用已有客户端创建发布器
func NewWithClient(rdb *redis.Client, prefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		rdb:     rdb,
		prefix:  prefix,
		timeout: 2 * time.Second,
		logger:  logger.Named("redisfeed"),
	}
}

// Ping 检查连通性
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return nil
}

// RatesChannel 利率快照频道
func (p *Publisher) RatesChannel() string { return p.prefix + ":rates" }

// TradesChannel 成交报告频道
func (p *Publisher) TradesChannel() string { return p.prefix + ":trades" }

// PublishRates 发布一轮利率快照
func (p *Publisher) PublishRates(ctx context.Context, snap model.RateSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化利率快照失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	pipe := p.rdb.TxPipeline()
	pipe.Set(ctx, p.RatesChannel()+":latest", payload, 0)
	pipe.Publish(ctx, p.RatesChannel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("发布利率快照失败: %w", err)
	}
	return nil
}

// Report 发布成交报告（实现 trader.Reporter）
func (p *Publisher) Report(r *model.TradeReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("序列化成交报告失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	history := p.TradesChannel() + ":history"
	pipe := p.rdb.TxPipeline()
	pipe.LPush(ctx, history, payload)
	pipe.LTrim(ctx, history, 0, historyLimit-1)
	pipe.Publish(ctx, p.TradesChannel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("发布成交报告失败: %w", err)
	}
	p.logger.Debug("成交报告已发布", zap.String("id", r.ID))
	return nil
}

// Close 关闭连接
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
