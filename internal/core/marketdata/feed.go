// Package marketdata 定义行情源能力接口与行情源重启监督器。
// 两路行情源（订单簿推送、现货轮询）各自独占并修改自己的状态，
// 控制循环与利率引擎只读取不可变快照的副本。
package marketdata

import (
	"context"

	"implied-rate-arbitrage/internal/core/model"
)

// Feed 行情源的生命周期与时间戳
type Feed interface {
	// Name 行情源名称（日志、指标使用）
	Name() string
	// Start 开始监听；已在运行时为空操作
	Start(ctx context.Context) error
	// Stop 通知停止并关闭连接；可在任意 goroutine 调用，不会无限阻塞
	Stop()
	// Running 是否仍在运行（崩溃后为 false）
	Running() bool
	// LastUpdate 最后一次数据更新时间（Unix 纳秒），单调不减
	LastUpdate() int64
}

// BookSource 订单簿行情源（推送式）
type BookSource interface {
	Feed
	// Bids 最优买价档位（副本）
	Bids() map[string]model.Level
	// Asks 最优卖价档位（副本）
	Asks() map[string]model.Level
}

// SpotSource 标的现价行情源（轮询式）
type SpotSource interface {
	Feed
	// LastPrices 标的 -> 现价（副本）
	LastPrices() map[string]float64
	// Price 单个标的现价
	Price(underlier string) (float64, bool)
}
