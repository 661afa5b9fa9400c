// Package timeutil 提供单调安全的时间戳。
package timeutil

import (
	"time"
)

var (
	// baseTime 基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// NowNano 当前 Unix 纳秒时间戳
// 由"启动时 Unix 时间 + 单调时钟流逝"组成，系统时间跳变（NTP/手动调整）时不会回退，
// 行情源时间戳与新鲜度水位线的比较因此始终有效。
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}
