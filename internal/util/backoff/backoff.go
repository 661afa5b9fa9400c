// Package backoff 实现带上限的指数退避。
// 用于行情源崩溃后的重启节奏：基础间隔 1s，最大间隔 30s，抖动 ±20%，
// 可选最大连续尝试次数，超过后由调用方升级为致命错误。
package backoff

import (
	"math/rand"
	"time"
)

// Backoff 指数退避计算器
// 每次调用 Next() 返回下一次重试的等待时间，并累计尝试次数。
// 非并发安全，由单个 goroutine 持有。
type Backoff struct {
	// base 基础等待时间
	base time.Duration
	// max 最大等待时间
	max time.Duration
	// jitter 抖动比例（0-1），例如 0.2 表示 ±20%
	jitter float64
	// maxAttempts 最大连续尝试次数，0 表示不限
	maxAttempts int
	// attempt 当前连续尝试次数
	attempt int
}

// New 创建新的退避计算器
// 参数 base: 基础等待时间
// 参数 max: 最大等待时间
// 参数 jitter: 抖动比例
func New(base, max time.Duration, jitter float64) *Backoff {
	return &Backoff{
		base:   base,
		max:    max,
		jitter: jitter,
	}
}

// WithMaxAttempts 设置最大连续尝试次数
func (b *Backoff) WithMaxAttempts(n int) *Backoff {
	b.maxAttempts = n
	return b
}

// Next 获取下次重试的等待时间
// 计算公式: base * 2^attempt，限制在 max 以内后应用抖动
func (b *Backoff) Next() time.Duration {
	delay := b.max
	// 位移超过 30 位后必然超过任何合理的 max
	if b.attempt < 31 {
		delay = b.base * time.Duration(int64(1)<<b.attempt)
		if delay > b.max || delay <= 0 {
			delay = b.max
		}
	}

	if b.jitter > 0 {
		jitterFactor := 1.0 + (rand.Float64()*2-1)*b.jitter
		delay = time.Duration(float64(delay) * jitterFactor)
	}

	b.attempt++
	return delay
}

// Exhausted 是否已用尽尝试次数
func (b *Backoff) Exhausted() bool {
	return b.maxAttempts > 0 && b.attempt >= b.maxAttempts
}

// Reset 重置退避计算器
// 在重启成功后调用，清零连续尝试次数
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt 当前连续尝试次数
func (b *Backoff) Attempt() int {
	return b.attempt
}
