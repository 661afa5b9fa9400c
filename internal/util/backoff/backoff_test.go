package backoff

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// 默认重启策略（restart.base_ms=1000, max_ms=30000）下的等待序列
func TestBackoff_RestartSchedule(t *testing.T) {
	b := New(time.Second, 30*time.Second, 0)

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // 32s 截断到上限
		30 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Fatalf("restart #%d: got %v, want %v", i+1, got, w)
		}
	}
	if b.Attempt() != len(want) {
		t.Fatalf("Attempt() = %d, want %d", b.Attempt(), len(want))
	}

	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Fatalf("after Reset: got %v, want 1s", got)
	}
}

// 属性: 无抖动时等待单调不减且不超过上限；有抖动时落在 [base*(1-j), max*(1+j)]
func TestBackoff_DelayBounds_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("无抖动单调不减", prop.ForAll(
		func(baseMs, maxMs int) bool {
			base := time.Duration(baseMs) * time.Millisecond
			max := time.Duration(maxMs) * time.Millisecond
			b := New(base, max, 0)
			prev := time.Duration(0)
			for i := 0; i < 40; i++ {
				d := b.Next()
				if d < prev || d > max {
					return false
				}
				prev = d
			}
			return prev == max
		},
		gen.IntRange(50, 2000),
		gen.IntRange(2000, 60000),
	))

	properties.Property("抖动范围", prop.ForAll(
		func(baseMs, maxMs, jitterPct int) bool {
			base := time.Duration(baseMs) * time.Millisecond
			max := time.Duration(maxMs) * time.Millisecond
			j := float64(jitterPct) / 100
			b := New(base, max, j)
			lo := float64(base) * (1 - j)
			hi := float64(max) * (1 + j)
			for i := 0; i < 20; i++ {
				d := float64(b.Next())
				if d < lo || d > hi {
					return false
				}
			}
			return true
		},
		gen.IntRange(50, 2000),
		gen.IntRange(2000, 60000),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

// 属性: 设置上限 n 时恰好在第 n 次尝试后耗尽，Reset 后恢复
func TestBackoff_MaxAttempts_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("第 n 次后耗尽", prop.ForAll(
		func(n int) bool {
			b := New(time.Millisecond, time.Second, 0.2).WithMaxAttempts(n)
			for i := 0; i < n; i++ {
				if b.Exhausted() {
					return false
				}
				b.Next()
			}
			if !b.Exhausted() {
				return false
			}
			b.Reset()
			return !b.Exhausted() && b.Attempt() == 0
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestBackoff_UnboundedNeverExhausts(t *testing.T) {
	b := New(time.Second, 30*time.Second, 0.2)
	for i := 0; i < 100; i++ {
		b.Next()
	}
	if b.Exhausted() {
		t.Fatal("未设置上限时不应耗尽")
	}
	if d := b.Next(); d > 36*time.Second {
		t.Fatalf("delay %v exceeds max*(1+jitter)", d)
	}
}
