package timeutil

import (
	"testing"
	"time"
)

func TestNowNano_NonDecreasing(t *testing.T) {
	prev := NowNano()
	for i := 0; i < 10000; i++ {
		now := NowNano()
		if now < prev {
			t.Fatalf("NowNano went backwards: %d < %d", now, prev)
		}
		prev = now
	}
}

func TestNowNano_CloseToWallClock(t *testing.T) {
	diff := time.Since(time.Unix(0, NowNano()))
	if diff < -time.Second || diff > time.Second {
		t.Fatalf("NowNano drifted from wall clock by %v", diff)
	}
}
