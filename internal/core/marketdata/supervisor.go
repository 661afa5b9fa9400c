package marketdata

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"implied-rate-arbitrage/internal/core/model"
	"implied-rate-arbitrage/internal/metrics"
	"implied-rate-arbitrage/internal/util/backoff"
)

// RestartPolicy 行情源重启策略
type RestartPolicy struct {
	// MaxConsecutiveFailures 连续重启失败上限，超过后升级为致命错误
	MaxConsecutiveFailures int
	// Base 首次重启等待
	Base time.Duration
	// Max 最大重启等待
	Max time.Duration
	// Jitter 抖动比例
	Jitter float64
	// StableAfter 重启后持续运行超过该时长即视为恢复（即使没有新数据）
	StableAfter time.Duration
}

// DefaultStableAfter StableAfter 未配置时的默认值
const DefaultStableAfter = 5 * time.Minute

// feedState 单个行情源的重启状态
type feedState struct {
	feed    Feed
	backoff *backoff.Backoff
	// nextAttempt 下一次允许重启的时间
	nextAttempt time.Time
	// lastFailure 最近一次发现停止的时间
	lastFailure time.Time
	// restartedAt 最近一次重启成功的时间（零值表示尚未重启过）
	restartedAt time.Time
	// updateAtRestart 重启时的 LastUpdate，用于判断重启后是否产出过数据
	updateAtRestart int64
}

// Supervisor 行情源监督器
// 由控制循环单 goroutine 调用，每轮检查已停止的行情源并按退避节奏重启。
type Supervisor struct {
	policy RestartPolicy
	feeds  []*feedState
	logger *zap.Logger
	now    func() time.Time
}

// NewSupervisor 创建监督器
func NewSupervisor(policy RestartPolicy, logger *zap.Logger, feeds ...Feed) *Supervisor {
	if policy.StableAfter <= 0 {
		policy.StableAfter = DefaultStableAfter
	}
	s := &Supervisor{
		policy: policy,
		logger: logger.Named("supervisor"),
		now:    time.Now,
	}
	for _, f := range feeds {
		s.feeds = append(s.feeds, &feedState{
			feed:    f,
			backoff: backoff.New(policy.Base, policy.Max, policy.Jitter).WithMaxAttempts(policy.MaxConsecutiveFailures),
		})
	}
	return s
}

// Check 检查所有行情源，必要时重启
// 返回: 某个行情源连续失败次数超限时返回 model.ErrFeedRestartExhausted
func (s *Supervisor) Check(ctx context.Context) error {
	now := s.now()
	for _, st := range s.feeds {
		if st.feed.Running() {
			s.maybeReset(st)
			continue
		}
		if st.lastFailure.IsZero() {
			st.lastFailure = now
		}
		if now.Before(st.nextAttempt) {
			continue
		}
		if st.backoff.Exhausted() {
			return fmt.Errorf("%s 连续 %d 次重启失败: %w", st.feed.Name(), st.backoff.Attempt(), model.ErrFeedRestartExhausted)
		}

		delay := st.backoff.Next()
		st.nextAttempt = now.Add(delay)

		s.logger.Warn("行情源已停止，尝试重启",
			zap.String("feed", st.feed.Name()),
			zap.Int("attempt", st.backoff.Attempt()),
			zap.Time("last_failure", st.lastFailure),
			zap.Duration("next_delay", delay),
		)
		if err := st.feed.Start(ctx); err != nil {
			metrics.FeedRestarts.WithLabelValues(st.feed.Name(), "error").Inc()
			s.logger.Error("行情源重启失败", zap.String("feed", st.feed.Name()), zap.Error(err))
			continue
		}
		metrics.FeedRestarts.WithLabelValues(st.feed.Name(), "ok").Inc()
		st.restartedAt = now
		st.updateAtRestart = st.feed.LastUpdate()
	}
	return nil
}

// maybeReset 重启后的行情源产出新数据或持续运行满 StableAfter 即视为恢复，清零连续失败计数
// 启动即崩溃的行情源不会清零，从而能累计到上限。
func (s *Supervisor) maybeReset(st *feedState) {
	if st.restartedAt.IsZero() {
		return
	}
	produced := st.feed.LastUpdate() > st.updateAtRestart
	stable := s.now().Sub(st.restartedAt) >= s.policy.StableAfter
	if !produced && !stable {
		return
	}
	s.logger.Info("行情源已恢复",
		zap.String("feed", st.feed.Name()),
		zap.Int("attempts", st.backoff.Attempt()),
		zap.Bool("produced_data", produced))
	st.backoff.Reset()
	st.restartedAt = time.Time{}
	st.lastFailure = time.Time{}
	st.nextAttempt = time.Time{}
}

// Attempts 指定行情源当前连续重启次数（未找到返回 -1）
func (s *Supervisor) Attempts(name string) int {
	for _, st := range s.feeds {
		if st.feed.Name() == name {
			return st.backoff.Attempt()
		}
	}
	return -1
}
