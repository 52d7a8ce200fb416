package application

import (
	"context"
	"time"

	"rewardhub/internal/pkg/metrics"
	"rewardhub/internal/service/reward/domain"
)

// Allower 是全局限流器的最小接口，*rate.Limiter 满足它。
type Allower interface {
	Allow() bool
}

// WithGlobalRateLimit 在所有用户共享的进程级令牌桶上限流。
func WithGlobalRateLimit(next Participator, limiter Allower) Participator {
	return ParticipatorFunc(func(ctx context.Context, userID int64) (*domain.ParticipationResult, error) {
		if !limiter.Allow() {
			return &domain.ParticipationResult{UserID: userID, Outcome: domain.OutcomeRateLimited}, domain.ErrThrottled
		}
		return next.Participate(ctx, userID)
	})
}

// WithMetrics 记录每次参与的终态与耗时。
func WithMetrics(next Participator) Participator {
	return ParticipatorFunc(func(ctx context.Context, userID int64) (*domain.ParticipationResult, error) {
		start := time.Now()
		result, err := next.Participate(ctx, userID)
		metrics.ParticipationDuration.Observe(time.Since(start).Seconds())

		outcome := domain.OutcomeOf(err)
		if result != nil && result.Outcome != "" {
			outcome = result.Outcome
		}
		metrics.ParticipationTotal.WithLabelValues(string(outcome)).Inc()
		return result, err
	})
}

// Decorate 按固定顺序组装装饰器：指标在最外层，全局限流紧贴协调器。
func Decorate(core Participator, global Allower) Participator {
	return WithMetrics(WithGlobalRateLimit(core, global))
}
