package adapter

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/service/reward/domain"
)

var ErrInvalidToken = errors.New("push token is invalid")

// SimulatedPushSender 模拟一个延迟有界、偶发失败的外部推送服务。
type SimulatedPushSender struct {
	latency     time.Duration
	failureRate float64
	roll        func() float64
}

func NewSimulatedPushSender(latency time.Duration, failureRate float64) *SimulatedPushSender {
	return &SimulatedPushSender{latency: latency, failureRate: failureRate, roll: rand.Float64}
}

func (s *SimulatedPushSender) Send(ctx context.Context, n domain.Notification) error {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.roll() < s.failureRate {
		return ErrInvalidToken
	}
	logger.Ctx(ctx).Info().Int64("user", n.UserID).Str("message", n.Message).Msg("push notification delivered")
	return nil
}
