package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"rewardhub/internal/service/reward/domain"
)

type countingParticipator struct {
	calls int
	err   error
}

func (p *countingParticipator) Participate(_ context.Context, userID int64) (*domain.ParticipationResult, error) {
	p.calls++
	if p.err != nil {
		return &domain.ParticipationResult{UserID: userID, Outcome: domain.OutcomeOf(p.err)}, p.err
	}
	return &domain.ParticipationResult{UserID: userID, Outcome: domain.OutcomeNotificationEnqueued}, nil
}

func TestGlobalRateLimitShortCircuits(t *testing.T) {
	core := &countingParticipator{}
	// 容量为 1 的令牌桶，不补充
	limited := WithGlobalRateLimit(core, rate.NewLimiter(0, 1))

	res, err := limited.Participate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNotificationEnqueued, res.Outcome)

	res, err = limited.Participate(context.Background(), 2)
	assert.ErrorIs(t, err, domain.ErrThrottled)
	assert.Equal(t, domain.OutcomeRateLimited, res.Outcome)
	assert.Equal(t, int64(2), res.UserID)
	assert.Equal(t, 1, core.calls)
}

func TestDecoratePassesThroughErrors(t *testing.T) {
	core := &countingParticipator{err: domain.ErrInsufficientStock}
	p := Decorate(core, rate.NewLimiter(rate.Inf, 0))

	res, err := p.Participate(context.Background(), 3)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, domain.OutcomeIssuanceFailedBusiness, res.Outcome)
	assert.Equal(t, 1, core.calls)
}

func TestParticipatorFunc(t *testing.T) {
	var got int64
	f := ParticipatorFunc(func(_ context.Context, userID int64) (*domain.ParticipationResult, error) {
		got = userID
		return &domain.ParticipationResult{UserID: userID}, nil
	})
	_, err := WithMetrics(f).Participate(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got)
}
