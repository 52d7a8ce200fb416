package application

import (
	"context"
	"sync"
	"time"

	"rewardhub/internal/service/reward/domain"
)

type fakeLimiter struct {
	mu    sync.Mutex
	allow bool
	keys  []string
}

func (f *fakeLimiter) Admit(_ context.Context, key string, _ int, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.allow
}

type fakeQuota struct {
	mu         sync.Mutex
	limit      int64
	used       map[int64]int64
	releases   int
	released   []domain.QuotaReservation
	reserveErr error
}

func newFakeQuota(limit int64) *fakeQuota {
	return &fakeQuota{limit: limit, used: make(map[int64]int64)}
}

func (f *fakeQuota) Reserve(_ context.Context, userID int64) (domain.QuotaReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return domain.QuotaReservation{}, f.reserveErr
	}
	if f.used[userID] >= f.limit {
		return domain.QuotaReservation{}, domain.ErrQuotaExceeded
	}
	f.used[userID]++
	return domain.QuotaReservation{UserID: userID, Day: "20261018"}, nil
}

func (f *fakeQuota) Release(_ context.Context, r domain.QuotaReservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	f.released = append(f.released, r)
	if f.used[r.UserID] > 0 {
		f.used[r.UserID]--
	}
	return nil
}

func (f *fakeQuota) Used(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used[userID], nil
}

func (f *fakeQuota) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

type fakeCatalog struct {
	rewards []domain.Reward
	err     error
}

func (f *fakeCatalog) ListEligibleRewards(context.Context) ([]domain.Reward, error) {
	return f.rewards, f.err
}

type fakeLedger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeLedger) Issue(_ context.Context, userID, rewardID int64) (*domain.IssuanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.IssuanceRecord{ID: int64(f.calls), UserID: userID, RewardID: rewardID}, nil
}

type dispatched struct {
	userID  int64
	message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []dispatched
}

func (f *fakeNotifier) Dispatch(userID int64, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, dispatched{userID: userID, message: message})
}

func (f *fakeNotifier) all() []dispatched {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatched(nil), f.sent...)
}

type fakeEligibility struct {
	allowed map[string]bool
}

func (f *fakeEligibility) Eligible(_ context.Context, rule string, _ domain.EligibilityFact) (bool, error) {
	if rule == "" {
		return true, nil
	}
	return f.allowed[rule], nil
}
