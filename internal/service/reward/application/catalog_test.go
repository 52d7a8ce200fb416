package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardhub/internal/pkg/clock"
	"rewardhub/internal/service/reward/domain"
)

type countingRepo struct {
	domain.RewardRepository
	loads   atomic.Int32
	rewards []domain.Reward
	gate    chan struct{}
}

func (r *countingRepo) FindAll(ctx context.Context) ([]domain.Reward, error) {
	r.loads.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return append([]domain.Reward(nil), r.rewards...), nil
}

func TestCachedCatalogHonoursTTL(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	repo := &countingRepo{rewards: []domain.Reward{{ID: 1, Weight: 1}}}
	c := NewCachedCatalog(repo, time.Minute, clk)
	ctx := context.Background()

	_, err := c.ListEligibleRewards(ctx)
	require.NoError(t, err)
	_, err = c.ListEligibleRewards(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.loads.Load())

	clk.Advance(time.Minute)
	_, err = c.ListEligibleRewards(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.loads.Load())
}

func TestCachedCatalogZeroTTLNeverExpires(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	repo := &countingRepo{rewards: []domain.Reward{{ID: 1, Weight: 1}}}
	c := NewCachedCatalog(repo, 0, clk)

	_, _ = c.ListEligibleRewards(context.Background())
	clk.Advance(24 * time.Hour)
	_, _ = c.ListEligibleRewards(context.Background())
	assert.Equal(t, int32(1), repo.loads.Load())
}

func TestCachedCatalogInvalidate(t *testing.T) {
	repo := &countingRepo{rewards: []domain.Reward{{ID: 1, Weight: 1}}}
	c := NewCachedCatalog(repo, time.Hour, nil)

	_, _ = c.ListEligibleRewards(context.Background())
	c.Invalidate()
	_, _ = c.ListEligibleRewards(context.Background())
	assert.Equal(t, int32(2), repo.loads.Load())
}

func TestCachedCatalogReturnsCopies(t *testing.T) {
	repo := &countingRepo{rewards: []domain.Reward{{ID: 1, Name: "a", Weight: 1}}}
	c := NewCachedCatalog(repo, time.Hour, nil)

	first, err := c.ListEligibleRewards(context.Background())
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := c.ListEligibleRewards(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", second[0].Name)
}

func TestCachedCatalogCollapsesConcurrentMisses(t *testing.T) {
	repo := &countingRepo{rewards: []domain.Reward{{ID: 1, Weight: 1}}, gate: make(chan struct{})}
	c := NewCachedCatalog(repo, time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rewards, err := c.ListEligibleRewards(context.Background())
			assert.NoError(t, err)
			assert.Len(t, rewards, 1)
		}()
	}
	require.Eventually(t, func() bool { return repo.loads.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.Equal(t, int32(1), repo.loads.Load())
}

// 首个调用方在加载途中断开：只有它收到 context.Canceled，其他等待者拿到结果。
func TestCachedCatalogCancelledCallerDoesNotFailOthers(t *testing.T) {
	repo := &countingRepo{rewards: []domain.Reward{{ID: 1, Weight: 1}}, gate: make(chan struct{})}
	c := NewCachedCatalog(repo, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.ListEligibleRewards(ctx)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return repo.loads.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		rewards []domain.Reward
		err     error
	}
	second := make(chan result, 1)
	go func() {
		rewards, err := c.ListEligibleRewards(context.Background())
		second <- result{rewards, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the shared load")
	}

	close(repo.gate)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.rewards, 1)

	// 加载已写入缓存
	_, err := c.ListEligibleRewards(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.loads.Load())
}

func TestCachedCatalogInvalidateDuringLoadDiscardsResult(t *testing.T) {
	repo := &countingRepo{rewards: []domain.Reward{{ID: 1, Name: "old", Weight: 1}}, gate: make(chan struct{})}
	c := NewCachedCatalog(repo, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		rewards, err := c.ListEligibleRewards(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "old", rewards[0].Name)
	}()
	require.Eventually(t, func() bool { return repo.loads.Load() == 1 }, time.Second, 5*time.Millisecond)

	c.Invalidate()
	repo.rewards = []domain.Reward{{ID: 1, Name: "new", Weight: 1}}
	close(repo.gate)
	<-done

	rewards, err := c.ListEligibleRewards(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", rewards[0].Name)
	assert.Equal(t, int32(2), repo.loads.Load())
}
