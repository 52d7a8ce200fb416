package application

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardhub/internal/service/reward/domain"
	"rewardhub/internal/service/reward/infrastructure"
)

func newBulkStore(t *testing.T) *infrastructure.MemoryStore {
	t.Helper()
	store := infrastructure.NewMemoryStore(time.Second, nil)
	require.NoError(t, store.CreateAll(context.Background(), []*domain.Reward{
		{Name: "welcome points", Type: domain.RewardTypePoint, TotalQuantity: 10, RemainingQuantity: 10, Weight: 1},
	}))
	return store
}

func TestBulkAssignRangeWritesChunks(t *testing.T) {
	store := newBulkStore(t)
	b := NewBulkAssigner(BulkConfig{Parallelism: 4}, store, store, NewLocalJobLocker(), nil)

	res, err := b.AssignRange(context.Background(), 1, 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, &BulkResult{RewardID: 1, Users: 1000, Chunks: 10, Records: 1000}, res)

	n, err := store.CountByReward(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)

	// 批量路径不扣减库存
	r, err := store.FindByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.RemainingQuantity)
}

func TestBulkAssignUnknownReward(t *testing.T) {
	store := newBulkStore(t)
	b := NewBulkAssigner(BulkConfig{}, store, store, NewLocalJobLocker(), nil)

	_, err := b.Assign(context.Background(), 99, []int64{1, 2})
	assert.ErrorIs(t, err, domain.ErrRewardNotFound)
	assert.Empty(t, store.Records())
}

func TestBulkAssignRejectsConcurrentJob(t *testing.T) {
	store := newBulkStore(t)
	locker := NewLocalJobLocker()
	unlock, err := locker.Acquire(context.Background(), "bulk-issuance-1")
	require.NoError(t, err)

	b := NewBulkAssigner(BulkConfig{}, store, store, locker, nil)
	_, err = b.Assign(context.Background(), 1, []int64{1})
	assert.ErrorIs(t, err, domain.ErrJobInProgress)

	require.NoError(t, unlock())
	_, err = b.Assign(context.Background(), 1, []int64{1})
	assert.NoError(t, err)
}

type failingIssuance struct {
	*infrastructure.MemoryStore
}

func (f failingIssuance) AppendBatch(context.Context, []domain.IssuanceRecord) error {
	return errors.New("disk full")
}

func TestBulkAssignChunkFailure(t *testing.T) {
	store := newBulkStore(t)
	locker := NewLocalJobLocker()
	b := NewBulkAssigner(BulkConfig{ChunkSize: 2}, store, failingIssuance{store}, locker, nil)

	_, err := b.AssignRange(context.Background(), 1, 1, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// 失败后锁已释放
	unlock, err := locker.Acquire(context.Background(), "bulk-issuance-1")
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestBulkAssignRangeValidation(t *testing.T) {
	store := newBulkStore(t)
	b := NewBulkAssigner(BulkConfig{}, store, store, NewLocalJobLocker(), nil)

	for _, r := range [][2]int64{{0, 10}, {10, 5}, {-1, 3}} {
		_, err := b.AssignRange(context.Background(), 1, r[0], r[1])
		assert.ErrorIs(t, err, domain.ErrInvalidRange, "range %v", r)
	}
}

func TestBulkAssignRangeRejectsOversizedRange(t *testing.T) {
	store := newBulkStore(t)
	b := NewBulkAssigner(BulkConfig{MaxRange: 10}, store, store, NewLocalJobLocker(), nil)

	testCases := []struct {
		from, to int64
		ok       bool
	}{
		{from: 1, to: 10, ok: true},
		{from: 1, to: 11},
		{from: 1, to: math.MaxInt64},
		{from: math.MaxInt64 - 9, to: math.MaxInt64, ok: true},
	}
	for _, tc := range testCases {
		var (
			res *BulkResult
			err error
		)
		require.NotPanics(t, func() {
			res, err = b.AssignRange(context.Background(), 1, tc.from, tc.to)
		})
		if tc.ok {
			require.NoError(t, err)
			assert.Equal(t, 10, res.Users)
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidRange, "[%d, %d]", tc.from, tc.to)
		assert.True(t, domain.IsBusiness(err))
	}
	assert.Len(t, store.Records(), 20)
}

func TestBulkAssignDefaultMaxRange(t *testing.T) {
	store := newBulkStore(t)
	b := NewBulkAssigner(BulkConfig{}, store, store, NewLocalJobLocker(), nil)

	_, err := b.AssignRange(context.Background(), 1, 1, DefaultMaxRange+1)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
	assert.Empty(t, store.Records())
}

func TestChunk(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5}
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, chunk(ids, 2))
	assert.Nil(t, chunk(nil, 2))
}
