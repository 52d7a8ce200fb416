package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"rewardhub/internal/pkg/clock"
	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/pkg/metrics"
	"rewardhub/internal/service/reward/domain"
	"rewardhub/internal/service/reward/domain/port"
)

const (
	DefaultChunkSize = 100
	DefaultMaxRange  = 100000
)

type BulkConfig struct {
	ChunkSize   int
	Parallelism int
	MaxRange    int64 // AssignRange 单次允许的最大用户数
}

// BulkResult 汇总一次批量发放。
type BulkResult struct {
	RewardID int64 `json:"rewardId"`
	Users    int   `json:"users"`
	Chunks   int   `json:"chunks"`
	Records  int64 `json:"records"`
}

// BulkAssigner 是离线批量发放路径：按固定大小分块，每块无条件批量写入发放流水，
// 不检查库存也不限流。同一奖品同时只允许一个任务运行。
type BulkAssigner struct {
	cfg      BulkConfig
	rewards  domain.RewardRepository
	issuance domain.IssuanceRepository
	locker   port.JobLocker
	clock    clock.Clock
}

func NewBulkAssigner(cfg BulkConfig, rewards domain.RewardRepository, issuance domain.IssuanceRepository, locker port.JobLocker, clk clock.Clock) *BulkAssigner {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.MaxRange <= 0 {
		cfg.MaxRange = DefaultMaxRange
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &BulkAssigner{cfg: cfg, rewards: rewards, issuance: issuance, locker: locker, clock: clk}
}

// AssignRange 对 [from, to] 闭区间内的用户 ID 执行批量发放。
// 区间长度超过 MaxRange 时在分配内存前拒绝。
func (b *BulkAssigner) AssignRange(ctx context.Context, rewardID, from, to int64) (*BulkResult, error) {
	if from <= 0 || to < from {
		return nil, errors.Wrapf(domain.ErrInvalidRange, "[%d, %d]", from, to)
	}
	// to-from 不会溢出：from >= 1
	if to-from >= b.cfg.MaxRange {
		return nil, errors.Wrapf(domain.ErrInvalidRange, "[%d, %d] exceeds %d users", from, to, b.cfg.MaxRange)
	}
	users := make([]int64, 0, to-from+1)
	// 按偏移量递增，to 为 MaxInt64 时不会回绕
	for off := int64(0); off <= to-from; off++ {
		users = append(users, from+off)
	}
	return b.Assign(ctx, rewardID, users)
}

// Assign 对给定用户列表执行批量发放。
func (b *BulkAssigner) Assign(ctx context.Context, rewardID int64, userIDs []int64) (*BulkResult, error) {
	if _, err := b.rewards.FindByID(ctx, rewardID); err != nil {
		return nil, err
	}

	unlock, err := b.locker.Acquire(ctx, fmt.Sprintf("bulk-issuance-%d", rewardID))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("reward", rewardID).Msg("failed to release bulk issuance lock")
		}
	}()

	chunks := chunk(userIDs, b.cfg.ChunkSize)
	var written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Parallelism)
	for i, users := range chunks {
		g.Go(func() error {
			now := b.clock.Now()
			records := make([]domain.IssuanceRecord, len(users))
			for j, uid := range users {
				records[j] = domain.IssuanceRecord{UserID: uid, RewardID: rewardID, IssuedAt: now}
			}
			if err := b.issuance.AppendBatch(gctx, records); err != nil {
				return errors.Wrapf(err, "chunk %d", i)
			}
			written.Add(int64(len(records)))
			metrics.IssuedTotal.WithLabelValues("bulk").Add(float64(len(records)))
			logger.Ctx(gctx).Info().Int64("reward", rewardID).Int("chunk", i).Int("size", len(records)).Msg("bulk chunk written")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &BulkResult{RewardID: rewardID, Users: len(userIDs), Chunks: len(chunks), Records: written.Load()}, nil
}

func chunk(ids []int64, size int) [][]int64 {
	var out [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// LocalJobLocker 是进程内的 port.JobLocker，未配置 ZooKeeper 时使用。
type LocalJobLocker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewLocalJobLocker() *LocalJobLocker {
	return &LocalJobLocker{running: make(map[string]struct{})}
}

func (l *LocalJobLocker) Acquire(_ context.Context, resource string) (func() error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.running[resource]; ok {
		return nil, domain.ErrJobInProgress
	}
	l.running[resource] = struct{}{}
	return func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.running, resource)
		return nil
	}, nil
}
