package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"rewardhub/internal/pkg/clock"
	"rewardhub/internal/service/reward/domain"
)

// MemoryStore 是进程内的奖品目录、发放流水和库存账本实现，
// 用于 memory 存储模式（本地开发）以及测试。
// 每个奖品一把容量为 1 的信号量，获取时受锁超时约束，语义与行锁一致。
type MemoryStore struct {
	mu          sync.RWMutex
	rewards     map[int64]*memoryReward
	records     []domain.IssuanceRecord
	nextReward  int64
	nextRecord  int64
	lockTimeout time.Duration
	clock       clock.Clock
}

// lock 串行化 Issue，mu 只保护 reward 的读写，读快照不需要等待行锁。
type memoryReward struct {
	lock   chan struct{}
	mu     sync.RWMutex
	reward domain.Reward
}

func NewMemoryStore(lockTimeout time.Duration, clk clock.Clock) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryStore{
		rewards:     make(map[int64]*memoryReward),
		lockTimeout: lockTimeout,
		clock:       clk,
	}
}

func (s *MemoryStore) FindAll(_ context.Context) ([]domain.Reward, error) {
	s.mu.RLock()
	entries := make([]*memoryReward, 0, len(s.rewards))
	for _, e := range s.rewards {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]domain.Reward, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.snapshot(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id int64) (*domain.Reward, error) {
	s.mu.RLock()
	e, ok := s.rewards[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRewardNotFound
	}
	r := s.snapshot(e)
	return &r, nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rewards)), nil
}

func (s *MemoryStore) CreateAll(_ context.Context, rewards []*domain.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for _, r := range rewards {
		if r.ID == 0 {
			s.nextReward++
			r.ID = s.nextReward
		} else if r.ID > s.nextReward {
			s.nextReward = r.ID
		}
		r.CreatedAt, r.UpdatedAt = now, now
		s.rewards[r.ID] = &memoryReward{lock: make(chan struct{}, 1), reward: *r}
	}
	return nil
}

func (s *MemoryStore) AppendBatch(_ context.Context, records []domain.IssuanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.nextRecord++
		r.ID = s.nextRecord
		s.records = append(s.records, r)
	}
	return nil
}

func (s *MemoryStore) CountByReward(_ context.Context, rewardID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.records {
		if r.RewardID == rewardID {
			n++
		}
	}
	return n, nil
}

// Issue 获取奖品锁后扣减库存并追加流水。
func (s *MemoryStore) Issue(ctx context.Context, userID, rewardID int64) (*domain.IssuanceRecord, error) {
	s.mu.RLock()
	e, ok := s.rewards[rewardID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRewardNotFound
	}

	t := time.NewTimer(s.lockTimeout)
	defer t.Stop()
	select {
	case e.lock <- struct{}{}:
	case <-t.C:
		return nil, domain.ErrLockTimeout
	case <-ctx.Done():
		return nil, domain.ErrLockTimeout
	}
	defer func() { <-e.lock }()

	// 持有行锁时只有本协程会写 reward
	r := e.reward
	if err := r.DecreaseQuantity(); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	r.UpdatedAt = now
	e.mu.Lock()
	e.reward = r
	e.mu.Unlock()

	s.mu.Lock()
	s.nextRecord++
	rec := domain.IssuanceRecord{ID: s.nextRecord, UserID: userID, RewardID: rewardID, IssuedAt: now}
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return &rec, nil
}

// Records 返回所有发放流水的副本。
func (s *MemoryStore) Records() []domain.IssuanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.IssuanceRecord(nil), s.records...)
}

func (s *MemoryStore) snapshot(e *memoryReward) domain.Reward {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reward
}
