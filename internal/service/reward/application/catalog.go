package application

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"rewardhub/internal/pkg/clock"
	"rewardhub/internal/service/reward/domain"
)

// catalogLoadTimeout 约束一次共享加载，加载不随任何单个调用方取消。
const catalogLoadTimeout = 5 * time.Second

// CachedCatalog 是带 TTL 的奖品目录读缓存，实现 port.RewardCatalog。
// 快照可能落后于并发扣减，真正的库存判断只发生在库存账本的锁内。
type CachedCatalog struct {
	repo  domain.RewardRepository
	ttl   time.Duration
	clock clock.Clock

	mu       sync.RWMutex
	snapshot []domain.Reward
	loadedAt time.Time
	valid    bool
	gen      uint64 // 每次 Invalidate 递增，旧代的加载结果不会写回

	group singleflight.Group
}

func NewCachedCatalog(repo domain.RewardRepository, ttl time.Duration, clk clock.Clock) *CachedCatalog {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &CachedCatalog{repo: repo, ttl: ttl, clock: clk}
}

// ListEligibleRewards 返回目录快照的副本。同一代内并发的缓存未命中只触发一次加载，
// 每个调用方只按自己的 ctx 放弃等待。
func (c *CachedCatalog) ListEligibleRewards(ctx context.Context) ([]domain.Reward, error) {
	if rewards, ok := c.cached(); ok {
		return rewards, nil
	}

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	ch := c.group.DoChan("catalog-"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		if rewards, ok := c.cached(); ok {
			return rewards, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), catalogLoadTimeout)
		defer cancel()
		rewards, err := c.repo.FindAll(loadCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.snapshot = rewards
			c.loadedAt = c.clock.Now()
			c.valid = true
		}
		c.mu.Unlock()
		return rewards, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]domain.Reward)), nil
	}
}

// Invalidate 使缓存失效，下一次读取会重新加载。进行中的加载结果被丢弃。
func (c *CachedCatalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.snapshot = nil
	c.gen++
}

func (c *CachedCatalog) cached() ([]domain.Reward, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || (c.ttl > 0 && c.clock.Now().Sub(c.loadedAt) >= c.ttl) {
		return nil, false
	}
	return clone(c.snapshot), true
}

func clone(rewards []domain.Reward) []domain.Reward {
	return append([]domain.Reward(nil), rewards...)
}
