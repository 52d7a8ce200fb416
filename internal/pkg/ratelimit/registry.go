// internal/pkg/ratelimit/registry.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Registry 是进程内的令牌桶限流器集合，按限流器名称（而非业务 key）索引。
// 用作分布式限流的降级路径以及全局入口限流。
type Registry struct {
	mu           sync.Mutex
	entries      map[string]*entry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type entry struct {
	lim      *rate.Limiter
	pinned   bool
	lastSeen time.Time
}

type Option func(*Registry)

func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) { r.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) Option {
	return func(r *Registry) { r.cleanupEvery = d }
}

// NewRegistry 创建注册表，rps/burst 为未显式注册的名称使用的默认值。
func NewRegistry(rps float64, burst int, opts ...Option) *Registry {
	r := &Registry{
		entries:      make(map[string]*entry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register 为指定名称设置独立的速率，已注册的限流器不会被清理。
func (r *Registry) Register(name string, rps float64, burst int) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	lim := rate.NewLimiter(rate.Limit(rps), burst)
	r.entries[name] = &entry{lim: lim, pinned: true, lastSeen: time.Now()}
	return lim
}

// Get 返回名称对应的限流器，不存在时按默认值创建。
func (r *Registry) Get(name string) *rate.Limiter {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if ent, ok := r.entries[name]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(r.rps, r.burst)
	r.entries[name] = &entry{lim: lim, lastSeen: now}
	return lim
}

func (r *Registry) Allow(name string) bool {
	return r.Get(name).Allow()
}

func (r *Registry) Cleanup() {
	cutoff := time.Now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	for k, ent := range r.entries {
		if !ent.pinned && ent.lastSeen.Before(cutoff) {
			delete(r.entries, k)
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// StartJanitor 周期性清理空闲限流器，ctx 取消后退出。
func (r *Registry) StartJanitor(ctx context.Context) {
	if r.cleanupEvery <= 0 {
		return
	}
	t := time.NewTicker(r.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.Cleanup()
			}
		}
	}()
}
