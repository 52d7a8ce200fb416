package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rewardhub/internal/pkg/clock"
	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/pkg/metrics"
	"rewardhub/internal/pkg/ratelimit"
	"rewardhub/internal/pkg/redis"
)

const slidingWindowScriptName = "sliding_window"

// SlidingWindowLimiter 是 port.RateLimiter 的 Redis 实现。
// Redis 不可用时降级到进程内令牌桶，按限流器名称而不是业务 key 限流。
type SlidingWindowLimiter struct {
	redisClient  *redis.Client
	fallback     *ratelimit.Registry
	fallbackName string
	clock        clock.Clock
}

// NewSlidingWindowLimiter 创建限流器并加载 Lua 脚本。
func NewSlidingWindowLimiter(redisClient *redis.Client, fallback *ratelimit.Registry, fallbackName string, clk clock.Clock) (*SlidingWindowLimiter, error) {
	if err := redisClient.LoadScriptFromContent(slidingWindowScriptName, slidingWindowScript); err != nil {
		return nil, fmt.Errorf("failed to load sliding window script: %w", err)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &SlidingWindowLimiter{
		redisClient:  redisClient,
		fallback:     fallback,
		fallbackName: fallbackName,
		clock:        clk,
	}, nil
}

// Admit 在 window 内最多放行 limit 次。
func (l *SlidingWindowLimiter) Admit(ctx context.Context, key string, limit int, window time.Duration) bool {
	now := l.clock.Now().UnixMilli()
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}

	keys := []string{rateLimitKey(key)}
	// 成员带上 uuid，同一毫秒内的多次放行各自计数
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	args := []interface{}{now - windowMs, limit, now, member, windowMs}

	result, err := l.redisClient.RunScript(ctx, slidingWindowScriptName, keys, args...)
	if err != nil {
		return l.degrade(ctx, key, err)
	}
	code, ok := result.(int64)
	if !ok {
		return l.degrade(ctx, key, fmt.Errorf("unexpected result type from sliding window script: %T", result))
	}
	return code == 1
}

func (l *SlidingWindowLimiter) degrade(ctx context.Context, key string, cause error) bool {
	metrics.RateLimitFallbackTotal.WithLabelValues(l.fallbackName).Inc()
	logger.Ctx(ctx).Warn().Err(cause).
		Str("key", key).
		Str("limiter", l.fallbackName).
		Msg("distributed rate limiter unavailable, falling back to local limiter")
	return l.fallback.Allow(l.fallbackName)
}

func rateLimitKey(key string) string {
	return "rate_limit:sliding:" + key
}

var slidingWindowScript = `
-- KEYS[1]: 滑动窗口 key, 例如 rate_limit:sliding:user:42
-- ARGV[1]: 窗口起点(毫秒)，分数不大于它的记录被清理
-- ARGV[2]: 窗口内允许的次数
-- ARGV[3]: 当前时间(毫秒)
-- ARGV[4]: 本次记录的成员
-- ARGV[5]: 窗口长度(毫秒)，作为 key 的过期时间

redis.call('zremrangebyscore', KEYS[1], 0, ARGV[1])

local count = redis.call('zcard', KEYS[1])
if count < tonumber(ARGV[2]) then
    redis.call('zadd', KEYS[1], ARGV[3], ARGV[4])
    redis.call('pexpire', KEYS[1], ARGV[5])
    return 1
end
return 0
`
