package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"rewardhub/internal/pkg/clock"
	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/pkg/redis"
	"rewardhub/internal/service/reward/domain"
)

const (
	releaseQuotaScriptName = "release_quota"
	DefaultDailyCap        = 3
	dayLayout              = "20060102"
)

// RedisParticipationQuota 是 port.ParticipationQuota 的 Redis 实现。
// 计数 key 为 participation:<userId>:<yyyyMMdd>，在所配置时区的当日结束时过期。
type RedisParticipationQuota struct {
	redisClient *redis.Client
	dailyCap    int64
	location    *time.Location
	clock       clock.Clock
}

func NewRedisParticipationQuota(redisClient *redis.Client, dailyCap int64, loc *time.Location, clk clock.Clock) (*RedisParticipationQuota, error) {
	if err := redisClient.LoadScriptFromContent(releaseQuotaScriptName, releaseQuotaScript); err != nil {
		return nil, fmt.Errorf("failed to load release quota script: %w", err)
	}
	if dailyCap <= 0 {
		dailyCap = DefaultDailyCap
	}
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &RedisParticipationQuota{redisClient: redisClient, dailyCap: dailyCap, location: loc, clock: clk}, nil
}

// Reserve 占用一次参与机会。INCR 本身是原子的，超限后的回退是第二次操作。
func (q *RedisParticipationQuota) Reserve(ctx context.Context, userID int64) (domain.QuotaReservation, error) {
	now := q.clock.Now().In(q.location)
	r := domain.QuotaReservation{UserID: userID, Day: now.Format(dayLayout)}
	key := reservationKey(r)
	rdb := q.redisClient.GetClient()

	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return domain.QuotaReservation{}, errors.Wrapf(domain.ErrStoreUnavailable, "quota incr %s: %v", key, err)
	}

	if count == 1 {
		if err := rdb.Expire(ctx, key, untilEndOfDay(now)).Err(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("key", key).Msg("failed to set quota expiry")
		}
	}

	if count > q.dailyCap {
		if err := rdb.Decr(ctx, key).Err(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("key", key).Msg("failed to roll back quota increment")
		}
		return domain.QuotaReservation{}, domain.ErrQuotaExceeded
	}
	return r, nil
}

// Release 归还一次参与机会。跨过零点后仍作用于占用时那一天的 key；
// 计数已过期或为 0 时不做任何事。
func (q *RedisParticipationQuota) Release(ctx context.Context, r domain.QuotaReservation) error {
	key := reservationKey(r)
	if _, err := q.redisClient.RunScript(ctx, releaseQuotaScriptName, []string{key}); err != nil {
		return errors.Wrapf(domain.ErrStoreUnavailable, "quota release %s: %v", key, err)
	}
	return nil
}

// Used 返回用户当日已用次数。
func (q *RedisParticipationQuota) Used(ctx context.Context, userID int64) (int64, error) {
	key := q.key(userID, q.clock.Now().In(q.location))
	v, err := q.redisClient.GetClient().Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(domain.ErrStoreUnavailable, "quota get %s: %v", key, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "quota value %q", v)
	}
	return n, nil
}

func (q *RedisParticipationQuota) DailyCap() int64 {
	return q.dailyCap
}

func (q *RedisParticipationQuota) key(userID int64, now time.Time) string {
	return QuotaKey(userID, now)
}

// QuotaKey 返回配额计数 key，now 需已转换到配额时区。
func QuotaKey(userID int64, now time.Time) string {
	return reservationKey(domain.QuotaReservation{UserID: userID, Day: now.Format(dayLayout)})
}

func reservationKey(r domain.QuotaReservation) string {
	return fmt.Sprintf("participation:%d:%s", r.UserID, r.Day)
}

// untilEndOfDay 返回距离 now 所在时区下一个零点的时长。
func untilEndOfDay(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}

var releaseQuotaScript = `
-- KEYS[1]: 配额计数 key
local current = tonumber(redis.call('get', KEYS[1]))
if current and current > 0 then
    return redis.call('decr', KEYS[1])
end
return -1
`
