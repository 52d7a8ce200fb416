package adapter

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"rewardhub/internal/pkg/redis"
)

const invalidTokensKey = "notification:invalid_tokens"

// RedisTokenStore 把推送凭证失效的用户记录在一个 Redis 集合中，多实例共享。
type RedisTokenStore struct {
	redisClient *redis.Client
}

func NewRedisTokenStore(redisClient *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{redisClient: redisClient}
}

func (s *RedisTokenStore) Purge(ctx context.Context, userID int64) error {
	if err := s.redisClient.GetClient().SAdd(ctx, invalidTokensKey, strconv.FormatInt(userID, 10)).Err(); err != nil {
		return errors.Wrapf(err, "purge token for user %d", userID)
	}
	return nil
}

func (s *RedisTokenStore) IsPurged(ctx context.Context, userID int64) (bool, error) {
	ok, err := s.redisClient.GetClient().SIsMember(ctx, invalidTokensKey, strconv.FormatInt(userID, 10)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "check token for user %d", userID)
	}
	return ok, nil
}

// MemoryTokenStore 是进程内实现，用于 memory 存储模式和测试。
type MemoryTokenStore struct {
	mu     sync.RWMutex
	purged map[int64]struct{}
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{purged: make(map[int64]struct{})}
}

func (s *MemoryTokenStore) Purge(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged[userID] = struct{}{}
	return nil
}

func (s *MemoryTokenStore) IsPurged(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.purged[userID]
	return ok, nil
}
