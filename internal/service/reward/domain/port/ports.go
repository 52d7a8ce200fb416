// internal/service/reward/domain/port/ports.go
package port

import (
	"context"
	"time"

	"rewardhub/internal/service/reward/domain"
)

// RateLimiter 在滑动窗口内对 key 进行准入控制。
// 实现在存储不可用时必须自行降级，不向调用方返回错误。
type RateLimiter interface {
	Admit(ctx context.Context, key string, limit int, window time.Duration) bool
}

// ParticipationQuota 管理用户每日参与次数。
type ParticipationQuota interface {
	// Reserve 占用一次当日参与机会，超过上限返回 domain.ErrQuotaExceeded。
	Reserve(ctx context.Context, userID int64) (domain.QuotaReservation, error)
	// Release 是 Reserve 的补偿操作，只归还 r 所在那一天的计数，计数不存在时为空操作。
	Release(ctx context.Context, r domain.QuotaReservation) error
	Used(ctx context.Context, userID int64) (int64, error)
}

// StockLedger 在独立事务中加排他锁扣减库存并写入发放流水。
type StockLedger interface {
	Issue(ctx context.Context, userID, rewardID int64) (*domain.IssuanceRecord, error)
}

// RewardCatalog 返回当前可参与抽取的奖品，允许来自缓存。
type RewardCatalog interface {
	ListEligibleRewards(ctx context.Context) ([]domain.Reward, error)
}

// EligibilityEngine 评估奖品上的资格规则。
type EligibilityEngine interface {
	Eligible(ctx context.Context, rule string, fact domain.EligibilityFact) (bool, error)
}

// Notifier 是即发即弃的通知入口，不得阻塞调用方，也不返回错误。
type Notifier interface {
	Dispatch(userID int64, message string)
}

// NotificationSender 是实际的外部通知通道。
type NotificationSender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// TokenStore 记录推送凭证已失效的用户，后续通知将被跳过。
type TokenStore interface {
	Purge(ctx context.Context, userID int64) error
	IsPurged(ctx context.Context, userID int64) (bool, error)
}

// JobLocker 保证同一资源上只有一个批处理任务在运行。
// 获取失败时返回 domain.ErrJobInProgress。
type JobLocker interface {
	Acquire(ctx context.Context, resource string) (unlock func() error, err error)
}
