package domain

import "context"

// RewardRepository 是奖品目录的持久化接口。
type RewardRepository interface {
	FindAll(ctx context.Context) ([]Reward, error)
	FindByID(ctx context.Context, id int64) (*Reward, error)
	Count(ctx context.Context) (int64, error)
	CreateAll(ctx context.Context, rewards []*Reward) error
}

// IssuanceRepository 是发放流水的持久化接口，流水只追加不修改。
type IssuanceRepository interface {
	AppendBatch(ctx context.Context, records []IssuanceRecord) error
	CountByReward(ctx context.Context, rewardID int64) (int64, error)
}
