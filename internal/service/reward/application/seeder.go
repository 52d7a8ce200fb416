package application

import (
	"context"

	"github.com/pkg/errors"

	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/service/reward/domain"
)

// DefaultCatalog 是空库启动时写入的初始奖品。
func DefaultCatalog() []*domain.Reward {
	return []*domain.Reward{
		{Name: "100 points", Type: domain.RewardTypePoint, TotalQuantity: 100, RemainingQuantity: 100, Weight: 10},
		{Name: "discount coupon", Type: domain.RewardTypeCoupon, TotalQuantity: 200, RemainingQuantity: 200, Weight: 20},
		{Name: "10 points", Type: domain.RewardTypePoint, TotalQuantity: 700, RemainingQuantity: 700, Weight: 70},
	}
}

// SeedCatalog 仅在目录为空时写入初始奖品，返回是否写入。
func SeedCatalog(ctx context.Context, repo domain.RewardRepository, rewards []*domain.Reward) (bool, error) {
	n, err := repo.Count(ctx)
	if err != nil {
		return false, errors.Wrap(err, "seed: count rewards")
	}
	if n > 0 {
		return false, nil
	}
	if err := repo.CreateAll(ctx, rewards); err != nil {
		return false, errors.Wrap(err, "seed: create rewards")
	}
	logger.Ctx(ctx).Info().Int("count", len(rewards)).Msg("reward catalog seeded")
	return true, nil
}
