package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"rewardhub/internal/service/reward/domain"
)

const issuanceBatchSize = 100

// GormRewardRepository 是 domain.RewardRepository 的 GORM 实现。
type GormRewardRepository struct {
	db *gorm.DB
}

func NewGormRewardRepository(db *gorm.DB) *GormRewardRepository {
	return &GormRewardRepository{db: db}
}

// FindAll 按主键顺序返回所有奖品，抽取时的累计区间依赖这个顺序。
func (r *GormRewardRepository) FindAll(ctx context.Context) ([]domain.Reward, error) {
	var models []RewardModel
	if err := r.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "find rewards")
	}
	rewards := make([]domain.Reward, len(models))
	for i := range models {
		rewards[i] = *toDomainReward(&models[i])
	}
	return rewards, nil
}

func (r *GormRewardRepository) FindByID(ctx context.Context, id int64) (*domain.Reward, error) {
	var model RewardModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRewardNotFound
		}
		return nil, errors.Wrapf(err, "find reward %d", id)
	}
	return toDomainReward(&model), nil
}

func (r *GormRewardRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&RewardModel{}).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count rewards")
	}
	return n, nil
}

func (r *GormRewardRepository) CreateAll(ctx context.Context, rewards []*domain.Reward) error {
	if len(rewards) == 0 {
		return nil
	}
	models := make([]*RewardModel, len(rewards))
	for i, rw := range rewards {
		models[i] = fromDomainReward(rw)
	}
	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return errors.Wrap(err, "create rewards")
	}
	for i, m := range models {
		rewards[i].ID = m.ID
	}
	return nil
}

// GormIssuanceRepository 是 domain.IssuanceRepository 的 GORM 实现。
type GormIssuanceRepository struct {
	db *gorm.DB
}

func NewGormIssuanceRepository(db *gorm.DB) *GormIssuanceRepository {
	return &GormIssuanceRepository{db: db}
}

// AppendBatch 无条件批量写入发放流水，不检查也不扣减库存。
func (r *GormIssuanceRepository) AppendBatch(ctx context.Context, records []domain.IssuanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]*IssuanceRecordModel, len(records))
	for i := range records {
		models[i] = fromDomainIssuance(&records[i])
	}
	if err := r.db.WithContext(ctx).CreateInBatches(models, issuanceBatchSize).Error; err != nil {
		return errors.Wrapf(err, "append %d issuance records", len(records))
	}
	return nil
}

func (r *GormIssuanceRepository) CountByReward(ctx context.Context, rewardID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&IssuanceRecordModel{}).Where("reward_id = ?", rewardID).Count(&n).Error
	if err != nil {
		return 0, errors.Wrapf(err, "count issuance for reward %d", rewardID)
	}
	return n, nil
}

// AutoMigrate 创建或更新表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&RewardModel{}, &IssuanceRecordModel{})
}
