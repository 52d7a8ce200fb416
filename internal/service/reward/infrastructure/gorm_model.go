package infrastructure

import (
	"time"

	"rewardhub/internal/service/reward/domain"
)

// RewardModel 对应数据库中的 reward 表
type RewardModel struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	Name              string `gorm:"size:128;not null"`
	Type              string `gorm:"size:32;not null"`
	TotalQuantity     int64  `gorm:"not null"`
	RemainingQuantity int64  `gorm:"not null"`
	Weight            int64  `gorm:"not null;default:0"`
	Eligibility       string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName 指定 GORM 应该使用的表名
func (RewardModel) TableName() string {
	return "reward"
}

// IssuanceRecordModel 对应数据库中的 reward_issuance 表，只追加不修改
type IssuanceRecordModel struct {
	ID       int64     `gorm:"primaryKey;autoIncrement"`
	UserID   int64     `gorm:"not null;index:idx_issuance_user"`
	RewardID int64     `gorm:"not null;index:idx_issuance_reward"`
	IssuedAt time.Time `gorm:"not null"`
}

// TableName 指定 GORM 应该使用的表名
func (IssuanceRecordModel) TableName() string {
	return "reward_issuance"
}

// --- 类型转换函数 ---

func toDomainReward(m *RewardModel) *domain.Reward {
	return &domain.Reward{
		ID:                m.ID,
		Name:              m.Name,
		Type:              domain.RewardType(m.Type),
		TotalQuantity:     m.TotalQuantity,
		RemainingQuantity: m.RemainingQuantity,
		Weight:            m.Weight,
		Eligibility:       m.Eligibility,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func fromDomainReward(r *domain.Reward) *RewardModel {
	return &RewardModel{
		ID:                r.ID,
		Name:              r.Name,
		Type:              string(r.Type),
		TotalQuantity:     r.TotalQuantity,
		RemainingQuantity: r.RemainingQuantity,
		Weight:            r.Weight,
		Eligibility:       r.Eligibility,
	}
}

func toDomainIssuance(m *IssuanceRecordModel) *domain.IssuanceRecord {
	return &domain.IssuanceRecord{
		ID:       m.ID,
		UserID:   m.UserID,
		RewardID: m.RewardID,
		IssuedAt: m.IssuedAt,
	}
}

func fromDomainIssuance(r *domain.IssuanceRecord) *IssuanceRecordModel {
	return &IssuanceRecordModel{
		ID:       r.ID,
		UserID:   r.UserID,
		RewardID: r.RewardID,
		IssuedAt: r.IssuedAt,
	}
}
