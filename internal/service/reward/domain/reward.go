package domain

import "time"

// RewardType 是奖品类型标签，核心流程不关心其含义。
type RewardType string

const (
	RewardTypePoint  RewardType = "POINT"
	RewardTypeCoupon RewardType = "COUPON"
)

// Reward 是奖品目录中的一项。
// TotalQuantity 创建后不可变；RemainingQuantity 只能在库存账本的排他锁内递减。
type Reward struct {
	ID                int64
	Name              string
	Type              RewardType
	TotalQuantity     int64
	RemainingQuantity int64
	Weight            int64
	// Eligibility 是可选的 CEL 表达式，为空表示所有用户都可参与抽取
	Eligibility string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewReward 创建一个满库存的奖品。
func NewReward(name string, typ RewardType, quantity, weight int64) (*Reward, error) {
	if name == "" {
		return nil, ErrInvalidReward
	}
	if quantity < 0 || weight < 0 {
		return nil, ErrInvalidReward
	}
	return &Reward{
		Name:              name,
		Type:              typ,
		TotalQuantity:     quantity,
		RemainingQuantity: quantity,
		Weight:            weight,
	}, nil
}

// DecreaseQuantity 扣减一个库存，库存为 0 时返回 ErrInsufficientStock。
func (r *Reward) DecreaseQuantity() error {
	if r.RemainingQuantity <= 0 {
		return ErrInsufficientStock
	}
	r.RemainingQuantity--
	return nil
}

func (r *Reward) Selectable() bool {
	return r.Weight > 0
}

// IssuanceRecord 是不可变的发放流水，每次成功扣减库存写入一条。
type IssuanceRecord struct {
	ID       int64
	UserID   int64
	RewardID int64
	IssuedAt time.Time
}
