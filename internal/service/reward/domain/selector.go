package domain

import (
	"math/rand/v2"
	"sort"
)

// WeightedPicker 按权重在奖品目录快照中抽取一个奖品。
// 每个权重大于 0 的奖品占据区间 (前一累计值, 前一累计值+权重]，
// 抽取值落在 [1, 总权重] 上，通过对累计边界做上界查找确定奖品。
// 构建后只读，可被任意数量的 goroutine 并发使用。
type WeightedPicker struct {
	boundaries []int64
	rewards    []Reward
	total      int64
}

// NewWeightedPicker 按目录顺序构建累计权重表，跳过权重 <= 0 的奖品。
func NewWeightedPicker(rewards []Reward) *WeightedPicker {
	p := &WeightedPicker{}
	for _, r := range rewards {
		if !r.Selectable() {
			continue
		}
		p.total += r.Weight
		p.boundaries = append(p.boundaries, p.total)
		p.rewards = append(p.rewards, r)
	}
	return p
}

func (p *WeightedPicker) TotalWeight() int64 {
	return p.total
}

// Pick 随机抽取一个奖品，总权重为 0 时返回 false。
func (p *WeightedPicker) Pick() (Reward, bool) {
	if p.total <= 0 {
		return Reward{}, false
	}
	return p.PickWith(rand.Int64N(p.total) + 1)
}

// PickWith 用给定的抽取值选择奖品，draw 需在 [1, TotalWeight] 内。
func (p *WeightedPicker) PickWith(draw int64) (Reward, bool) {
	if p.total <= 0 || draw < 1 || draw > p.total {
		return Reward{}, false
	}
	i := sort.Search(len(p.boundaries), func(i int) bool { return p.boundaries[i] >= draw })
	return p.rewards[i], true
}

// SelectReward 是一次性抽取的便捷函数。
func SelectReward(rewards []Reward) (Reward, bool) {
	return NewWeightedPicker(rewards).Pick()
}
