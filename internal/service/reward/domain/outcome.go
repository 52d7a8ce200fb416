package domain

import (
	"errors"
	"time"
)

// Outcome 是一次参与请求的终态。
type Outcome string

const (
	OutcomeRateLimited            Outcome = "RATE_LIMITED"
	OutcomeQuotaExceeded          Outcome = "QUOTA_EXCEEDED"
	OutcomeNoReward               Outcome = "NO_REWARD"
	OutcomeIssuanceFailedBusiness Outcome = "ISSUANCE_FAILED_BUSINESS"
	OutcomeIssuanceFailedSystem   Outcome = "ISSUANCE_FAILED_SYSTEM"
	OutcomeNotificationEnqueued   Outcome = "NOTIFICATION_ENQUEUED"
	// OutcomeFailed 用于在配额预留之前出现的基础设施错误
	OutcomeFailed Outcome = "FAILED"
)

// Success 表示该终态对调用方而言不是错误。
func (o Outcome) Success() bool {
	return o == OutcomeNoReward || o == OutcomeNotificationEnqueued
}

// ParticipationResult 描述一次参与的结果，Granted 为空表示未中奖。
type ParticipationResult struct {
	UserID  int64
	Outcome Outcome
	Granted *Reward
	Record  *IssuanceRecord
}

// OutcomeOf 把错误映射为终态，用于未拿到结果对象的调用方（例如装饰器）。
func OutcomeOf(err error) Outcome {
	switch KindOf(err) {
	case KindNone:
		return OutcomeNotificationEnqueued
	case KindTransient:
		return OutcomeRateLimited
	case KindBusiness:
		if errors.Is(err, ErrQuotaExceeded) {
			return OutcomeQuotaExceeded
		}
		return OutcomeIssuanceFailedBusiness
	default:
		return OutcomeIssuanceFailedSystem
	}
}

// Notification 是发往用户的一条通知。
type Notification struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// EligibilityFact 是评估奖品资格规则时可用的事实。
type EligibilityFact struct {
	UserID int64
	At     time.Time
}
