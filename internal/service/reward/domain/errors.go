package domain

import "errors"

var (
	ErrThrottled         = errors.New("participation throttled")
	ErrQuotaExceeded     = errors.New("daily participation quota exceeded")
	ErrInsufficientStock = errors.New("reward stock exhausted")
	ErrRewardNotFound    = errors.New("reward not found")
	ErrLockTimeout       = errors.New("timed out acquiring reward lock")
	ErrStoreUnavailable  = errors.New("backing store unavailable")
	ErrInvalidReward     = errors.New("invalid reward definition")
	ErrJobInProgress     = errors.New("bulk issuance already running for reward")
	ErrInvalidRange      = errors.New("invalid bulk user range")
)

// Kind 是错误分类，决定是否补偿以及向调用方暴露的语义。
type Kind string

const (
	KindNone      Kind = ""
	KindTransient Kind = "transient"
	KindBusiness  Kind = "business"
	KindSystem    Kind = "system"
)

// KindOf 对错误进行分类。无法识别的错误一律视为系统错误。
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrThrottled):
		return KindTransient
	case errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrRewardNotFound),
		errors.Is(err, ErrInvalidReward),
		errors.Is(err, ErrJobInProgress),
		errors.Is(err, ErrInvalidRange):
		return KindBusiness
	default:
		return KindSystem
	}
}

func IsBusiness(err error) bool { return KindOf(err) == KindBusiness }

func IsSystem(err error) bool { return KindOf(err) == KindSystem }
