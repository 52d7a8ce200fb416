package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/service/reward/domain"
	"rewardhub/internal/service/reward/domain/port"
)

// LimitPolicy 是单用户滑动窗口限流参数。
type LimitPolicy struct {
	Limit  int
	Window time.Duration
}

// Picker 从目录快照中抽取奖品。
type Picker func(rewards []domain.Reward) (domain.Reward, bool)

// ParticipationContext 在责任链中传递一次参与请求的上下文与中间状态。
type ParticipationContext struct {
	Ctx    context.Context
	UserID int64
	Now    time.Time
	Tracer trace.Tracer

	// 出站端口
	Limiter     port.RateLimiter
	LimitPolicy LimitPolicy
	Quota       port.ParticipationQuota
	Catalog     port.RewardCatalog
	Eligibility port.EligibilityEngine
	Pick        Picker
	Ledger      port.StockLedger
	Notifier    port.Notifier

	// 链上各步骤写入的状态
	Outcome  domain.Outcome
	Selected *domain.Reward
	Record   *domain.IssuanceRecord

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 注册补偿动作，后注册的先执行。
func (c *ParticipationContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 依次执行已注册的补偿动作，每个动作只执行一次。
func (c *ParticipationContext) TriggerCompensation(ctx context.Context) int {
	c.compLock.Lock()
	comps := c.compensations
	c.compensations = nil
	c.compLock.Unlock()

	if len(comps) > 0 {
		logger.Ctx(ctx).Info().Int64("user", c.UserID).Int("count", len(comps)).Msg("executing compensations")
	}
	for _, comp := range comps {
		comp(ctx)
	}
	return len(comps)
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(pc *ParticipationContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(pc *ParticipationContext) error {
	if h.next != nil {
		return h.next.Handle(pc)
	}
	return nil
}

// Build 按固定顺序串联参与流程的各个步骤。
func Build() Handler {
	head := &RateLimitHandler{}
	head.SetNext(&QuotaHandler{}).
		SetNext(&SelectionHandler{}).
		SetNext(&IssuanceHandler{}).
		SetNext(&NotificationHandler{})
	return head
}
