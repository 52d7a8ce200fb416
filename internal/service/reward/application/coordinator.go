// internal/service/reward/application/coordinator.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rewardhub/internal/pkg/clock"
	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/service/reward/application/pipeline"
	"rewardhub/internal/service/reward/domain"
	"rewardhub/internal/service/reward/domain/port"
)

// Participator 是参与流程对外暴露的唯一入口，装饰器与协调器都实现它。
type Participator interface {
	Participate(ctx context.Context, userID int64) (*domain.ParticipationResult, error)
}

// ParticipatorFunc 让普通函数实现 Participator。
type ParticipatorFunc func(ctx context.Context, userID int64) (*domain.ParticipationResult, error)

func (f ParticipatorFunc) Participate(ctx context.Context, userID int64) (*domain.ParticipationResult, error) {
	return f(ctx, userID)
}

// CoordinatorConfig 是参与流程的可调参数。
type CoordinatorConfig struct {
	UserRateLimit  int
	UserRateWindow time.Duration
	Timeout        time.Duration
}

// IssuanceCoordinator 编排 限流 → 配额 → 抽取 → 发放 → 通知。
// 只有系统故障会触发配额补偿，业务失败与未中奖都会消耗当日次数。
type IssuanceCoordinator struct {
	cfg    CoordinatorConfig
	tracer trace.Tracer
	clock  clock.Clock

	limiter     port.RateLimiter
	quota       port.ParticipationQuota
	catalog     port.RewardCatalog
	eligibility port.EligibilityEngine
	ledger      port.StockLedger
	notifier    port.Notifier
	pick        pipeline.Picker
}

// CoordinatorOption 用于替换可选依赖。
type CoordinatorOption func(*IssuanceCoordinator)

// WithEligibility 启用奖品资格规则过滤。
func WithEligibility(e port.EligibilityEngine) CoordinatorOption {
	return func(c *IssuanceCoordinator) { c.eligibility = e }
}

// WithPicker 替换抽取函数。
func WithPicker(p pipeline.Picker) CoordinatorOption {
	return func(c *IssuanceCoordinator) { c.pick = p }
}

func WithClock(clk clock.Clock) CoordinatorOption {
	return func(c *IssuanceCoordinator) { c.clock = clk }
}

func NewIssuanceCoordinator(cfg CoordinatorConfig, tracer trace.Tracer, limiter port.RateLimiter, quota port.ParticipationQuota, catalog port.RewardCatalog, ledger port.StockLedger, notifier port.Notifier, opts ...CoordinatorOption) *IssuanceCoordinator {
	c := &IssuanceCoordinator{
		cfg: cfg, tracer: tracer, clock: clock.RealClock{},
		limiter: limiter, quota: quota, catalog: catalog,
		ledger: ledger, notifier: notifier,
		pick: domain.SelectReward,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Participate 执行一次参与。返回的结果在错误时同样携带终态。
func (c *IssuanceCoordinator) Participate(ctx context.Context, userID int64) (*domain.ParticipationResult, error) {
	ctx, span := c.tracer.Start(ctx, "app.Participate")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	pc := &pipeline.ParticipationContext{
		Ctx:         ctx,
		UserID:      userID,
		Now:         c.clock.Now(),
		Tracer:      c.tracer,
		Limiter:     c.limiter,
		LimitPolicy: pipeline.LimitPolicy{Limit: c.cfg.UserRateLimit, Window: c.cfg.UserRateWindow},
		Quota:       c.quota,
		Catalog:     c.catalog,
		Eligibility: c.eligibility,
		Pick:        c.pick,
		Ledger:      c.ledger,
		Notifier:    c.notifier,
	}

	err := pipeline.Build().Handle(pc)
	result := &domain.ParticipationResult{
		UserID:  userID,
		Outcome: pc.Outcome,
		Record:  pc.Record,
	}
	if pc.Record != nil {
		result.Granted = pc.Selected
	}
	span.SetAttributes(attribute.String("participation.outcome", string(pc.Outcome)))

	if err == nil {
		return result, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if domain.IsSystem(err) {
		// 补偿不随请求取消而中断
		pc.TriggerCompensation(context.WithoutCancel(ctx))
		logger.Ctx(ctx).Error().Err(err).Int64("user", userID).Str("outcome", string(pc.Outcome)).Msg("participation failed")
	} else {
		logger.Ctx(ctx).Info().Err(err).Int64("user", userID).Str("outcome", string(pc.Outcome)).Msg("participation rejected")
	}
	return result, err
}
