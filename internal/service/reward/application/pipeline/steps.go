package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/pkg/metrics"
	"rewardhub/internal/service/reward/domain"
)

// RateLimitHandler 按用户做滑动窗口限流。
type RateLimitHandler struct {
	NextHandler
}

func (h *RateLimitHandler) Handle(pc *ParticipationContext) error {
	ctx, span := pc.Tracer.Start(pc.Ctx, "participate.RateLimit")
	defer span.End()

	key := fmt.Sprintf("user:%d", pc.UserID)
	span.SetAttributes(attribute.String("rate_limit.key", key))

	if !pc.Limiter.Admit(ctx, key, pc.LimitPolicy.Limit, pc.LimitPolicy.Window) {
		pc.Outcome = domain.OutcomeRateLimited
		span.SetStatus(codes.Error, domain.ErrThrottled.Error())
		return domain.ErrThrottled
	}
	return h.executeNext(pc)
}

// QuotaHandler 占用当日参与次数，并注册释放次数的补偿动作。
type QuotaHandler struct {
	NextHandler
}

func (h *QuotaHandler) Handle(pc *ParticipationContext) error {
	ctx, span := pc.Tracer.Start(pc.Ctx, "participate.ReserveQuota")
	reservation, err := pc.Quota.Reserve(ctx, pc.UserID)
	if err != nil {
		if domain.IsBusiness(err) {
			pc.Outcome = domain.OutcomeQuotaExceeded
		} else {
			pc.Outcome = domain.OutcomeFailed
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return err
	}
	span.End()

	userID := pc.UserID
	pc.AddCompensation(func(ctx context.Context) {
		if err := pc.Quota.Release(ctx, reservation); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("user", userID).Msg("failed to release participation quota")
			return
		}
		metrics.QuotaCompensationTotal.Inc()
		logger.Ctx(ctx).Warn().Int64("user", userID).Msg("participation quota released after system failure")
	})
	return h.executeNext(pc)
}

// SelectionHandler 读取目录、过滤资格规则并按权重抽取。
// 抽不到奖品是正常结果，链在此结束且不释放次数。
type SelectionHandler struct {
	NextHandler
}

func (h *SelectionHandler) Handle(pc *ParticipationContext) error {
	ctx, span := pc.Tracer.Start(pc.Ctx, "participate.SelectReward")

	rewards, err := pc.Catalog.ListEligibleRewards(ctx)
	if err != nil {
		pc.Outcome = domain.OutcomeIssuanceFailedSystem
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog unavailable")
		span.End()
		return err
	}

	candidates := h.filterEligible(ctx, pc, rewards)
	reward, ok := pc.Pick(candidates)
	if !ok {
		pc.Outcome = domain.OutcomeNoReward
		span.AddEvent("no reward selected")
		span.End()
		logger.Ctx(ctx).Info().Int64("user", pc.UserID).Msg("no reward selected")
		return nil
	}
	span.SetAttributes(attribute.Int64("reward.id", reward.ID))
	span.End()

	pc.Selected = &reward
	return h.executeNext(pc)
}

func (h *SelectionHandler) filterEligible(ctx context.Context, pc *ParticipationContext, rewards []domain.Reward) []domain.Reward {
	if pc.Eligibility == nil {
		return rewards
	}
	fact := domain.EligibilityFact{UserID: pc.UserID, At: pc.Now}
	out := make([]domain.Reward, 0, len(rewards))
	for _, r := range rewards {
		ok, err := pc.Eligibility.Eligible(ctx, r.Eligibility, fact)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("reward", r.ID).Msg("eligibility rule failed, reward excluded")
			continue
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

// IssuanceHandler 调用库存账本完成发放。
type IssuanceHandler struct {
	NextHandler
}

func (h *IssuanceHandler) Handle(pc *ParticipationContext) error {
	ctx, span := pc.Tracer.Start(pc.Ctx, "participate.Issue")
	span.SetAttributes(
		attribute.Int64("reward.id", pc.Selected.ID),
		attribute.Int64("user.id", pc.UserID),
	)

	record, err := pc.Ledger.Issue(ctx, pc.UserID, pc.Selected.ID)
	if err != nil {
		if domain.IsBusiness(err) {
			pc.Outcome = domain.OutcomeIssuanceFailedBusiness
		} else {
			pc.Outcome = domain.OutcomeIssuanceFailedSystem
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return err
	}
	span.End()

	metrics.IssuedTotal.WithLabelValues("interactive").Inc()
	pc.Record = record
	return h.executeNext(pc)
}

// NotificationHandler 投递中奖通知，投递是异步的，不影响参与结果。
type NotificationHandler struct {
	NextHandler
}

func (h *NotificationHandler) Handle(pc *ParticipationContext) error {
	pc.Notifier.Dispatch(pc.UserID, CongratulationMessage(pc.Selected.Name))
	pc.Outcome = domain.OutcomeNotificationEnqueued
	return h.executeNext(pc)
}

func CongratulationMessage(rewardName string) string {
	return "Congratulations! You won " + rewardName + "."
}
