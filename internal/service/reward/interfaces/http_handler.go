package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/service/reward/application"
	"rewardhub/internal/service/reward/domain"
)

// QuotaReader 是查询当日参与次数所需的最小接口。
type QuotaReader interface {
	Used(ctx context.Context, userID int64) (int64, error)
	DailyCap() int64
}

// Catalog 是目录查询与缓存失效接口，*application.CachedCatalog 满足它。
type Catalog interface {
	ListEligibleRewards(ctx context.Context) ([]domain.Reward, error)
	Invalidate()
}

// BulkRunner 是管理端批量发放入口。
type BulkRunner interface {
	AssignRange(ctx context.Context, rewardID, from, to int64) (*application.BulkResult, error)
}

// IssuanceCounter 按奖品统计已写入的发放流水。
type IssuanceCounter interface {
	CountByReward(ctx context.Context, rewardID int64) (int64, error)
}

// BulkRange 是未指定 from/to 时的默认用户区间，Max 限制单次请求的用户数。
type BulkRange struct {
	From int64
	To   int64
	Max  int64
}

// RewardHandler 封装了 reward 服务的 HTTP 处理器
type RewardHandler struct {
	participator application.Participator
	quota        QuotaReader
	catalog      Catalog
	bulk         BulkRunner
	issued       IssuanceCounter
	bulkRange    BulkRange
}

func NewRewardHandler(p application.Participator, quota QuotaReader, catalog Catalog, bulk BulkRunner, issued IssuanceCounter, bulkRange BulkRange) *RewardHandler {
	return &RewardHandler{participator: p, quota: quota, catalog: catalog, bulk: bulk, issued: issued, bulkRange: bulkRange}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *RewardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/v1/rewards/participate", h.handleParticipate)
	mux.HandleFunc("GET /api/v1/rewards/participations", h.handleParticipations)
	mux.HandleFunc("GET /api/v1/rewards", h.handleListRewards)
	mux.HandleFunc("POST /api/v1/admin/campaign/start", h.handleStartCampaign)
	mux.HandleFunc("POST /api/v1/admin/rewards/cache/invalidate", h.handleInvalidateCache)
	mux.HandleFunc("GET /api/v1/admin/rewards/{id}/issuances", h.handleIssuanceCount)
}

type rewardView struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Type              string `json:"type"`
	TotalQuantity     int64  `json:"totalQuantity"`
	RemainingQuantity int64  `json:"remainingQuantity"`
	Weight            int64  `json:"weight"`
}

func toView(r *domain.Reward) *rewardView {
	if r == nil {
		return nil
	}
	return &rewardView{
		ID:                r.ID,
		Name:              r.Name,
		Type:              string(r.Type),
		TotalQuantity:     r.TotalQuantity,
		RemainingQuantity: r.RemainingQuantity,
		Weight:            r.Weight,
	}
}

type participateResponse struct {
	UserID   int64       `json:"userId"`
	Outcome  string      `json:"outcome"`
	Granted  *rewardView `json:"granted"`
	RecordID int64       `json:"recordId,omitempty"`
}

type participationsResponse struct {
	UserID    int64 `json:"userId"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
	DailyCap  int64 `json:"dailyCap"`
}

type issuanceCountResponse struct {
	RewardID int64 `json:"rewardId"`
	Issued   int64 `json:"issued"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *RewardHandler) handleParticipate(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	userID, err := positiveInt(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	result, err := h.participator.Participate(ctx, userID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	resp := participateResponse{UserID: userID, Outcome: string(result.Outcome), Granted: toView(result.Granted)}
	if result.Record != nil {
		resp.RecordID = result.Record.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *RewardHandler) handleParticipations(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	userID, err := positiveInt(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	used, err := h.quota.Used(ctx, userID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	remaining := h.quota.DailyCap() - used
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, participationsResponse{UserID: userID, Used: used, Remaining: remaining, DailyCap: h.quota.DailyCap()})
}

func (h *RewardHandler) handleListRewards(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	rewards, err := h.catalog.ListEligibleRewards(ctx)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	views := make([]*rewardView, 0, len(rewards))
	for i := range rewards {
		views = append(views, toView(&rewards[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *RewardHandler) handleStartCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	rewardID, err := positiveInt(r, "rewardId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	from, to := h.bulkRange.From, h.bulkRange.To
	if r.URL.Query().Has("from") {
		if from, err = positiveInt(r, "from"); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
	}
	if r.URL.Query().Has("to") {
		if to, err = positiveInt(r, "to"); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
	}
	if to < from {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "to must not be less than from")
		return
	}
	if h.bulkRange.Max > 0 && to-from >= h.bulkRange.Max {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("range covers more than %d users", h.bulkRange.Max))
		return
	}

	// 批量任务不随请求断开而中止
	result, err := h.bulk.AssignRange(context.WithoutCancel(ctx), rewardID, from, to)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	h.catalog.Invalidate()
	writeJSON(w, http.StatusOK, result)
}

func (h *RewardHandler) handleInvalidateCache(w http.ResponseWriter, _ *http.Request) {
	h.catalog.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (h *RewardHandler) handleIssuanceCount(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	rewardID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || rewardID <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "id must be a positive integer")
		return
	}
	n, err := h.issued.CountByReward(ctx, rewardID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, issuanceCountResponse{RewardID: rewardID, Issued: n})
}

func positiveInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.Errorf("%s is required", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

// writeDomainError 根据错误类型返回不同的 HTTP 状态码
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrThrottled):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", err.Error())
	case errors.Is(err, domain.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case domain.IsBusiness(err):
		writeError(w, http.StatusBadRequest, "BUSINESS_ERROR", err.Error())
	case errors.Is(err, domain.ErrLockTimeout), errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", err.Error())
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
