// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reward"

var (
	// ParticipationTotal 按最终状态统计参与次数
	ParticipationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "participation_total",
		Help:      "Participation attempts by terminal outcome.",
	}, []string{"outcome"})

	ParticipationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "participation_duration_seconds",
		Help:      "Latency of participate calls.",
		Buckets:   prometheus.DefBuckets,
	})

	RateLimitFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_fallback_total",
		Help:      "Rate limit decisions served by the local fallback limiter.",
	}, []string{"limiter"})

	QuotaCompensationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_compensation_total",
		Help:      "Quota reservations released after a system failure.",
	})

	IssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "issued_total",
		Help:      "Issuance records written, by path.",
	}, []string{"path"})

	NotificationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_total",
		Help:      "Notification dispatch results.",
	}, []string{"result"})

	BulkheadInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notification_bulkhead_in_flight",
		Help:      "Notification dispatches currently holding a bulkhead slot.",
	})
)
