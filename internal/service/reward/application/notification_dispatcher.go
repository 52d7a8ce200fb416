package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"rewardhub/internal/pkg/clock"
	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/pkg/metrics"
	"rewardhub/internal/service/reward/domain"
	"rewardhub/internal/service/reward/domain/port"
)

// DispatcherConfig 是通知舱壁的参数。
// MaxWait 为 0 时舱壁满直接拒绝，否则最多排队等待 MaxWait。
type DispatcherConfig struct {
	MaxConcurrent int64
	MaxWait       time.Duration
	SendTimeout   time.Duration
}

// DispatcherStats 是调度器的累计计数。
type DispatcherStats struct {
	Delivered int64
	Failed    int64
	Rejected  int64
	Skipped   int64
}

// NotificationDispatcher 实现了 port.Notifier。Dispatch 立即返回，
// 通知在独立的 goroutine 中发送，全局并发受信号量舱壁限制，
// 失败只记录日志并清除该用户的推送凭证，不会影响发放流程。
type NotificationDispatcher struct {
	cfg    DispatcherConfig
	sender port.NotificationSender
	tokens port.TokenStore
	sem    *semaphore.Weighted
	clock  clock.Clock

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	skipped   atomic.Int64
}

func NewNotificationDispatcher(cfg DispatcherConfig, sender port.NotificationSender, tokens port.TokenStore, clk clock.Clock) *NotificationDispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &NotificationDispatcher{
		cfg:    cfg,
		sender: sender,
		tokens: tokens,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		clock:  clk,
	}
}

// Dispatch 提交一条通知，调用方从不阻塞。
func (d *NotificationDispatcher) Dispatch(userID int64, message string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.rejected.Add(1)
		metrics.NotificationTotal.WithLabelValues("rejected").Inc()
		return
	}

	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   message,
		CreatedAt: d.clock.Now(),
	}
	d.wg.Add(1)
	go d.run(n)
}

func (d *NotificationDispatcher) run(n domain.Notification) {
	defer d.wg.Done()
	ctx := context.Background()
	log := logger.Ctx(ctx)

	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			metrics.NotificationTotal.WithLabelValues("panic").Inc()
			log.Error().Interface("panic", r).Int64("user", n.UserID).Msg("notification dispatch panicked")
		}
	}()

	if !d.acquire(ctx) {
		d.rejected.Add(1)
		metrics.NotificationTotal.WithLabelValues("rejected").Inc()
		log.Warn().Int64("user", n.UserID).Msg("notification bulkhead full, dispatch rejected")
		return
	}
	metrics.BulkheadInFlight.Inc()
	defer func() {
		metrics.BulkheadInFlight.Dec()
		d.sem.Release(1)
	}()

	purged, err := d.tokens.IsPurged(ctx, n.UserID)
	if err != nil {
		log.Warn().Err(err).Int64("user", n.UserID).Msg("token lookup failed, sending anyway")
	}
	if purged {
		d.skipped.Add(1)
		metrics.NotificationTotal.WithLabelValues("skipped").Inc()
		return
	}

	sendCtx := ctx
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}
	if err := d.sender.Send(sendCtx, n); err != nil {
		d.failed.Add(1)
		metrics.NotificationTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Int64("user", n.UserID).Msg("notification failed, purging token")
		if perr := d.tokens.Purge(ctx, n.UserID); perr != nil {
			log.Error().Err(perr).Int64("user", n.UserID).Msg("failed to purge token")
		}
		return
	}
	d.delivered.Add(1)
	metrics.NotificationTotal.WithLabelValues("delivered").Inc()
}

func (d *NotificationDispatcher) acquire(ctx context.Context) bool {
	if d.cfg.MaxWait <= 0 {
		return d.sem.TryAcquire(1)
	}
	waitCtx, cancel := context.WithTimeout(ctx, d.cfg.MaxWait)
	defer cancel()
	return d.sem.Acquire(waitCtx, 1) == nil
}

// Close 停止接收新通知并等待已提交的通知完成。
func (d *NotificationDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *NotificationDispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Rejected:  d.rejected.Load(),
		Skipped:   d.skipped.Load(),
	}
}
