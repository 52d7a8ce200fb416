// cmd/reward-service/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"rewardhub/internal/pkg/bootstrap"
	"rewardhub/internal/pkg/clock"
	"rewardhub/internal/pkg/config"
	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/pkg/mq"
	"rewardhub/internal/pkg/mysql"
	"rewardhub/internal/pkg/ratelimit"
	"rewardhub/internal/pkg/redis"
	"rewardhub/internal/service/reward/application"
	"rewardhub/internal/service/reward/domain"
	"rewardhub/internal/service/reward/domain/port"
	"rewardhub/internal/service/reward/infrastructure"
	"rewardhub/internal/service/reward/infrastructure/adapter"
	"rewardhub/internal/service/reward/infrastructure/rule"
	"rewardhub/internal/service/reward/interfaces"
	"rewardhub/internal/tracing"
	"rewardhub/internal/zookeeper"
)

const globalLimiterName = "rewardLimiter"

type hooks []func(ctx context.Context) error

func (h *hooks) add(fn func(ctx context.Context) error) { *h = append(*h, fn) }

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := config.Load(getEnv("REWARD_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.App.LogLevel, cfg.App.Name)

	var shutdown hooks
	if err := run(cfg, &shutdown); err != nil {
		for i := len(shutdown) - 1; i >= 0; i-- {
			_ = shutdown[i](context.Background())
		}
		log.Fatal().Err(err).Msg("reward service failed")
	}
}

func run(cfg *config.Config, shutdown *hooks) error {
	ctx := context.Background()
	clk := clock.RealClock{}

	tp, err := tracing.InitTracerProvider(cfg.App.Name, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return errors.Wrap(err, "init tracer provider")
	}
	shutdown.add(tp.Shutdown)
	tracer := otel.Tracer(cfg.App.Name)

	redisClient, err := redis.NewClient(cfg.Redis.Addrs, redis.Options{
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   cfg.Redis.MaxRetries,
	})
	if err != nil {
		// 限流器可以降级，但配额没有降级路径
		return errors.Wrap(err, "connect redis")
	}
	shutdown.add(func(context.Context) error { return redisClient.Close() })

	// 1. 存储
	var (
		rewards  domain.RewardRepository
		issuance domain.IssuanceRepository
		ledger   port.StockLedger
	)
	switch cfg.App.Store {
	case config.StoreMySQL:
		db, err := mysql.Open(cfg.MySQL.DSN, mysql.Options{MaxOpenConns: cfg.MySQL.MaxOpenConns, MaxIdleConns: cfg.MySQL.MaxIdleConns})
		if err != nil {
			return err
		}
		if err := infrastructure.AutoMigrate(db); err != nil {
			return err
		}
		rewards = infrastructure.NewGormRewardRepository(db)
		issuance = infrastructure.NewGormIssuanceRepository(db)
		ledger = infrastructure.NewGormStockLedger(db, cfg.MySQL.LockTimeout, clk)
	default:
		store := infrastructure.NewMemoryStore(cfg.MySQL.LockTimeout, clk)
		rewards, issuance, ledger = store, store, store
	}
	if cfg.App.Seed {
		if _, err := application.SeedCatalog(ctx, rewards, application.DefaultCatalog()); err != nil {
			return err
		}
	}

	// 2. 限流与配额
	registry := ratelimit.NewRegistry(cfg.RateLimit.Fallback.RPS, cfg.RateLimit.Fallback.Burst,
		ratelimit.WithIdleTTL(10*time.Minute), ratelimit.WithCleanupEvery(time.Minute))
	global := registry.Register(globalLimiterName, cfg.RateLimit.Global.RPS, cfg.RateLimit.Global.Burst)
	registry.Register(cfg.RateLimit.FallbackName, cfg.RateLimit.Fallback.RPS, cfg.RateLimit.Fallback.Burst)
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	registry.StartJanitor(janitorCtx)
	shutdown.add(func(context.Context) error { stopJanitor(); return nil })

	limiter, err := adapter.NewSlidingWindowLimiter(redisClient, registry, cfg.RateLimit.FallbackName, clk)
	if err != nil {
		return err
	}
	quota, err := adapter.NewRedisParticipationQuota(redisClient, cfg.Quota.DailyCap, cfg.Location(), clk)
	if err != nil {
		return err
	}

	// 3. 通知
	var sender port.NotificationSender
	switch cfg.Notification.Sender {
	case config.SenderKafka:
		writer := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
		kafkaSender := adapter.NewNotificationKafkaSender(writer)
		shutdown.add(func(context.Context) error { return kafkaSender.Close() })
		sender = kafkaSender
	default:
		sender = adapter.NewSimulatedPushSender(cfg.Notification.Latency, cfg.Notification.FailureRate)
	}
	dispatcher := application.NewNotificationDispatcher(application.DispatcherConfig{
		MaxConcurrent: cfg.Notification.MaxConcurrent,
		MaxWait:       cfg.Notification.MaxWait,
		SendTimeout:   cfg.Notification.SendTimeout,
	}, sender, adapter.NewRedisTokenStore(redisClient), clk)
	// 关停时 dispatcher 要在 kafka writer 之前关闭
	shutdown.add(dispatcher.Close)

	// 4. 参与流程
	eligibility, err := rule.NewCELEligibilityEngine()
	if err != nil {
		return err
	}
	catalog := application.NewCachedCatalog(rewards, cfg.Catalog.CacheTTL, clk)
	coordinator := application.NewIssuanceCoordinator(application.CoordinatorConfig{
		UserRateLimit:  cfg.RateLimit.UserLimit,
		UserRateWindow: cfg.RateLimit.UserWindow,
	}, tracer, limiter, quota, catalog, ledger, dispatcher, application.WithEligibility(eligibility), application.WithClock(clk))
	participator := application.Decorate(coordinator, global)

	// 5. 批量发放
	var locker port.JobLocker = application.NewLocalJobLocker()
	if cfg.Infra.Zookeeper.Servers != "" {
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return err
		}
		shutdown.add(func(context.Context) error { conn.Close(); return nil })
		locker = zookeeper.NewLocker(conn)
	}
	bulk := application.NewBulkAssigner(application.BulkConfig{
		ChunkSize:   cfg.Bulk.ChunkSize,
		Parallelism: cfg.Bulk.Parallelism,
		MaxRange:    cfg.Bulk.MaxRange,
	}, rewards, issuance, locker, clk)

	handler := interfaces.NewRewardHandler(participator, quota, catalog, bulk, issuance,
		interfaces.BulkRange{From: cfg.Bulk.UserFrom, To: cfg.Bulk.UserTo, Max: cfg.Bulk.MaxRange})

	return bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      cfg.App.Name,
		Port:             cfg.App.Port,
		Nacos:            cfg.Infra.Nacos,
		RegisterHandlers: func(mux *http.ServeMux) { handler.RegisterRoutes(mux) },
		OnShutdown:       *shutdown,
	})
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
