package infrastructure

import (
	"context"
	"database/sql"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rewardhub/internal/pkg/clock"
	"rewardhub/internal/pkg/logger"
	"rewardhub/internal/service/reward/domain"
)

const (
	DefaultLockTimeout = 3 * time.Second

	// ER_LOCK_WAIT_TIMEOUT
	mysqlLockWaitTimeout = 1205
	// ER_LOCK_NOWAIT
	mysqlLockNoWait = 3572
)

// GormStockLedger 是 port.StockLedger 的 MySQL 实现。
// 每次发放都在根连接上开启独立事务，不会加入调用方可能持有的事务。
type GormStockLedger struct {
	db          *gorm.DB
	lockTimeout time.Duration
	clock       clock.Clock
}

func NewGormStockLedger(db *gorm.DB, lockTimeout time.Duration, clk clock.Clock) *GormStockLedger {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &GormStockLedger{db: db, lockTimeout: lockTimeout, clock: clk}
}

// Issue 在 reward 行上加排他锁，完成 检查-扣减-写流水 后提交。
func (l *GormStockLedger) Issue(ctx context.Context, userID, rewardID int64) (*domain.IssuanceRecord, error) {
	var (
		record    *domain.IssuanceRecord
		remaining int64
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 会话级锁等待超时，单位为秒
		secs := int(l.lockTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		if err := tx.Exec("SET SESSION innodb_lock_wait_timeout = ?", secs).Error; err != nil {
			return err
		}
		// 会话变量跟随连接回到连接池，事务结束前恢复为全局值
		defer func() {
			if err := tx.Exec("SET SESSION innodb_lock_wait_timeout = DEFAULT").Error; err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("failed to reset innodb_lock_wait_timeout")
			}
		}()

		var model RewardModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, rewardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrRewardNotFound
			}
			return err
		}

		reward := toDomainReward(&model)
		if err := reward.DecreaseQuantity(); err != nil {
			return err
		}
		if err := tx.Model(&RewardModel{}).Where("id = ?", reward.ID).
			Update("remaining_quantity", reward.RemainingQuantity).Error; err != nil {
			return err
		}

		rec := &IssuanceRecordModel{UserID: userID, RewardID: reward.ID, IssuedAt: l.clock.Now()}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		record = toDomainIssuance(rec)
		remaining = reward.RemainingQuantity
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, classifyLedgerError(err)
	}

	logger.Ctx(ctx).Info().Int64("user", userID).Int64("reward", rewardID).Int64("remaining", remaining).Msg("reward issued")
	return record, nil
}

// classifyLedgerError 把驱动层错误映射为领域错误。
// 业务错误原样返回，锁等待超时映射为 ErrLockTimeout，其余视为存储不可用。
func classifyLedgerError(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsBusiness(err) {
		return err
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == mysqlLockWaitTimeout || myErr.Number == mysqlLockNoWait) {
		return errors.Wrapf(domain.ErrLockTimeout, "mysql %d: %s", myErr.Number, myErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(domain.ErrLockTimeout, err.Error())
	}
	if errors.Is(err, domain.ErrLockTimeout) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return errors.Wrap(domain.ErrStoreUnavailable, err.Error())
}
