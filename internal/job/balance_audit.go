package job

import (
	"context"
	"log/slog"
	"time"

	"otakumori/internal/config"
	"otakumori/internal/metrics"
	"otakumori/internal/repository"
	"otakumori/internal/service"

	"gorm.io/gorm"
)

// BalanceAuditJob 定期重放账本，检查缓存余额是否与流水一致
// 只记录不修复，修复走管理接口或 reconcile 命令
type BalanceAuditJob struct {
	userRepo  *repository.UserRepository
	ledger    *service.LedgerService
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewBalanceAuditJob(db *gorm.DB, ledger *service.LedgerService, cfg *config.Config) *BalanceAuditJob {
	interval := cfg.Business.AuditInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &BalanceAuditJob{
		userRepo:  repository.NewUserRepository(db),
		ledger:    ledger,
		logger:    slog.With("component", "balance_audit"),
		interval:  interval,
		batchSize: 200,
	}
}

func (j *BalanceAuditJob) Start(ctx context.Context) {
	j.logger.Info("余额巡检任务启动", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("收到停止信号，任务退出")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce 按用户ID游标遍历一遍，返回发现不一致的用户数
func (j *BalanceAuditJob) RunOnce(ctx context.Context) int {
	var afterID int64
	drifted := 0
	checked := 0

	for {
		ids, err := j.userRepo.ListIDsAfter(ctx, afterID, j.batchSize)
		if err != nil {
			j.logger.Error("查询用户失败", "after_id", afterID, "err", err)
			return drifted
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if ctx.Err() != nil {
				return drifted
			}
			result, err := j.ledger.Reconcile(ctx, id, false)
			if err != nil {
				j.logger.Error("对账失败", "user_id", id, "err", err)
				continue
			}
			checked++
			if result.Drift != 0 {
				drifted++
				metrics.BalanceDrift.Inc()
				j.logger.Warn("余额与账本不一致",
					"user_id", id, "cached", result.Cached, "ledger", result.Ledger, "drift", result.Drift)
			}
		}
		afterID = ids[len(ids)-1]
	}

	if drifted > 0 {
		j.logger.Warn("本轮巡检完成", "checked", checked, "drifted", drifted)
	} else {
		j.logger.Debug("本轮巡检完成", "checked", checked)
	}
	return drifted
}
