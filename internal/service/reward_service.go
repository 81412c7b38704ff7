package service

import (
	"context"
	"fmt"
	"log/slog"

	"otakumori/internal/config"
	"otakumori/internal/metrics"
	"otakumori/internal/model"
	"otakumori/internal/repository"
	"otakumori/pkg/dayclock"

	"gorm.io/gorm"
)

// RewardService 每日签到与抽卡
type RewardService struct {
	db            *gorm.DB
	cfg           *config.Config
	clock         *dayclock.Clock
	locker        Locker
	roller        Roller
	table         GachaTable
	ledger        *LedgerService
	ledgerRepo    *repository.LedgerRepository
	inventoryRepo *repository.InventoryRepository
}

func NewRewardService(db *gorm.DB, cfg *config.Config, clock *dayclock.Clock, ledger *LedgerService, locker Locker) *RewardService {
	if locker == nil {
		locker = NopLocker{}
	}
	return &RewardService{
		db:            db,
		cfg:           cfg,
		clock:         clock,
		locker:        locker,
		roller:        defaultRoller{},
		table:         DefaultGachaTable,
		ledger:        ledger,
		ledgerRepo:    repository.NewLedgerRepository(db),
		inventoryRepo: repository.NewInventoryRepository(db),
	}
}

// WithRoller 替换随机源（测试使用）
func (s *RewardService) WithRoller(roller Roller) *RewardService {
	s.roller = roller
	return s
}

type GachaResult struct {
	Reward    GachaReward          `json:"reward"`
	Remaining int64                `json:"remaining"`
	Item      *model.InventoryItem `json:"item"`
	EntryNo   string               `json:"entryNo"`
}

// ClaimDaily 每日签到，同一天（按配置时区）只能领取一次
func (s *RewardService) ClaimDaily(ctx context.Context, userID int64, idempotencyKey string) (*model.PetalLedger, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}

	unlock, err := lockUser(ctx, s.locker, userID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	today := s.clock.Today()

	var entry *model.PetalLedger
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.LockForPosting(ctx, tx, userID, idempotencyKey); err != nil {
			return err
		}

		claimed, err := s.ledgerRepo.ExistsForDay(ctx, tx, userID, model.ReasonDailyLoginGrant, today)
		if err != nil {
			return fmt.Errorf("查询签到记录失败: %w", err)
		}
		if claimed {
			return fmt.Errorf("%w: daily grant for %s", ErrAlreadyClaimed, today)
		}

		entry, err = s.ledger.CreditTx(ctx, tx, Posting{
			UserID:         userID,
			Amount:         s.cfg.Business.DailyGrantAmount,
			Reason:         model.ReasonDailyLoginGrant,
			IdempotencyKey: idempotencyKey,
			DayKey:         today,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("每日签到成功", "user_id", userID, "day", today, "amount", entry.Amount)
	return entry, nil
}

// PullGacha 抽卡
// 先扣款，扣款失败直接返回，不会产生随机数，保证不付款就拿不到奖励
func (s *RewardService) PullGacha(ctx context.Context, userID int64, idempotencyKey string) (*GachaResult, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}

	unlock, err := lockUser(ctx, s.locker, userID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *GachaResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.ledger.DebitTx(ctx, tx, Posting{
			UserID:         userID,
			Amount:         s.cfg.Business.GachaCost,
			Reason:         model.ReasonGachaPull,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}

		reward := s.table.Pick(s.roller)
		item := &model.InventoryItem{
			UserID: userID,
			SKU:    reward.Key,
			Kind:   reward.Kind,
			Source: model.ItemSourceGacha,
		}
		if err := s.inventoryRepo.Grant(ctx, tx, item); err != nil {
			return fmt.Errorf("发放奖励失败: %w", err)
		}

		result = &GachaResult{
			Reward:    reward,
			Remaining: entry.BalanceAfter,
			Item:      item,
			EntryNo:   entry.EntryNo,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.GachaRewards.WithLabelValues(result.Reward.Key).Inc()
	slog.Info("抽卡成功", "user_id", userID, "reward", result.Reward.Key, "remaining", result.Remaining)
	return result, nil
}
