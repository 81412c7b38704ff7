package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"otakumori/internal/config"
	"otakumori/internal/metrics"
	"otakumori/internal/model"
	"otakumori/internal/repository"
	"otakumori/pkg/dayclock"
	"otakumori/pkg/idgen"

	"gorm.io/gorm"
)

// LedgerService 花瓣账本
//
// 余额的每一次变化都在一个事务里完成：
//  1. SELECT ... FOR UPDATE 锁定用户行
//  2. 幂等键校验
//  3. 条件更新缓存余额（不能小于 0）
//  4. 累加钱包统计
//  5. 写入流水（记录变动前后余额）
//  6. 写入本地消息表
//
// 任一步失败整个事务回滚，流水和余额不会出现不一致。
type LedgerService struct {
	db         *gorm.DB
	cfg        *config.Config
	clock      *dayclock.Clock
	userRepo   *repository.UserRepository
	ledgerRepo *repository.LedgerRepository
	outboxRepo *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, cfg *config.Config, clock *dayclock.Clock) *LedgerService {
	return &LedgerService{
		db:         db,
		cfg:        cfg,
		clock:      clock,
		userRepo:   repository.NewUserRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

// Posting 一笔记账请求
type Posting struct {
	UserID         int64
	Amount         int64
	Reason         string
	IdempotencyKey string
	// DayKey 为空时取当前日期
	DayKey string
}

type BalanceView struct {
	Balance              int64 `json:"balance"`
	LifetimePetalsEarned int64 `json:"lifetimePetalsEarned"`
	TotalSpent           int64 `json:"totalSpent"`
}

const (
	defaultLedgerPageSize = 20
	maxLedgerPageSize     = 100
)

// LedgerPage 流水分页结果，Page/PageSize 为实际使用的值
type LedgerPage struct {
	List     []*model.PetalLedger `json:"list"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

type Reconciliation struct {
	UserID   int64 `json:"userId"`
	Cached   int64 `json:"cached"`
	Ledger   int64 `json:"ledger"`
	Drift    int64 `json:"drift"`
	Repaired bool  `json:"repaired"`
}

// Credit 入账
func (s *LedgerService) Credit(ctx context.Context, p Posting) (*model.PetalLedger, error) {
	return s.inTx(ctx, func(tx *gorm.DB) (*model.PetalLedger, error) {
		return s.CreditTx(ctx, tx, p)
	})
}

// Debit 出账，余额不足时返回 ErrInsufficientFunds，不写流水
func (s *LedgerService) Debit(ctx context.Context, p Posting) (*model.PetalLedger, error) {
	return s.inTx(ctx, func(tx *gorm.DB) (*model.PetalLedger, error) {
		return s.DebitTx(ctx, tx, p)
	})
}

// Adjust 人工调账，Amount 可正可负
func (s *LedgerService) Adjust(ctx context.Context, p Posting) (*model.PetalLedger, error) {
	return s.inTx(ctx, func(tx *gorm.DB) (*model.PetalLedger, error) {
		return s.post(ctx, tx, model.LedgerTypeAdjust, p)
	})
}

// CreditTx 在调用方的事务中入账
func (s *LedgerService) CreditTx(ctx context.Context, tx *gorm.DB, p Posting) (*model.PetalLedger, error) {
	return s.post(ctx, tx, model.LedgerTypeEarn, p)
}

// DebitTx 在调用方的事务中出账
func (s *LedgerService) DebitTx(ctx context.Context, tx *gorm.DB, p Posting) (*model.PetalLedger, error) {
	return s.post(ctx, tx, model.LedgerTypeSpend, p)
}

// LockForPosting 锁定用户行并校验幂等键，供需要在记账前做额外检查的业务使用
func (s *LedgerService) LockForPosting(ctx context.Context, tx *gorm.DB, userID int64, key string) (*model.User, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}
	user, err := s.userRepo.GetByIDForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("锁定用户失败: %w", err)
	}
	existing, err := s.ledgerRepo.GetByIdempotencyKey(ctx, tx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("查询幂等键失败: %w", err)
	}
	if existing != nil {
		metrics.LedgerRejections.WithLabelValues("duplicate").Inc()
		return nil, fmt.Errorf("%w: idempotency key %q already used by %s", ErrDuplicateRequest, key, existing.EntryNo)
	}
	return user, nil
}

func (s *LedgerService) post(ctx context.Context, tx *gorm.DB, entryType string, p Posting) (*model.PetalLedger, error) {
	if err := validatePosting(entryType, p); err != nil {
		return nil, err
	}

	user, err := s.LockForPosting(ctx, tx, p.UserID, p.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	delta := p.Amount
	if entryType == model.LedgerTypeSpend {
		delta = -p.Amount
	}

	if user.PetalBalance+delta < 0 {
		metrics.LedgerRejections.WithLabelValues("insufficient_funds").Inc()
		return nil, fmt.Errorf("%w: balance %d, required %d", ErrInsufficientFunds, user.PetalBalance, -delta)
	}

	if err := s.userRepo.ApplyDelta(ctx, tx, p.UserID, delta); err != nil {
		if errors.Is(err, repository.ErrBalanceNotEnough) {
			metrics.LedgerRejections.WithLabelValues("insufficient_funds").Inc()
			return nil, fmt.Errorf("%w: balance %d, required %d", ErrInsufficientFunds, user.PetalBalance, -delta)
		}
		return nil, fmt.Errorf("更新余额失败: %w", err)
	}

	var earned, spent int64
	switch entryType {
	case model.LedgerTypeEarn:
		earned = p.Amount
	case model.LedgerTypeSpend:
		spent = p.Amount
	}
	if err := s.userRepo.AddWalletTotals(ctx, tx, p.UserID, earned, spent); err != nil {
		return nil, fmt.Errorf("更新钱包失败: %w", err)
	}

	dayKey := p.DayKey
	if dayKey == "" {
		dayKey = s.clock.Today()
	}

	entry := &model.PetalLedger{
		EntryNo:        idgen.GenerateEntryNo(),
		UserID:         p.UserID,
		Type:           entryType,
		Amount:         p.Amount,
		Reason:         p.Reason,
		IdempotencyKey: p.IdempotencyKey,
		DayKey:         dayKey,
		BalanceBefore:  user.PetalBalance,
		BalanceAfter:   user.PetalBalance + delta,
	}
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: idempotency key %q", ErrDuplicateRequest, p.IdempotencyKey)
		}
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	payload := map[string]interface{}{
		"entryNo":      entry.EntryNo,
		"userId":       entry.UserID,
		"type":         entry.Type,
		"amount":       entry.Amount,
		"reason":       entry.Reason,
		"balanceAfter": entry.BalanceAfter,
		"dayKey":       entry.DayKey,
		"postedAt":     time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.PetalEvents, model.EventLedgerPosted, entry.EntryNo, payload); err != nil {
		return nil, fmt.Errorf("写入消息失败: %w", err)
	}

	metrics.LedgerPostings.WithLabelValues(entry.Type, entry.Reason).Inc()
	return entry, nil
}

func validatePosting(entryType string, p Posting) error {
	if p.UserID <= 0 {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(p.Reason) == "" {
		return fmt.Errorf("%w: reason is required", ErrValidation)
	}
	if strings.TrimSpace(p.IdempotencyKey) == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}
	if entryType == model.LedgerTypeAdjust {
		if p.Amount == 0 {
			return fmt.Errorf("%w: adjustment amount must not be zero", ErrValidation)
		}
		return nil
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return nil
}

func (s *LedgerService) inTx(ctx context.Context, fn func(tx *gorm.DB) (*model.PetalLedger, error)) (*model.PetalLedger, error) {
	var entry *model.PetalLedger
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = fn(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Balance 查询余额和钱包统计
func (s *LedgerService) Balance(ctx context.Context, userID int64) (*BalanceView, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, err
	}
	wallet, err := s.userRepo.GetWallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询钱包失败: %w", err)
	}
	return &BalanceView{
		Balance:              user.PetalBalance,
		LifetimePetalsEarned: wallet.LifetimeEarned,
		TotalSpent:           wallet.TotalSpent,
	}, nil
}

// History 分页查询流水，最新的在前
func (s *LedgerService) History(ctx context.Context, userID int64, page, pageSize int) (*LedgerPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxLedgerPageSize {
		pageSize = defaultLedgerPageSize
	}
	entries, total, err := s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	return &LedgerPage{List: entries, Total: total, Page: page, PageSize: pageSize}, nil
}

// Reconcile 重放账本并与缓存余额比对，fix 为 true 时用账本结果覆盖缓存
func (s *LedgerService) Reconcile(ctx context.Context, userID int64, fix bool) (*Reconciliation, error) {
	var result *Reconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByIDForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return fmt.Errorf("%w: user %d", ErrNotFound, userID)
			}
			return err
		}

		sum, err := s.ledgerRepo.SumBalance(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("重放账本失败: %w", err)
		}

		result = &Reconciliation{
			UserID: userID,
			Cached: user.PetalBalance,
			Ledger: sum,
			Drift:  user.PetalBalance - sum,
		}

		if fix && result.Drift != 0 {
			if err := s.userRepo.SetBalance(ctx, tx, userID, sum); err != nil {
				return fmt.Errorf("修复余额失败: %w", err)
			}
			result.Repaired = true
			slog.Warn("余额与账本不一致，已按账本修复",
				"user_id", userID, "cached", result.Cached, "ledger", result.Ledger)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
