package repository

import (
	"context"
	"errors"

	"otakumori/internal/model"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.PetalLedger) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// GetByIdempotencyKey 未找到返回 nil, nil
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, userID int64, key string) (*model.PetalLedger, error) {
	if tx == nil {
		tx = r.db
	}
	var entry model.PetalLedger
	err := tx.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// ExistsForDay 当天是否已有该原因的流水
func (r *LedgerRepository) ExistsForDay(ctx context.Context, tx *gorm.DB, userID int64, reason, dayKey string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.PetalLedger{}).
		Where("user_id = ? AND reason = ? AND day_key = ?", userID, reason, dayKey).
		Count(&count).Error
	return count > 0, err
}

// SumBalance 重放账本：Σearn + Σadjust - Σspend
func (r *LedgerRepository) SumBalance(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var sum int64
	err := tx.WithContext(ctx).
		Model(&model.PetalLedger{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN -amount ELSE amount END), 0)", model.LedgerTypeSpend).
		Where("user_id = ?", userID).
		Scan(&sum).Error
	return sum, err
}

func (r *LedgerRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.PetalLedger, int64, error) {
	var entries []*model.PetalLedger
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PetalLedger{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}
