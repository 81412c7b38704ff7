package repository

import (
	"context"
	"errors"

	"otakumori/internal/model"

	"gorm.io/gorm"
)

var ErrSoapstoneNotFound = errors.New("留言不存在")

type SoapstoneRepository struct {
	db *gorm.DB
}

func NewSoapstoneRepository(db *gorm.DB) *SoapstoneRepository {
	return &SoapstoneRepository{db: db}
}

func (r *SoapstoneRepository) Create(ctx context.Context, msg *model.SoapstoneMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *SoapstoneRepository) GetByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (*model.SoapstoneMessage, error) {
	if tx == nil {
		tx = r.db
	}
	var msg model.SoapstoneMessage
	err := tx.WithContext(ctx).Where("public_id = ?", publicID).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSoapstoneNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// Increment 原子自增计数列（reports / appraises），不做先读后写
func (r *SoapstoneRepository) Increment(ctx context.Context, tx *gorm.DB, publicID string, column string) error {
	result := tx.WithContext(ctx).
		Model(&model.SoapstoneMessage{}).
		Where("public_id = ?", publicID).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSoapstoneNotFound
	}
	return nil
}

// HideIfReported 举报数达到阈值且仍为 VISIBLE 时隐藏，返回是否发生了状态变化
func (r *SoapstoneRepository) HideIfReported(ctx context.Context, tx *gorm.DB, publicID string, threshold int) (bool, error) {
	result := tx.WithContext(ctx).
		Model(&model.SoapstoneMessage{}).
		Where("public_id = ? AND status = ? AND reports >= ?", publicID, model.SoapstoneStatusVisible, threshold).
		UpdateColumn("status", model.SoapstoneStatusHidden)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *SoapstoneRepository) ListVisible(ctx context.Context, limit int) ([]*model.SoapstoneMessage, error) {
	var messages []*model.SoapstoneMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.SoapstoneStatusVisible).
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
