package repository

import (
	"context"
	"errors"

	"otakumori/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound     = errors.New("用户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByIDForUpdate 在事务内锁定用户行，同一用户的余额变更串行执行
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	var user model.User
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ApplyDelta 条件更新余额，余额不能小于 0
func (r *UserRepository) ApplyDelta(ctx context.Context, tx *gorm.DB, userID int64, delta int64) error {
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND petal_balance + ? >= 0", userID, delta).
		Updates(map[string]interface{}{
			"petal_balance": gorm.Expr("petal_balance + ?", delta),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBalanceNotEnough
	}

	return nil
}

// SetBalance 仅供对账修复使用
func (r *UserRepository) SetBalance(ctx context.Context, tx *gorm.DB, userID int64, balance int64) error {
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("petal_balance", balance).Error
}

func (r *UserRepository) UpdatePreferences(ctx context.Context, tx *gorm.DB, userID int64, prefs datatypes.JSON) error {
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("preferences", prefs).Error
}

// UpdateActive 更新 active_frame / active_title / active_cosmetic 之一
func (r *UserRepository) UpdateActive(ctx context.Context, userID int64, column string, sku string) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update(column, sku).Error
}

// GetOrCreate 按外部认证ID获取用户，不存在则创建（并发安全）
func (r *UserRepository) GetOrCreate(ctx context.Context, profile *model.User) (*model.User, error) {
	user, err := r.GetByExternalID(ctx, profile.ExternalID)
	if err == nil {
		return user, nil
	}

	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	newUser := &model.User{
		ExternalID: profile.ExternalID,
		Email:      profile.Email,
		Username:   profile.Username,
		Role:       profile.Role,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).Create(newUser)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// 并发请求已经创建
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.PetalWallet{UserID: newUser.ID}).Error
	})
	if err != nil {
		return nil, err
	}

	return r.GetByExternalID(ctx, profile.ExternalID)
}

// ListIDsAfter 按ID游标分页遍历用户
func (r *UserRepository) ListIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ============================================================================
// 钱包
// ============================================================================

func (r *UserRepository) GetWallet(ctx context.Context, userID int64) (*model.PetalWallet, error) {
	var wallet model.PetalWallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.PetalWallet{UserID: userID}, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// AddWalletTotals 累加钱包统计，钱包行不存在时补建
func (r *UserRepository) AddWalletTotals(ctx context.Context, tx *gorm.DB, userID int64, earned, spent int64) error {
	if earned == 0 && spent == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"lifetime_earned": gorm.Expr("petal_wallet.lifetime_earned + ?", earned),
				"total_spent":     gorm.Expr("petal_wallet.total_spent + ?", spent),
			}),
		}).
		Create(&model.PetalWallet{UserID: userID, LifetimeEarned: earned, TotalSpent: spent}).Error
}
