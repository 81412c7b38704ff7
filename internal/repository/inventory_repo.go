package repository

import (
	"context"
	"errors"

	"otakumori/internal/model"

	"gorm.io/gorm"
)

var ErrShopItemNotFound = errors.New("商品不存在")

type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) Grant(ctx context.Context, tx *gorm.DB, item *model.InventoryItem) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (r *InventoryRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.InventoryItem, error) {
	var items []*model.InventoryItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&items).Error
	return items, err
}

// FindOwned 返回用户持有的任意一件该 SKU，未持有返回 nil, nil
func (r *InventoryRepository) FindOwned(ctx context.Context, tx *gorm.DB, userID int64, sku string) (*model.InventoryItem, error) {
	if tx == nil {
		tx = r.db
	}
	var item model.InventoryItem
	err := tx.WithContext(ctx).
		Where("user_id = ? AND sku = ?", userID, sku).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// ============================================================================
// 商店商品
// ============================================================================

func (r *InventoryRepository) ListShopItems(ctx context.Context) ([]*model.PetalShopItem, error) {
	var items []*model.PetalShopItem
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("price_petals ASC").
		Find(&items).Error
	return items, err
}

func (r *InventoryRepository) GetShopItem(ctx context.Context, sku string) (*model.PetalShopItem, error) {
	var item model.PetalShopItem
	err := r.db.WithContext(ctx).Where("sku = ? AND active = ?", sku, true).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShopItemNotFound
		}
		return nil, err
	}
	return &item, nil
}
