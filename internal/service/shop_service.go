package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"otakumori/internal/model"
	"otakumori/internal/repository"

	"gorm.io/gorm"
)

// ShopService 花瓣商店与背包
type ShopService struct {
	db            *gorm.DB
	locker        Locker
	ledger        *LedgerService
	userRepo      *repository.UserRepository
	inventoryRepo *repository.InventoryRepository
}

func NewShopService(db *gorm.DB, ledger *LedgerService, locker Locker) *ShopService {
	if locker == nil {
		locker = NopLocker{}
	}
	return &ShopService{
		db:            db,
		locker:        locker,
		ledger:        ledger,
		userRepo:      repository.NewUserRepository(db),
		inventoryRepo: repository.NewInventoryRepository(db),
	}
}

type PurchaseResult struct {
	Item      *model.InventoryItem `json:"item"`
	Remaining int64                `json:"remaining"`
	EntryNo   string               `json:"entryNo"`
}

// activeColumns 物品类型 -> users 表上的装备列
var activeColumns = map[string]string{
	model.ItemKindFrame:    "active_frame",
	model.ItemKindTitle:    "active_title",
	model.ItemKindCosmetic: "active_cosmetic",
}

func (s *ShopService) ListItems(ctx context.Context) ([]*model.PetalShopItem, error) {
	return s.inventoryRepo.ListShopItems(ctx)
}

func (s *ShopService) Inventory(ctx context.Context, userID int64) ([]*model.InventoryItem, error) {
	return s.inventoryRepo.ListByUserID(ctx, userID)
}

// Purchase 用花瓣购买商品
// 头像框和称号不能重复购买，特效类可以
func (s *ShopService) Purchase(ctx context.Context, userID int64, sku, idempotencyKey string) (*PurchaseResult, error) {
	if sku == "" {
		return nil, fmt.Errorf("%w: sku is required", ErrValidation)
	}
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}

	item, err := s.inventoryRepo.GetShopItem(ctx, sku)
	if err != nil {
		if errors.Is(err, repository.ErrShopItemNotFound) {
			return nil, fmt.Errorf("%w: sku %s", ErrNotFound, sku)
		}
		return nil, err
	}

	unlock, err := lockUser(ctx, s.locker, userID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *PurchaseResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.LockForPosting(ctx, tx, userID, idempotencyKey); err != nil {
			return err
		}

		if item.Kind != model.ItemKindCosmetic {
			owned, err := s.inventoryRepo.FindOwned(ctx, tx, userID, sku)
			if err != nil {
				return fmt.Errorf("查询背包失败: %w", err)
			}
			if owned != nil {
				return fmt.Errorf("%w: %s", ErrAlreadyOwned, sku)
			}
		}

		entry, err := s.ledger.DebitTx(ctx, tx, Posting{
			UserID:         userID,
			Amount:         item.PricePetals,
			Reason:         model.ReasonShopPurchase,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}

		inv := &model.InventoryItem{
			UserID: userID,
			SKU:    item.SKU,
			Kind:   item.Kind,
			Source: model.ItemSourceShop,
		}
		if err := s.inventoryRepo.Grant(ctx, tx, inv); err != nil {
			return fmt.Errorf("写入背包失败: %w", err)
		}

		result = &PurchaseResult{Item: inv, Remaining: entry.BalanceAfter, EntryNo: entry.EntryNo}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("商品购买成功", "user_id", userID, "sku", sku, "remaining", result.Remaining)
	return result, nil
}

// Equip 装备背包里的物品，返回被更新的列名
func (s *ShopService) Equip(ctx context.Context, userID int64, sku string) (string, error) {
	if sku == "" {
		return "", fmt.Errorf("%w: sku is required", ErrValidation)
	}
	owned, err := s.inventoryRepo.FindOwned(ctx, nil, userID, sku)
	if err != nil {
		return "", fmt.Errorf("查询背包失败: %w", err)
	}
	if owned == nil {
		return "", fmt.Errorf("%w: %s is not in inventory", ErrNotFound, sku)
	}

	column, ok := activeColumns[owned.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %s cannot be equipped", ErrValidation, sku)
	}
	if err := s.userRepo.UpdateActive(ctx, userID, column, sku); err != nil {
		return "", fmt.Errorf("装备失败: %w", err)
	}
	return column, nil
}
