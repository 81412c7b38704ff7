package model

import (
	"time"
)

const (
	ItemKindCosmetic = "cosmetic"
	ItemKindFrame    = "frame"
	ItemKindTitle    = "title"
)

const (
	ItemSourceGacha = "gacha"
	ItemSourceShop  = "shop"
)

// PetalShopItem 花瓣商店商品
type PetalShopItem struct {
	SKU         string `gorm:"type:varchar(64);primaryKey" json:"sku"`
	Name        string `gorm:"type:varchar(128);not null" json:"name"`
	Kind        string `gorm:"type:varchar(16);not null" json:"kind"`
	PricePetals int64  `gorm:"not null" json:"pricePetals"`
	Active      bool   `gorm:"not null;default:true" json:"active"`
}

func (PetalShopItem) TableName() string {
	return "petal_shop_item"
}

// InventoryItem 用户持有的物品，每次抽卡/购买写入一行
type InventoryItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index:idx_inventory_user_sku,priority:1" json:"userId"`
	SKU       string    `gorm:"type:varchar(64);not null;index:idx_inventory_user_sku,priority:2" json:"sku"`
	Kind      string    `gorm:"type:varchar(16);not null" json:"kind"`
	Source    string    `gorm:"type:varchar(16);not null" json:"source"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (InventoryItem) TableName() string {
	return "inventory_item"
}
