package database

import (
	"fmt"

	"otakumori/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultQuests 默认任务目录
var DefaultQuests = []model.Quest{
	{Key: "visit_shrine", Title: "Visit the Shrine", Description: "Open the community shrine page.", RewardPetals: 5, Affinity: 1, Active: true},
	{Key: "leave_soapstone", Title: "Leave a Sign", Description: "Write a soapstone message for other travellers.", RewardPetals: 10, UnlockEmote: "emote_wave", Affinity: 2, Active: true},
	{Key: "appraise_soapstone", Title: "Kind Appraisal", Description: "Appraise another traveller's message.", RewardPetals: 5, Affinity: 1, Active: true},
	{Key: "play_petal_catch", Title: "Petal Catch", Description: "Finish a round of the petal catch mini-game.", RewardPetals: 15, LoreFragment: "The first petal fell where the old gate stood.", Affinity: 1, Active: true},
	{Key: "browse_shop", Title: "Window Shopping", Description: "Browse the petal shop.", RewardPetals: 5, Active: true},
	{Key: "equip_frame", Title: "New Look", Description: "Equip a profile frame.", RewardPetals: 10, UnlockTitle: "title_stylist", Affinity: 1, Active: true},
	{Key: "read_lore", Title: "Archivist", Description: "Read an entry in the lore archive.", RewardPetals: 10, LoreFragment: "Lanterns were lit for those who never returned.", Affinity: 2, Active: true},
	{Key: "pull_gacha", Title: "Trust the Wind", Description: "Pull from the petal gacha.", RewardPetals: 20, UnlockEmote: "emote_bloom_spin", Affinity: 1, Active: true},
}

// DefaultShopItems 默认商店商品
var DefaultShopItems = []model.PetalShopItem{
	{SKU: "frame_cherry", Name: "Cherry Blossom Frame", Kind: model.ItemKindFrame, PricePetals: 120, Active: true},
	{SKU: "frame_violet", Name: "Violet Dusk Frame", Kind: model.ItemKindFrame, PricePetals: 150, Active: true},
	{SKU: "title_lantern_keeper", Name: "Lantern Keeper", Kind: model.ItemKindTitle, PricePetals: 200, Active: true},
	{SKU: "cosmetic_petal_trail", Name: "Petal Trail", Kind: model.ItemKindCosmetic, PricePetals: 80, Active: true},
}

// Seed 写入目录数据，已存在的记录不覆盖
func Seed(db *gorm.DB) error {
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&DefaultQuests).Error; err != nil {
		return fmt.Errorf("写入任务目录失败: %w", err)
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&DefaultShopItems).Error; err != nil {
		return fmt.Errorf("写入商店目录失败: %w", err)
	}
	return nil
}
