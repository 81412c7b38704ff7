package model

import (
	"time"

	"gorm.io/datatypes"
)

// User 用户表
// 首次通过认证的请求时创建，PetalBalance 是账本的物化缓存，
// 只能在写入账本流水的同一事务中修改
type User struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID     string         `gorm:"type:varchar(128);uniqueIndex;not null" json:"externalId"` // 认证服务的用户ID
	Email          string         `gorm:"type:varchar(256)" json:"email"`
	Username       string         `gorm:"type:varchar(64)" json:"username"`
	Role           string         `gorm:"type:varchar(32);not null;default:''" json:"role"`
	PetalBalance   int64          `gorm:"not null;default:0" json:"petalBalance"`
	ActiveFrame    string         `gorm:"type:varchar(64)" json:"activeFrame"`
	ActiveTitle    string         `gorm:"type:varchar(64)" json:"activeTitle"`
	ActiveCosmetic string         `gorm:"type:varchar(64)" json:"activeCosmetic"`
	Preferences    datatypes.JSON `json:"preferences"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// PetalWallet 花瓣钱包，累计获得 / 累计消费
type PetalWallet struct {
	UserID         int64     `gorm:"primaryKey" json:"userId"`
	LifetimeEarned int64     `gorm:"not null;default:0" json:"lifetimeEarned"`
	TotalSpent     int64     `gorm:"not null;default:0" json:"totalSpent"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (PetalWallet) TableName() string {
	return "petal_wallet"
}

// Preferences users.preferences 中的 JSON 结构
type Preferences struct {
	Unlocks       Unlocks  `json:"unlocks"`
	LoreFragments []string `json:"loreFragments"`
	Affinity      int      `json:"affinity"`
}

type Unlocks struct {
	Emotes []string `json:"emotes"`
	Titles []string `json:"titles"`
}
