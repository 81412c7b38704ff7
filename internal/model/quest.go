package model

import (
	"time"
)

// Quest 任务定义
type Quest struct {
	Key          string `gorm:"column:quest_key;type:varchar(64);primaryKey" json:"key"`
	Title        string `gorm:"type:varchar(128);not null" json:"title"`
	Description  string `gorm:"type:varchar(512)" json:"description"`
	RewardPetals int64  `gorm:"not null;default:0" json:"rewardPetals"`
	UnlockEmote  string `gorm:"type:varchar(64)" json:"unlockEmote,omitempty"`
	UnlockTitle  string `gorm:"type:varchar(64)" json:"unlockTitle,omitempty"`
	LoreFragment string `gorm:"type:varchar(256)" json:"loreFragment,omitempty"`
	Affinity     int    `gorm:"not null;default:0" json:"affinity"`
	Active       bool   `gorm:"not null;default:true" json:"active"`
}

func (Quest) TableName() string {
	return "quest"
}

// QuestAssignment 每日任务分配
// Day 为固定时区下的日期字符串 (YYYY-MM-DD)，可按字典序比较
type QuestAssignment struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64      `gorm:"not null;uniqueIndex:uniq_assignment,priority:1" json:"userId"`
	QuestKey    string     `gorm:"type:varchar(64);not null;uniqueIndex:uniq_assignment,priority:2" json:"questKey"`
	Day         string     `gorm:"type:varchar(10);not null;uniqueIndex:uniq_assignment,priority:3;index" json:"day"`
	CompletedAt *time.Time `json:"completedAt"`
	// CompletionKey 领取时的幂等键，奖励为 0 时不产生流水，靠它识别重复请求
	CompletionKey string    `gorm:"type:varchar(128);index" json:"-"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`

	Quest *Quest `gorm:"foreignKey:QuestKey;references:Key" json:"quest,omitempty"`
}

func (QuestAssignment) TableName() string {
	return "quest_assignment"
}
