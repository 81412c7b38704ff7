package model

import (
	"time"
)

// 留言状态只有 VISIBLE -> HIDDEN 一个方向，举报达到阈值时自动隐藏，没有恢复路径
const (
	SoapstoneStatusVisible = "VISIBLE"
	SoapstoneStatusHidden  = "HIDDEN"
)

// SoapstoneMessage 社区留言
// Reports / Appraises 只增不减，必须用数据库原子自增
type SoapstoneMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	PublicID  string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"userId"`
	Text      string    `gorm:"type:varchar(512);not null" json:"text"`
	Reports   int       `gorm:"not null;default:0" json:"reports"`
	Appraises int       `gorm:"not null;default:0" json:"appraises"`
	Status    string    `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (SoapstoneMessage) TableName() string {
	return "soapstone_message"
}
