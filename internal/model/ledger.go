package model

import (
	"time"
)

// ============================================================================
// 账本类型常量
// ============================================================================

const (
	LedgerTypeEarn   = "earn"
	LedgerTypeSpend  = "spend"
	LedgerTypeAdjust = "adjust"
)

// 常用的流水原因
const (
	ReasonDailyLoginGrant = "DAILY_LOGIN_GRANT"
	ReasonGachaPull       = "GACHA_PULL"
	ReasonQuestComplete   = "QUEST_COMPLETE"
	ReasonShopPurchase    = "SHOP_PURCHASE"
	ReasonPurchaseReward  = "PURCHASE_REWARD"
)

// ============================================================================
// 花瓣账本实体
// ============================================================================

// PetalLedger 花瓣流水表
//
// 【流水表设计原则】
//  1. 只追加，不修改，不删除
//  2. (user_id, idempotency_key) 唯一，重复提交直接拒绝
//  3. earn/spend 的 Amount 为正数，adjust 可正可负
//     用户余额 = Σearn + Σadjust - Σspend
type PetalLedger struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entryNo"`
	UserID         int64     `gorm:"not null;uniqueIndex:uniq_ledger_user_idem,priority:1;index:idx_ledger_user_reason_day,priority:1" json:"userId"`
	Type           string    `gorm:"type:varchar(16);not null" json:"type"`
	Amount         int64     `gorm:"not null" json:"amount"`
	Reason         string    `gorm:"type:varchar(128);not null;index:idx_ledger_user_reason_day,priority:2" json:"reason"`
	IdempotencyKey string    `gorm:"type:varchar(128);not null;uniqueIndex:uniq_ledger_user_idem,priority:2" json:"idempotencyKey"`
	DayKey         string    `gorm:"type:varchar(10);not null;index:idx_ledger_user_reason_day,priority:3" json:"dayKey"`
	BalanceBefore  int64     `gorm:"not null" json:"balanceBefore"`
	BalanceAfter   int64     `gorm:"not null" json:"balanceAfter"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (PetalLedger) TableName() string {
	return "petal_ledger"
}

// Delta 该流水对余额的影响
func (e *PetalLedger) Delta() int64 {
	if e.Type == LedgerTypeSpend {
		return -e.Amount
	}
	return e.Amount
}
