package service

import (
	"math/rand/v2"

	"otakumori/internal/model"
)

// GachaReward 奖池条目，Key 即发放的 SKU
type GachaReward struct {
	Key    string `json:"key"`
	Kind   string `json:"kind"`
	Label  string `json:"label"`
	Weight int    `json:"weight"`
}

// GachaTable 按顺序排列的奖池，顺序影响轮盘选择结果
type GachaTable []GachaReward

// DefaultGachaTable 权重合计 100
var DefaultGachaTable = GachaTable{
	{Key: "banner_sakura", Kind: model.ItemKindCosmetic, Label: "Sakura Banner", Weight: 30},
	{Key: "frame_violet", Kind: model.ItemKindFrame, Label: "Violet Dusk Frame", Weight: 30},
	{Key: "title_petal_wanderer", Kind: model.ItemKindTitle, Label: "Petal Wanderer", Weight: 25},
	{Key: "emote_bloom", Kind: model.ItemKindCosmetic, Label: "Bloom Emote", Weight: 10},
	{Key: "aura_midnight", Kind: model.ItemKindCosmetic, Label: "Midnight Aura", Weight: 5},
}

// Roller 随机源，返回 [0, 1) 的浮点数
type Roller interface {
	Float64() float64
}

// defaultRoller 使用 math/rand/v2 的全局源（并发安全）
type defaultRoller struct{}

func (defaultRoller) Float64() float64 { return rand.Float64() }

func (t GachaTable) TotalWeight() int {
	total := 0
	for _, r := range t {
		total += r.Weight
	}
	return total
}

// Pick 抽取 r ∈ [0, Σweight) 后按轮盘选择
func (t GachaTable) Pick(roller Roller) GachaReward {
	return t.PickAt(roller.Float64() * float64(t.TotalWeight()))
}

// PickAt 依次减去各条目权重，剩余值首次 <= 0 时命中该条目
func (t GachaTable) PickAt(draw float64) GachaReward {
	remaining := draw
	for _, r := range t {
		remaining -= float64(r.Weight)
		if remaining <= 0 {
			return r
		}
	}
	return t[len(t)-1]
}
