package handler

import (
	"strconv"

	"otakumori/pkg/response"

	"github.com/gin-gonic/gin"
)

// GetBalance 查询花瓣余额
// GET /api/v1/petals/balance
func (h *Handler) GetBalance(c *gin.Context) {
	user := currentUser(c)

	view, err := h.ledger.Balance(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, view)
}

// GrantDaily 每日签到
// POST /api/v1/petals/grant-daily
func (h *Handler) GrantDaily(c *gin.Context) {
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	entry, err := h.rewards.ClaimDaily(c.Request.Context(), currentUser(c).ID, key)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, entry)
}

// ListLedger 流水分页
// GET /api/v1/petals/ledger?page=1&pageSize=20
func (h *Handler) ListLedger(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	result, err := h.ledger.History(c.Request.Context(), currentUser(c).ID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, result)
}

// PullGacha 抽卡
// POST /api/petal-gacha
func (h *Handler) PullGacha(c *gin.Context) {
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	result, err := h.rewards.PullGacha(c.Request.Context(), currentUser(c).ID, key)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, gin.H{
		"reward":    result.Reward,
		"remaining": result.Remaining,
		"item":      result.Item,
	})
}
