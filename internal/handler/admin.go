package handler

import (
	"strconv"

	"otakumori/internal/service"
	"otakumori/pkg/response"

	"github.com/gin-gonic/gin"
)

type AdjustRequest struct {
	UserID int64  `json:"userId" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// AdjustPetals 人工调账，amount 可以为负数
// POST /api/admin/petals/adjust
func (h *Handler) AdjustPetals(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	entry, err := h.ledger.Adjust(c.Request.Context(), service.Posting{
		UserID:         req.UserID,
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, entry)
}

// ReconcileBalance 按账本重算余额，fix=true 时修复缓存余额
// GET /api/admin/petals/reconcile/:userId?fix=true
func (h *Handler) ReconcileBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "userId 参数错误")
		return
	}
	fix := c.Query("fix") == "true"

	result, err := h.ledger.Reconcile(c.Request.Context(), userID, fix)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, result)
}
