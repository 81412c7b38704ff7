package handler

import (
	"otakumori/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListQuests 今日任务和积压任务
// GET /api/quests/list
func (h *Handler) ListQuests(c *gin.Context) {
	list, err := h.quests.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, list)
}

type CompleteQuestRequest struct {
	QuestID string `json:"questId" binding:"required"`
}

// CompleteQuest 领取任务奖励
// POST /api/community/quests/complete
func (h *Handler) CompleteQuest(c *gin.Context) {
	var req CompleteQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	result, err := h.quests.Complete(c.Request.Context(), currentUser(c).ID, req.QuestID, key)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, result)
}
