package handler

import (
	"strconv"

	"otakumori/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListSoapstones GET /api/soapstone?limit=50
func (h *Handler) ListSoapstones(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.soapstone.ListVisible(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, messages)
}

type CreateSoapstoneRequest struct {
	Text string `json:"text" binding:"required"`
}

// CreateSoapstone POST /api/soapstone
func (h *Handler) CreateSoapstone(c *gin.Context) {
	var req CreateSoapstoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	msg, err := h.soapstone.Create(c.Request.Context(), currentUser(c).ID, req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, msg)
}

// ReportSoapstone 举报留言
// POST /api/soapstone/:id/report
func (h *Handler) ReportSoapstone(c *gin.Context) {
	result, err := h.soapstone.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, gin.H{
		"status":  result.Message.Status,
		"reports": result.Message.Reports,
	})
}

// AppraiseSoapstone POST /api/soapstone/:id/appraise
func (h *Handler) AppraiseSoapstone(c *gin.Context) {
	msg, err := h.soapstone.Appraise(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, gin.H{
		"status":    msg.Status,
		"appraises": msg.Appraises,
	})
}
