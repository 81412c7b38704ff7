package handler

import (
	"io"
	"net/http"

	"otakumori/pkg/response"

	"github.com/gin-gonic/gin"
)

// Stripe 回调请求体上限
const maxWebhookBody = 64 << 10

// StripeWebhook 原始请求体必须原样参与签名校验，不能先做 JSON 绑定
// POST /api/webhooks/stripe
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.ParamError(c, "request body too large")
		return
	}

	result, err := h.webhooks.HandleStripe(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, result)
}
