package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码，与 HTTP 状态码一起返回
const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeForbidden         = "FORBIDDEN"
	CodeValidation        = "VALIDATION"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL"
	CodeAlreadyClaimed    = "ALREADY_CLAIMED"
	CodeAlreadyOwned      = "ALREADY_OWNED"
	CodeDuplicateRequest  = "DUPLICATE_REQUEST"
	CodeBusy              = "BUSY"
	CodeBadSignature      = "BAD_SIGNATURE"
)

// Response 统一响应结构
type Response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	Code  string      `json:"code,omitempty"`
}

// Success {ok: true, data}
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		OK:   true,
		Data: data,
	})
}

// OK 字段直接放在顶层：{ok: true, ...fields}
func OK(c *gin.Context, fields gin.H) {
	body := gin.H{"ok": true}
	for k, v := range fields {
		if k == "ok" {
			continue
		}
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func Error(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, Response{
		OK:    false,
		Error: message,
		Code:  code,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeValidation, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthenticated, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, CodeForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

// ServerError 不向客户端暴露内部错误细节
func ServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeInternal, "internal server error")
}

func BusinessError(c *gin.Context, status int, code string, message string) {
	Error(c, status, code, message)
}
