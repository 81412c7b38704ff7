package handler

import (
	"strings"

	"otakumori/internal/model"
	"otakumori/internal/service"
	"otakumori/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUser      = "otakumori.user"
	ctxRequestID = "otakumori.request_id"

	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestID      = "X-Request-ID"
)

// SessionClaims 会话令牌中的用户信息，sub 为认证服务的用户ID
type SessionClaims struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware 校验 Bearer 令牌，首次访问的用户会被创建
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	secret := []byte(h.cfg.Auth.JWTSecret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "missing bearer token")
			return
		}

		claims := &SessionClaims{}
		_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			response.Unauthorized(c, "invalid session token")
			return
		}
		if claims.Subject == "" {
			response.Unauthorized(c, "session token has no subject")
			return
		}

		user, err := h.users.Ensure(c.Request.Context(), service.Profile{
			ExternalID: claims.Subject,
			Email:      claims.Email,
			Username:   claims.Username,
			Role:       claims.Role,
		})
		if err != nil {
			h.fail(c, err)
			return
		}

		// 角色以令牌为准
		user.Role = claims.Role
		c.Set(ctxUser, user)
		c.Next()
	}
}

// RequireRole 必须在 AuthMiddleware 之后使用
func (h *Handler) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			response.Unauthorized(c, "authentication required")
			return
		}
		if user.Role != role {
			response.Forbidden(c, "insufficient role")
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func currentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}

// idempotencyKey 读取幂等键，缺失时直接写 400 响应
func idempotencyKey(c *gin.Context) (string, bool) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key == "" {
		response.ParamError(c, "Idempotency-Key header is required")
		return "", false
	}
	if len(key) > 128 {
		response.ParamError(c, "Idempotency-Key is too long")
		return "", false
	}
	return key, true
}
