package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"otakumori/internal/config"
	"otakumori/internal/infrastructure/lock"
	"otakumori/internal/service"
	"otakumori/pkg/dayclock"
	"otakumori/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg       *config.Config
	users     *service.UserService
	ledger    *service.LedgerService
	rewards   *service.RewardService
	quests    *service.QuestService
	soapstone *service.SoapstoneService
	shop      *service.ShopService
	webhooks  *service.WebhookService
}

// NewHandler 创建处理器实例，rdb 为 nil 时不使用分布式锁
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, clock *dayclock.Clock) *Handler {
	var locker service.Locker = service.NopLocker{}
	if rdb != nil {
		locker = lock.NewUserLocker(rdb, &cfg.Redis)
	}

	users := service.NewUserService(db)
	ledger := service.NewLedgerService(db, cfg, clock)
	return &Handler{
		cfg:       cfg,
		users:     users,
		ledger:    ledger,
		rewards:   service.NewRewardService(db, cfg, clock, ledger, locker),
		quests:    service.NewQuestService(db, cfg, clock, ledger, locker),
		soapstone: service.NewSoapstoneService(db, cfg),
		shop:      service.NewShopService(db, ledger, locker),
		webhooks:  service.NewWebhookService(cfg, ledger, users),
	}
}

// errorMapping 业务错误 -> HTTP 状态码 + 错误码
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrValidation, http.StatusBadRequest, response.CodeValidation},
	{service.ErrInsufficientFunds, http.StatusBadRequest, response.CodeInsufficientFunds},
	{service.ErrAlreadyClaimed, http.StatusBadRequest, response.CodeAlreadyClaimed},
	{service.ErrBadSignature, http.StatusBadRequest, response.CodeBadSignature},
	{service.ErrDuplicateRequest, http.StatusConflict, response.CodeDuplicateRequest},
	{service.ErrAlreadyOwned, http.StatusConflict, response.CodeAlreadyOwned},
	{service.ErrNotFound, http.StatusNotFound, response.CodeNotFound},
	{service.ErrForbidden, http.StatusForbidden, response.CodeForbidden},
	{service.ErrBusy, http.StatusTooManyRequests, response.CodeBusy},
}

// fail 把 service 层错误写成响应，未知错误统一返回 500 并记录日志
func (h *Handler) fail(c *gin.Context, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			response.BusinessError(c, m.status, m.code, err.Error())
			return
		}
	}
	slog.Error("请求处理失败",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"request_id", c.GetString(ctxRequestID),
		"err", err,
	)
	response.ServerError(c)
}
