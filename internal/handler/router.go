package handler

import (
	"otakumori/internal/config"
	"otakumori/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true, "status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Stripe 回调只校验签名
	r.POST("/api/webhooks/stripe", h.StripeWebhook)

	api := r.Group("/api", h.AuthMiddleware())
	{
		api.POST("/petal-gacha", h.PullGacha)
		api.GET("/quests/list", h.ListQuests)
		api.POST("/community/quests/complete", h.CompleteQuest)

		soapstone := api.Group("/soapstone")
		{
			soapstone.GET("", h.ListSoapstones)
			soapstone.POST("", h.CreateSoapstone)
			soapstone.POST("/:id/report", h.ReportSoapstone)
			soapstone.POST("/:id/appraise", h.AppraiseSoapstone)
		}

		v1 := api.Group("/v1")
		{
			petals := v1.Group("/petals")
			{
				petals.GET("/balance", h.GetBalance)
				petals.POST("/grant-daily", h.GrantDaily)
				petals.GET("/ledger", h.ListLedger)
			}

			inventory := v1.Group("/inventory")
			{
				inventory.GET("", h.ListInventory)
				inventory.POST("/equip", h.Equip)
			}

			shop := v1.Group("/shop")
			{
				shop.GET("/items", h.ListShopItems)
				shop.POST("/purchase", h.Purchase)
			}
		}

		admin := api.Group("/admin", h.RequireRole(cfg.Auth.AdminRole))
		{
			admin.POST("/petals/adjust", h.AdjustPetals)
			admin.GET("/petals/reconcile/:userId", h.ReconcileBalance)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})

	return r
}
