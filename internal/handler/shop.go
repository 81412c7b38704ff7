package handler

import (
	"otakumori/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListShopItems GET /api/v1/shop/items
func (h *Handler) ListShopItems(c *gin.Context) {
	items, err := h.shop.ListItems(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, items)
}

type PurchaseRequest struct {
	SKU string `json:"sku" binding:"required"`
}

// Purchase 花瓣购买
// POST /api/v1/shop/purchase
func (h *Handler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	result, err := h.shop.Purchase(c.Request.Context(), currentUser(c).ID, req.SKU, key)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, gin.H{
		"item":      result.Item,
		"remaining": result.Remaining,
	})
}

// ListInventory GET /api/v1/inventory
func (h *Handler) ListInventory(c *gin.Context) {
	user := currentUser(c)

	items, err := h.shop.Inventory(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"items": items,
		"active": gin.H{
			"frame":    user.ActiveFrame,
			"title":    user.ActiveTitle,
			"cosmetic": user.ActiveCosmetic,
		},
	})
}

type EquipRequest struct {
	SKU string `json:"sku" binding:"required"`
}

// Equip POST /api/v1/inventory/equip
func (h *Handler) Equip(c *gin.Context) {
	var req EquipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	slot, err := h.shop.Equip(c.Request.Context(), currentUser(c).ID, req.SKU)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, gin.H{
		"slot": slot,
		"sku":  req.SKU,
	})
}
