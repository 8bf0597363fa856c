package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wholesale-market/internal/models"
	"wholesale-market/internal/services"
)

type CartHandler struct {
	cartService *services.CartService
}

func NewCartHandler(cartService *services.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// GET /api/cart
// Cart joined with live product data, plus count and total
func (h *CartHandler) GetCart(c *gin.Context) {
	summary, err := h.cartService.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"data": summary})
}

// GET /api/cart/count
func (h *CartHandler) GetCartCount(c *gin.Context) {
	count, err := h.cartService.GetCartCount(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"count": count})
}

// POST /api/cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	var req models.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	items, err := h.cartService.AddToCart(c.Request.Context(), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"message": "تمت إضافة المنتج إلى السلة",
		"cart":    items,
	})
}

// PUT /api/cart/items/:product_id
// Quantity 0 or less removes the item
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	productID, ok := uuidParam(c, "product_id")
	if !ok {
		return
	}
	var req models.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	items, err := h.cartService.UpdateQuantity(c.Request.Context(), productID, *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"cart": items})
}

// DELETE /api/cart/items/:product_id
func (h *CartHandler) RemoveCartItem(c *gin.Context) {
	productID, ok := uuidParam(c, "product_id")
	if !ok {
		return
	}
	items, err := h.cartService.RemoveFromCart(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"cart": items})
}

// DELETE /api/cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	if err := h.cartService.ClearCart(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, nil)
}
