package handlers

import (
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Session  *SessionHandler
	Product  *ProductHandler
	Cart     *CartHandler
	Order    *OrderHandler
	Favorite *FavoriteHandler
	Storage  *StorageHandler
}

// RegisterRoutes mounts the storefront API under /api.
func RegisterRoutes(router gin.IRouter, h Handlers) {
	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/phone/check", h.Session.CheckPhone)
			auth.POST("/otp/send", h.Session.SendOTP)
			auth.POST("/otp/verify", h.Session.VerifyOTP)
		}

		session := api.Group("/session")
		{
			session.GET("", h.Session.GetSession)
			session.POST("/refresh", h.Session.RefreshSession)
			session.POST("/logout", h.Session.Logout)
		}

		products := api.Group("/products")
		{
			products.GET("", h.Product.SearchProducts)
			products.GET("/:id", h.Product.GetProductByID)
		}

		cart := api.Group("/cart")
		{
			cart.GET("", h.Cart.GetCart)
			cart.GET("/count", h.Cart.GetCartCount)
			cart.POST("/items", h.Cart.AddToCart)
			cart.PUT("/items/:product_id", h.Cart.UpdateCartItem)
			cart.DELETE("/items/:product_id", h.Cart.RemoveCartItem)
			cart.DELETE("", h.Cart.ClearCart)
		}

		orders := api.Group("/orders")
		{
			orders.POST("", h.Order.CreateOrder)
			orders.GET("", h.Order.ListOrders)
			orders.GET("/stats", h.Order.GetStats)
			orders.GET("/:id", h.Order.GetOrder)
			orders.POST("/:id/cancel", h.Order.CancelOrder)
			orders.PUT("/:id/status", h.Order.UpdateStatus)
		}

		favorites := api.Group("/favorites")
		{
			favorites.GET("", h.Favorite.ListFavorites)
			favorites.GET("/:product_id", h.Favorite.GetStatus)
			favorites.POST("/:product_id/toggle", h.Favorite.Toggle)
			favorites.GET("/:product_id/watch", h.Favorite.Watch)
		}

		api.POST("/storage/:bucket", h.Storage.Upload)

		// Health check
		api.GET("/health", h.Product.HealthCheck)
	}
}
