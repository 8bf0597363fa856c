package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"wholesale-market/api/handlers"
	"wholesale-market/internal/app"
	"wholesale-market/internal/backend"
	"wholesale-market/internal/kvstore"
	"wholesale-market/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := app.LoadConfig()

	// Backend
	store, err := backend.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	if err := store.Migrate(); err != nil {
		log.Fatalf("❌ Failed to migrate: %v", err)
	}
	deviceState, err := kvstore.NewFileStore(cfg.StateFile)
	if err != nil {
		log.Fatalf("❌ Failed to open state file: %v", err)
	}
	files := backend.NewFileStorage(cfg.UploadsDir, cfg.PublicBaseURL)
	authClient := backend.NewAuthClient(cfg.AuthURL, cfg.AuthAPIKey, cfg.AuthJWTSecret)

	// Initialize services
	sessionService := services.NewSessionService(deviceState, store)
	authService := services.NewAuthService(authClient, store, sessionService, services.RetryPolicy{
		Attempts: cfg.OTPRetryAttempts,
		Delay:    cfg.OTPRetryDelay,
	})
	inventory := services.NewInventoryReconciler(store, deviceState)

	cartService := services.NewCartService(deviceState, sessionService, store, store)
	cartService.SetInventory(inventory)
	cartService.SetImageStorage(files)

	orderService := services.NewOrderService(store, sessionService, inventory)
	productService := services.NewProductService(store, files)
	favoriteService := services.NewFavoriteService(store, sessionService)
	favoriteService.SetImageStorage(files)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	if session, err := sessionService.GetSession(startCtx); err == nil {
		log.Printf("✅ Restored session for %s", session.PhoneNumber)
	}
	cancelStart()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	go inventory.Run(bgCtx, cfg.ReconcileInterval)

	// Initialize handlers
	h := handlers.Handlers{
		Session:  handlers.NewSessionHandler(authService, sessionService),
		Product:  handlers.NewProductHandler(productService),
		Cart:     handlers.NewCartHandler(cartService),
		Order:    handlers.NewOrderHandler(orderService, cartService),
		Favorite: handlers.NewFavoriteHandler(favoriteService, cfg.CORSOrigins),
		Storage:  handlers.NewStorageHandler(sessionService, files),
	}

	router := setupRouter(cfg, h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on http://localhost:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	stopBackground()
	cartService.Close()
	if n := len(inventory.Pending()); n > 0 {
		log.Printf("⚠️ %d stock adjustments still pending, kept for the next start", n)
	}
	if err := store.Close(); err != nil {
		log.Printf("close database: %v", err)
	}

	log.Println("✅ Server shutdown complete")
}

func setupRouter(cfg app.Config, h handlers.Handlers) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.MaxMultipartMemory = 16 << 20

	router.Static("/uploads", cfg.UploadsDir)
	handlers.RegisterRoutes(router, h)

	// Debug endpoints in development
	if gin.Mode() != gin.ReleaseMode {
		router.GET("/debug/metrics", h.Product.Metrics)
	}

	return router
}
