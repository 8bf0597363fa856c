package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"wholesale-market/api/handlers"
	"wholesale-market/internal/app"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := app.Config{
		Env:         "dev",
		UploadsDir:  t.TempDir(),
		CORSOrigins: []string{"http://localhost:8081"},
	}
	return setupRouter(cfg, handlers.Handlers{
		Session:  &handlers.SessionHandler{},
		Product:  &handlers.ProductHandler{},
		Cart:     &handlers.CartHandler{},
		Order:    &handlers.OrderHandler{},
		Favorite: &handlers.FavoriteHandler{},
		Storage:  &handlers.StorageHandler{},
	})
}

func TestSetupRouterRegistersRoutes(t *testing.T) {
	router := testRouter(t)
	have := make(map[string]bool)
	for _, r := range router.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /api/health",
		"POST /api/auth/otp/verify",
		"GET /api/session",
		"POST /api/cart/items",
		"DELETE /api/cart/items/:product_id",
		"POST /api/orders",
		"PUT /api/orders/:id/status",
		"GET /api/favorites/:product_id/watch",
		"POST /api/storage/:bucket",
		"GET /debug/metrics",
	} {
		if !have[want] {
			t.Errorf("missing route %s", want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
	req.Header.Set("Origin", "http://localhost:8081")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8081" {
		t.Fatalf("allow origin = %q (status %d)", got, w.Code)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign origin status = %d", w.Code)
	}
}
