package handlers

import (
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wholesale-market/internal/services"
)

const watchWriteWait = 10 * time.Second

type favoriteEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	IsFavorite bool      `json:"is_favorite"`
}

type FavoriteHandler struct {
	favoriteService *services.FavoriteService
	upgrader        websocket.Upgrader
}

// NewFavoriteHandler accepts websocket upgrades from the given origins, or
// from anywhere when origins is empty.
func NewFavoriteHandler(favoriteService *services.FavoriteService, origins []string) *FavoriteHandler {
	return &FavoriteHandler{
		favoriteService: favoriteService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
			},
		},
	}
}

// GET /api/favorites
func (h *FavoriteHandler) ListFavorites(c *gin.Context) {
	entries, err := h.favoriteService.GetFavorites(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"data": entries})
}

// GET /api/favorites/:product_id
func (h *FavoriteHandler) GetStatus(c *gin.Context) {
	productID, ok := uuidParam(c, "product_id")
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"product_id":  productID,
		"is_favorite": h.favoriteService.IsFavorite(c.Request.Context(), productID),
	})
}

// POST /api/favorites/:product_id/toggle
func (h *FavoriteHandler) Toggle(c *gin.Context) {
	productID, ok := uuidParam(c, "product_id")
	if !ok {
		return
	}
	result, err := h.favoriteService.ToggleFavorite(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"is_favorite": result.IsFavorite,
		"message":     result.Message,
	})
}

// GET /api/favorites/:product_id/watch
// Streams every successful toggle of the product until the client disconnects.
func (h *FavoriteHandler) Watch(c *gin.Context) {
	productID, ok := uuidParam(c, "product_id")
	if !ok {
		return
	}
	initial := h.favoriteService.IsFavorite(c.Request.Context(), productID)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("FavoriteHandler.Watch - upgrade: %v", err)
		return
	}
	defer conn.Close()

	events := make(chan bool, 16)
	unsubscribe := h.favoriteService.Subscribe(productID, func(isFavorite bool) {
		select {
		case events <- isFavorite:
		default:
			log.Printf("FavoriteHandler.Watch - dropping event for slow client on %s", productID)
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeFavoriteEvent(conn, productID, initial); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case isFavorite := <-events:
			if err := writeFavoriteEvent(conn, productID, isFavorite); err != nil {
				return
			}
		}
	}
}

func writeFavoriteEvent(conn *websocket.Conn, productID uuid.UUID, isFavorite bool) error {
	data, err := json.Marshal(favoriteEvent{ProductID: productID, IsFavorite: isFavorite})
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
