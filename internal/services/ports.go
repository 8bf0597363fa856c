package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"wholesale-market/internal/models"
)

// KeyValueStore is the device-local persistent store.
type KeyValueStore interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

type SessionBackend interface {
	InsertAuthLog(ctx context.Context, rec *models.AuthLog) error
	GetAuthLog(ctx context.Context, id uuid.UUID) (*models.AuthLog, error)
	ExtendAuthLog(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	MarkAuthLogUsed(ctx context.Context, id uuid.UUID) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type AccountDirectory interface {
	GetUserAccountInfo(ctx context.Context, phone string) (*models.AccountInfo, error)
}

type OTPProvider interface {
	SignInWithOTP(ctx context.Context, phone string, channel models.OTPChannel, metadata map[string]any) error
	VerifyOTP(ctx context.Context, phone, token string) (*models.AuthIdentity, error)
	SignOut(ctx context.Context, accessToken string) error
}

type Catalog interface {
	ProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	SearchProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, int64, error)
}

type StockAdjuster interface {
	AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error
	// SetStockTaken records whether the checkout decrement of an order line
	// has been applied.
	SetStockTaken(ctx context.Context, orderID, productID uuid.UUID, taken bool) error
}

type OrderBackend interface {
	StockAdjuster
	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderItems(ctx context.Context, items []models.OrderItem) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	ListOrders(ctx context.Context, storeOwnerID uuid.UUID) ([]models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error
}

// TransactionalOrderBackend is implemented by backends that can write an
// order and its items atomically.
type TransactionalOrderBackend interface {
	CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error
}

type FavoriteBackend interface {
	FavoriteExists(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	AddFavorite(ctx context.Context, entry *models.FavoriteEntry) error
	RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error
	ListFavorites(ctx context.Context, userID uuid.UUID) ([]models.FavoriteEntry, error)
}

type ObjectStorage interface {
	Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) error
	PublicURL(bucket, objectPath string) string
	Remove(ctx context.Context, bucket, objectPath string) error
}

// SessionProvider gates operations that need a logged-in, approved user.
type SessionProvider interface {
	RequireActive(ctx context.Context) (*models.UserSession, error)
}
