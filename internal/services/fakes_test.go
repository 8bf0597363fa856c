package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wholesale-market/internal/kvstore"
	"wholesale-market/internal/models"
)

var errNetwork = errors.New("fetch failed: network error")

type stockCall struct {
	ProductID uuid.UUID
	Delta     int
}

// fakeBackend stands in for the remote tables. Each failure field, when
// set, is returned by the matching call.
type fakeBackend struct {
	mu sync.Mutex

	products map[uuid.UUID]models.Product
	orders   map[uuid.UUID]*models.Order
	authLogs map[uuid.UUID]*models.AuthLog
	users    map[uuid.UUID]models.User
	accounts map[string]models.AccountInfo
	favs     map[[2]uuid.UUID]bool

	orderInserts int
	itemInserts  int
	orderDeletes int
	productReads int
	stockCalls   []stockCall

	failProducts   error
	failItems      error
	failStock      error
	failAuthLog    error
	failInsertLog  error
	failMarkUsed   error
	failFavorite   error
	failAccounts   []error
	accountLookups int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products: make(map[uuid.UUID]models.Product),
		orders:   make(map[uuid.UUID]*models.Order),
		authLogs: make(map[uuid.UUID]*models.AuthLog),
		users:    make(map[uuid.UUID]models.User),
		accounts: make(map[string]models.AccountInfo),
		favs:     make(map[[2]uuid.UUID]bool),
	}
}

func (b *fakeBackend) addProduct(name string, price string, discount string, active bool, stock int) models.Product {
	p := models.Product{
		ID:            uuid.New(),
		MerchantID:    uuid.New(),
		Name:          name,
		Price:         decimal.RequireFromString(price),
		IsActive:      active,
		StockQuantity: stock,
		CreatedAt:     time.Now(),
	}
	if discount != "" {
		p.DiscountPrice = decimal.NewNullDecimal(decimal.RequireFromString(discount))
	}
	b.mu.Lock()
	b.products[p.ID] = p
	b.mu.Unlock()
	return p
}

func (b *fakeBackend) stockOf(id uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.products[id].StockQuantity
}

func (b *fakeBackend) ProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.productReads++
	if b.failProducts != nil {
		return nil, b.failProducts
	}
	var out []models.Product
	for _, id := range ids {
		if p, ok := b.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (b *fakeBackend) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.products[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (b *fakeBackend) SearchProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var matched []models.Product
	for _, p := range b.products {
		if p.IsActive && strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Query)) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := int64(len(matched))
	start := (q.Page - 1) * q.Limit
	if start >= len(matched) {
		return []models.Product{}, total, nil
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (b *fakeBackend) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stockCalls = append(b.stockCalls, stockCall{productID, delta})
	if b.failStock != nil {
		return b.failStock
	}
	p, ok := b.products[productID]
	if !ok {
		return models.ErrNotFound
	}
	if p.StockQuantity+delta < 0 {
		return models.ErrInsufficientStock
	}
	p.StockQuantity += delta
	b.products[productID] = p
	return nil
}

func (b *fakeBackend) SetStockTaken(ctx context.Context, orderID, productID uuid.UUID, taken bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return models.ErrNotFound
	}
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			o.Items[i].StockTaken = taken
			return nil
		}
	}
	return models.ErrNotFound
}

func (b *fakeBackend) InsertOrder(ctx context.Context, order *models.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderInserts++
	cp := *order
	b.orders[order.ID] = &cp
	return nil
}

func (b *fakeBackend) InsertOrderItems(ctx context.Context, items []models.OrderItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.itemInserts++
	if b.failItems != nil {
		return b.failItems
	}
	for _, it := range items {
		if o, ok := b.orders[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return nil
}

func (b *fakeBackend) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderDeletes++
	delete(b.orders, id)
	return nil
}

func (b *fakeBackend) ListOrders(ctx context.Context, storeOwnerID uuid.UUID) ([]models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Order
	for _, o := range b.orders {
		if o.StoreOwnerID == storeOwnerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (b *fakeBackend) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (b *fakeBackend) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok || o.Status != from {
		return models.ErrNotFound
	}
	o.Status = to
	return nil
}

func (b *fakeBackend) InsertAuthLog(ctx context.Context, rec *models.AuthLog) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failInsertLog != nil {
		return b.failInsertLog
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	cp := *rec
	b.authLogs[rec.ID] = &cp
	return nil
}

func (b *fakeBackend) GetAuthLog(ctx context.Context, id uuid.UUID) (*models.AuthLog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAuthLog != nil {
		return nil, b.failAuthLog
	}
	rec, ok := b.authLogs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (b *fakeBackend) ExtendAuthLog(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.authLogs[id]
	if !ok || rec.IsUsed {
		return models.ErrNotFound
	}
	rec.ExpiresAt = expiresAt
	return nil
}

func (b *fakeBackend) MarkAuthLogUsed(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failMarkUsed != nil {
		return b.failMarkUsed
	}
	if rec, ok := b.authLogs[id]; ok {
		rec.IsUsed = true
	}
	return nil
}

func (b *fakeBackend) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

func (b *fakeBackend) GetUserAccountInfo(ctx context.Context, phone string) (*models.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accountLookups++
	if len(b.failAccounts) > 0 {
		err := b.failAccounts[0]
		b.failAccounts = b.failAccounts[1:]
		return nil, err
	}
	info, ok := b.accounts[phone]
	if !ok {
		return &models.AccountInfo{}, nil
	}
	return &info, nil
}

func (b *fakeBackend) FavoriteExists(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.favs[[2]uuid.UUID{userID, productID}], nil
}

func (b *fakeBackend) AddFavorite(ctx context.Context, entry *models.FavoriteEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFavorite != nil {
		return b.failFavorite
	}
	b.favs[[2]uuid.UUID{entry.UserID, entry.ProductID}] = true
	return nil
}

func (b *fakeBackend) RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFavorite != nil {
		return b.failFavorite
	}
	delete(b.favs, [2]uuid.UUID{userID, productID})
	return nil
}

func (b *fakeBackend) ListFavorites(ctx context.Context, userID uuid.UUID) ([]models.FavoriteEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.FavoriteEntry
	for pair := range b.favs {
		if pair[0] != userID {
			continue
		}
		if p, ok := b.products[pair[1]]; ok {
			out = append(out, models.FavoriteEntry{UserID: userID, ProductID: p.ID, Product: p})
		}
	}
	return out, nil
}

// txBackend adds the atomic order write.
type txBackend struct {
	*fakeBackend
	txCalls int
}

func (b *txBackend) CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	b.mu.Lock()
	b.txCalls++
	fail := b.failItems
	b.mu.Unlock()
	if fail != nil {
		return fail
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	cp := *order
	cp.Items = append([]models.OrderItem(nil), items...)
	b.mu.Lock()
	b.orders[order.ID] = &cp
	b.mu.Unlock()
	return nil
}

// fakeSessions is a SessionProvider with a fixed answer.
type fakeSessions struct {
	session *models.UserSession
	err     error
}

func (f *fakeSessions) RequireActive(ctx context.Context) (*models.UserSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.session
	return &cp, nil
}

func activeSession(userType models.UserType) *fakeSessions {
	return &fakeSessions{session: &models.UserSession{
		UserID:      uuid.New(),
		PhoneNumber: "+9647701234567",
		FullName:    "متجر النور",
		UserType:    userType,
		IsApproved:  true,
		AuthLogID:   uuid.New(),
	}}
}

type fakeImages struct{}

func (fakeImages) Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) error {
	return nil
}

func (fakeImages) PublicURL(bucket, objectPath string) string {
	return "https://cdn.test/" + bucket + "/" + objectPath
}

func (fakeImages) Remove(ctx context.Context, bucket, objectPath string) error { return nil }

func newTestCart(t *testing.T, orders OrderBackend, catalog Catalog, sessions SessionProvider) (*CartService, *kvstore.MemoryStore) {
	t.Helper()
	store := kvstore.NewMemoryStore()
	svc := NewCartService(store, sessions, catalog, orders)
	t.Cleanup(svc.Close)
	return svc, store
}
