package services

import (
	"context"
	"fmt"
	"log"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wholesale-market/internal/models"
)

const cartKey = "cart_items"

// CartService owns the device-local cart and turns it into an order at
// checkout. Every mutation goes through one FIFO queue, so overlapping
// calls from different screens apply in order instead of overwriting each
// other.
type CartService struct {
	store    KeyValueStore
	sessions SessionProvider
	catalog  Catalog
	orders   OrderBackend

	inventory *InventoryReconciler
	images    ObjectStorage

	queue *mutationQueue
	now   func() time.Time
}

func NewCartService(store KeyValueStore, sessions SessionProvider, catalog Catalog, orders OrderBackend) *CartService {
	return &CartService{
		store:    store,
		sessions: sessions,
		catalog:  catalog,
		orders:   orders,
		queue:    newMutationQueue(64),
		now:      time.Now,
	}
}

// SetInventory routes failed stock adjustments to r for later retry.
func (s *CartService) SetInventory(r *InventoryReconciler) { s.inventory = r }

// SetImageStorage resolves product image paths to public URLs.
func (s *CartService) SetImageStorage(images ObjectStorage) { s.images = images }

// Close stops the mutation queue. Later mutations fail with ErrQueueClosed.
func (s *CartService) Close() { s.queue.Close() }

// AddToCart adds quantity of a product, merging with an existing line.
func (s *CartService) AddToCart(ctx context.Context, productID uuid.UUID, quantity int) ([]models.CartLineItem, error) {
	if _, err := s.sessions.RequireActive(ctx); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var out []models.CartLineItem
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		items, err := s.load(ctx)
		if err != nil {
			return err
		}
		merged := false
		for i := range items {
			if items[i].ProductID == productID {
				items[i].Quantity += quantity
				merged = true
				break
			}
		}
		if !merged {
			items = append(items, models.CartLineItem{
				ID:        newLineID(),
				ProductID: productID,
				Quantity:  quantity,
				AddedAt:   s.now().UTC(),
			})
		}
		if err := s.save(ctx, items); err != nil {
			return err
		}
		out = items
		return nil
	})
	if err != nil {
		log.Printf("CartService.AddToCart - product %s: %v", productID, err)
		return nil, err
	}
	return out, nil
}

// RemoveFromCart drops the product's line. Removing an absent product is
// not an error.
func (s *CartService) RemoveFromCart(ctx context.Context, productID uuid.UUID) ([]models.CartLineItem, error) {
	var out []models.CartLineItem
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.remove(ctx, productID)
		return err
	})
	if err != nil {
		log.Printf("CartService.RemoveFromCart - product %s: %v", productID, err)
		return nil, err
	}
	return out, nil
}

// UpdateQuantity sets the quantity of a product already in the cart.
// A quantity of zero or less removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, productID uuid.UUID, quantity int) ([]models.CartLineItem, error) {
	var out []models.CartLineItem
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		if quantity <= 0 {
			var err error
			out, err = s.remove(ctx, productID)
			return err
		}
		items, err := s.load(ctx)
		if err != nil {
			return err
		}
		for i := range items {
			if items[i].ProductID == productID {
				items[i].Quantity = quantity
				if err := s.save(ctx, items); err != nil {
					return err
				}
				break
			}
		}
		out = items
		return nil
	})
	if err != nil {
		log.Printf("CartService.UpdateQuantity - product %s: %v", productID, err)
		return nil, err
	}
	return out, nil
}

// GetCart returns the raw stored cart.
func (s *CartService) GetCart(ctx context.Context) ([]models.CartLineItem, error) {
	return s.load(ctx)
}

// SaveCart replaces the stored cart. Every line must be valid; lines for the
// same product are merged into the first one.
func (s *CartService) SaveCart(ctx context.Context, items []models.CartLineItem) error {
	lines := make([]models.CartLineItem, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return fmt.Errorf("%w: product %s quantity %d", ErrInvalidQuantity, it.ProductID, it.Quantity)
		}
		if it.ID == "" {
			it.ID = newLineID()
		}
		if it.AddedAt.IsZero() {
			it.AddedAt = s.now().UTC()
		}
		if err := models.Validate(&it); err != nil {
			return fmt.Errorf("cart line: %w", err)
		}
		lines = append(lines, it)
	}
	return s.queue.Do(ctx, func(ctx context.Context) error {
		return s.save(ctx, mergeLines(lines))
	})
}

// ClearCart empties the stored cart.
func (s *CartService) ClearCart(ctx context.Context) error {
	return s.queue.Do(ctx, func(ctx context.Context) error {
		return s.save(ctx, nil)
	})
}

// GetCartCount sums quantities over the raw cart without any remote call.
func (s *CartService) GetCartCount(ctx context.Context) (int, error) {
	items, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, it := range items {
		count += it.Quantity
	}
	return count, nil
}

// GetCartWithDetails joins the cart with live product rows in one query.
// Lines whose product no longer exists are left out of the result but stay
// in storage.
func (s *CartService) GetCartWithDetails(ctx context.Context) ([]models.CartItemDetails, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, items)
}

// GetCartTotal sums effective price times quantity over the enriched cart.
func (s *CartService) GetCartTotal(ctx context.Context) (decimal.Decimal, error) {
	details, err := s.GetCartWithDetails(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return cartTotal(details), nil
}

// Summary is the cart screen's view: enriched items, raw count and total.
func (s *CartService) Summary(ctx context.Context) (*models.CartSummary, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	details, err := s.enrich(ctx, items)
	if err != nil {
		return nil, err
	}
	count := 0
	for _, it := range items {
		count += it.Quantity
	}
	return &models.CartSummary{Items: details, Count: count, Total: cartTotal(details)}, nil
}

// CreateOrderFromCart places a pending order for everything in the cart.
// Every product is checked before anything is written. Order and items are
// written together; stock changes are best-effort and retried later by the
// inventory reconciler. The cart is cleared once the order exists.
func (s *CartService) CreateOrderFromCart(ctx context.Context, notes string) (uuid.UUID, error) {
	session, err := s.sessions.RequireActive(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var orderID uuid.UUID
	err = s.queue.Do(ctx, func(ctx context.Context) error {
		items, err := s.load(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		products, err := s.productsFor(ctx, items)
		if err != nil {
			return err
		}
		total := decimal.Zero
		orderItems := make([]models.OrderItem, 0, len(items))
		for _, it := range items {
			p, ok := products[it.ProductID]
			if !ok {
				return &ProductError{ProductID: it.ProductID, Err: ErrProductNotFound}
			}
			if !p.IsActive {
				return &ProductError{ProductID: p.ID, Name: p.Name, Err: ErrProductUnavailable}
			}
			price := p.EffectivePrice()
			total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
			orderItems = append(orderItems, models.OrderItem{
				ProductID:    p.ID,
				Quantity:     it.Quantity,
				PriceAtOrder: price,
			})
		}

		order := &models.Order{
			ID:           uuid.New(),
			StoreOwnerID: session.UserID,
			Status:       models.OrderStatusPending,
			TotalPrice:   total,
		}
		if notes != "" {
			order.OrderNotes = &notes
		}
		if err := s.writeOrder(ctx, order, orderItems); err != nil {
			return err
		}

		for _, oi := range orderItems {
			takeStock(ctx, s.orders, s.inventory, order.ID, oi.ProductID, oi.Quantity)
		}

		if err := s.save(ctx, nil); err != nil {
			log.Printf("CartService.CreateOrderFromCart - order %s placed but cart not cleared: %v", order.ID, err)
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		log.Printf("CartService.CreateOrderFromCart - %v", err)
		return uuid.Nil, err
	}
	log.Printf("CartService.CreateOrderFromCart - order %s placed by %s", orderID, session.UserID)
	return orderID, nil
}

func (s *CartService) writeOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	if tx, ok := s.orders.(TransactionalOrderBackend); ok {
		if err := tx.CreateOrderWithItems(ctx, order, items); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	}

	if err := s.orders.InsertOrder(ctx, order); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := s.orders.InsertOrderItems(ctx, items); err != nil {
		if derr := s.orders.DeleteOrder(context.WithoutCancel(ctx), order.ID); derr != nil {
			log.Printf("CartService.writeOrder - orphan order %s left behind: %v", order.ID, derr)
		}
		return fmt.Errorf("create order items: %w", err)
	}
	return nil
}

func (s *CartService) enrich(ctx context.Context, items []models.CartLineItem) ([]models.CartItemDetails, error) {
	if len(items) == 0 {
		return []models.CartItemDetails{}, nil
	}
	products, err := s.productsFor(ctx, items)
	if err != nil {
		return nil, err
	}
	details := make([]models.CartItemDetails, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		details = append(details, models.CartItemDetails{CartLineItem: it, Product: resolveImage(s.images, p)})
	}
	return details, nil
}

func (s *CartService) productsFor(ctx context.Context, items []models.CartLineItem) (map[uuid.UUID]models.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	rows, err := s.catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}
	byID := make(map[uuid.UUID]models.Product, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	return byID, nil
}

func (s *CartService) remove(ctx context.Context, productID uuid.UUID) ([]models.CartLineItem, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	kept := items[:0]
	for _, it := range items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	if err := s.save(ctx, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// load reads the stored cart. An unreadable cart is treated as empty and
// malformed lines are skipped.
func (s *CartService) load(ctx context.Context) ([]models.CartLineItem, error) {
	raw, ok, err := s.store.GetItem(ctx, cartKey)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if !ok || raw == "" {
		return []models.CartLineItem{}, nil
	}
	var stored []models.CartLineItem
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		log.Printf("CartService.load - discarding unreadable cart: %v", err)
		return []models.CartLineItem{}, nil
	}
	items := make([]models.CartLineItem, 0, len(stored))
	for _, it := range stored {
		if err := models.Validate(&it); err != nil {
			log.Printf("CartService.load - skipping line: %v", err)
			continue
		}
		items = append(items, it)
	}
	return mergeLines(items), nil
}

// mergeLines folds lines for the same product into the first one, keeping
// its id and position.
func mergeLines(items []models.CartLineItem) []models.CartLineItem {
	out := make([]models.CartLineItem, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

func (s *CartService) save(ctx context.Context, items []models.CartLineItem) error {
	if items == nil {
		items = []models.CartLineItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := s.store.SetItem(ctx, cartKey, string(raw)); err != nil {
		return fmt.Errorf("write cart: %w", err)
	}
	return nil
}

func cartTotal(details []models.CartItemDetails) decimal.Decimal {
	total := decimal.Zero
	for _, d := range details {
		total = total.Add(d.LineTotal())
	}
	return total
}

func newLineID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
