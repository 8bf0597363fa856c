package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wholesale-market/internal/kvstore"
	"wholesale-market/internal/models"
)

func TestCartRemoveMissingProductIsNoOp(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))

	p := backend.addProduct("رز", "1000", "", true, 10)
	if _, err := cart.AddToCart(ctx, p.ID, 2); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	before, _ := cart.GetCart(ctx)

	after, err := cart.RemoveFromCart(ctx, uuid.New())
	if err != nil {
		t.Fatalf("RemoveFromCart: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("cart changed: before %+v after %+v", before, after)
	}
}

func TestCartAddMergesByProduct(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	p := uuid.New()

	if _, err := cart.AddToCart(ctx, p, 2); err != nil {
		t.Fatal(err)
	}
	items, err := cart.AddToCart(ctx, p, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Quantity != 5 {
		t.Fatalf("want one line with quantity 5, got %+v", items)
	}
}

func TestCartAddRequiresSessionAndPositiveQuantity(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()

	cart, _ := newTestCart(t, backend, backend, &fakeSessions{err: ErrNotLoggedIn})
	if _, err := cart.AddToCart(ctx, uuid.New(), 1); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("want ErrNotLoggedIn, got %v", err)
	}

	cart, _ = newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	if _, err := cart.AddToCart(ctx, uuid.New(), 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("want ErrInvalidQuantity, got %v", err)
	}
}

func TestCartUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	p, q := uuid.New(), uuid.New()
	cart.AddToCart(ctx, p, 2)
	cart.AddToCart(ctx, q, 1)

	items, err := cart.UpdateQuantity(ctx, p, 7)
	if err != nil {
		t.Fatal(err)
	}
	if items[0].Quantity != 7 {
		t.Fatalf("quantity = %d, want 7", items[0].Quantity)
	}

	items, _ = cart.UpdateQuantity(ctx, uuid.New(), 4)
	if len(items) != 2 {
		t.Fatalf("update of absent product inserted a line: %+v", items)
	}

	items, _ = cart.UpdateQuantity(ctx, p, 0)
	for _, it := range items {
		if it.ProductID == p {
			t.Fatalf("line for %s still present after quantity 0", p)
		}
	}
	stored, _ := cart.GetCart(ctx)
	if len(stored) != 1 || stored[0].ProductID != q {
		t.Fatalf("stored cart = %+v", stored)
	}
}

func TestCartDetailsDropMissingProducts(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	cart.SetImageStorage(fakeImages{})

	p := backend.addProduct("سكر", "500", "", true, 10)
	p.ImageURL = "sugar.png"
	backend.products[p.ID] = p
	gone := uuid.New()
	cart.AddToCart(ctx, p.ID, 2)
	cart.AddToCart(ctx, gone, 3)

	details, err := cart.GetCartWithDetails(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(details) != 1 || details[0].ProductID != p.ID {
		t.Fatalf("details = %+v", details)
	}
	if details[0].Product.ImageURL != "https://cdn.test/products/sugar.png" {
		t.Errorf("image url = %q", details[0].Product.ImageURL)
	}
	if backend.productReads != 1 {
		t.Errorf("product queries = %d, want 1", backend.productReads)
	}

	count, _ := cart.GetCartCount(ctx)
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}
}

func TestCartTotalUsesDiscountPrice(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))

	a := backend.addProduct("زيت", "1000", "800", true, 10)
	b := backend.addProduct("طحين", "500", "", true, 10)
	cart.AddToCart(ctx, a.ID, 2)
	cart.AddToCart(ctx, b.ID, 3)

	total, err := cart.GetCartTotal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !total.Equal(decimal.NewFromInt(3100)) {
		t.Fatalf("total = %s, want 3100", total)
	}
}

func TestCartSaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	want := []models.CartLineItem{
		{ID: "b", ProductID: uuid.New(), Quantity: 4, AddedAt: at},
		{ID: "a", ProductID: uuid.New(), Quantity: 1, AddedAt: at.Add(time.Minute)},
	}
	if err := cart.SaveCart(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := cart.GetCart(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestCartSaveRejectsInvalidLines(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	p := uuid.New()

	err := cart.SaveCart(ctx, []models.CartLineItem{
		{ID: "a", ProductID: p, Quantity: 1},
		{ID: "c", ProductID: p, Quantity: 0},
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("want ErrInvalidQuantity, got %v", err)
	}
	if err := cart.SaveCart(ctx, []models.CartLineItem{{ID: "x", Quantity: 2}}); err == nil {
		t.Fatal("line without product accepted")
	}
	if items, _ := cart.GetCart(ctx); len(items) != 0 {
		t.Fatalf("rejected cart was stored: %+v", items)
	}
}

func TestCartSaveMergesDuplicateProducts(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	p := backend.addProduct("رز", "1000", "", true, 50)
	other := uuid.New()

	err := cart.SaveCart(ctx, []models.CartLineItem{
		{ID: "a", ProductID: p.ID, Quantity: 1},
		{ID: "o", ProductID: other, Quantity: 7},
		{ID: "b", ProductID: p.ID, Quantity: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	items, _ := cart.GetCart(ctx)
	if len(items) != 2 || items[0].ID != "a" || items[0].Quantity != 3 || items[1].ProductID != other {
		t.Fatalf("items = %+v", items)
	}

	items, err = cart.AddToCart(ctx, p.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Quantity != 6 {
		t.Fatalf("after add = %+v", items)
	}
}

func TestCartLoadMergesStoredDuplicates(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, store := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	p := uuid.New()
	raw := `[{"id":"a","product_id":"` + p.String() + `","quantity":1},{"id":"b","product_id":"` + p.String() + `","quantity":2}]`
	store.SetItem(ctx, cartKey, raw)

	items, err := cart.GetCart(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Quantity != 3 {
		t.Fatalf("items = %+v", items)
	}
}

func TestCartUnreadableStorageIsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, store := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))

	store.SetItem(ctx, cartKey, "{not json")
	items, err := cart.GetCart(ctx)
	if err != nil || len(items) != 0 {
		t.Fatalf("items = %+v, err = %v", items, err)
	}

	store.SetItem(ctx, cartKey, `[{"id":"x","product_id":"`+uuid.NewString()+`","quantity":0}]`)
	items, _ = cart.GetCart(ctx)
	if len(items) != 0 {
		t.Fatalf("zero-quantity line survived decode: %+v", items)
	}
}

func TestCartConcurrentAddsAreSerialized(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	p := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cart.AddToCart(ctx, p, 1); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	count, _ := cart.GetCartCount(ctx)
	if count != 50 {
		t.Fatalf("count = %d, want 50", count)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))

	_, err := cart.CreateOrderFromCart(context.Background(), "")
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("want ErrEmptyCart, got %v", err)
	}
	if backend.orderInserts != 0 || backend.itemInserts != 0 {
		t.Fatalf("remote writes on empty cart: %d orders, %d items", backend.orderInserts, backend.itemInserts)
	}
}

func TestCheckoutAbortsOnInactiveProduct(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))

	ok := backend.addProduct("شاي", "2000", "", true, 10)
	off := backend.addProduct("قهوة", "3000", "", false, 10)
	cart.AddToCart(ctx, ok.ID, 1)
	cart.AddToCart(ctx, off.ID, 1)

	_, err := cart.CreateOrderFromCart(ctx, "")
	var pe *ProductError
	if !errors.As(err, &pe) || pe.Name != "قهوة" || !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("want ProductError naming قهوة, got %v", err)
	}
	if backend.orderInserts != 0 || backend.itemInserts != 0 {
		t.Fatalf("writes happened: %d orders, %d items", backend.orderInserts, backend.itemInserts)
	}
	if n, _ := cart.GetCartCount(ctx); n != 2 {
		t.Fatalf("cart was modified, count = %d", n)
	}
}

func TestCheckoutAbortsOnMissingProduct(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	cart.AddToCart(ctx, uuid.New(), 1)

	_, err := cart.CreateOrderFromCart(ctx, "")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("want ErrProductNotFound, got %v", err)
	}
	if backend.orderInserts != 0 {
		t.Fatal("order inserted for missing product")
	}
}

func TestCheckoutPlacesOrder(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	sessions := activeSession(models.UserTypeStoreOwner)
	cart, _ := newTestCart(t, backend, backend, sessions)
	reconciler := NewInventoryReconciler(backend, kvstore.NewMemoryStore())
	cart.SetInventory(reconciler)

	a := backend.addProduct("حليب", "1000", "800", true, 10)
	b := backend.addProduct("جبن", "500", "", true, 10)
	cart.AddToCart(ctx, a.ID, 2)
	cart.AddToCart(ctx, b.ID, 3)

	id, err := cart.CreateOrderFromCart(ctx, "التوصيل صباحاً")
	if err != nil {
		t.Fatalf("CreateOrderFromCart: %v", err)
	}
	order := backend.orders[id]
	if order == nil {
		t.Fatal("order not stored")
	}
	if order.Status != models.OrderStatusPending || !order.TotalPrice.Equal(decimal.NewFromInt(3100)) {
		t.Fatalf("order = %+v", order)
	}
	if order.StoreOwnerID != sessions.session.UserID {
		t.Errorf("owner = %s", order.StoreOwnerID)
	}
	if order.OrderNotes == nil || *order.OrderNotes != "التوصيل صباحاً" {
		t.Errorf("notes = %v", order.OrderNotes)
	}
	if len(order.Items) != 2 || !order.Items[0].PriceAtOrder.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("items = %+v", order.Items)
	}
	if backend.stockOf(a.ID) != 8 || backend.stockOf(b.ID) != 7 {
		t.Fatalf("stock = %d, %d", backend.stockOf(a.ID), backend.stockOf(b.ID))
	}
	if n, _ := cart.GetCartCount(ctx); n != 0 {
		t.Fatalf("cart not cleared, count = %d", n)
	}
}

func TestCheckoutUsesTransactionWhenAvailable(t *testing.T) {
	ctx := context.Background()
	backend := &txBackend{fakeBackend: newFakeBackend()}
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	p := backend.addProduct("ماء", "250", "", true, 100)
	cart.AddToCart(ctx, p.ID, 4)

	id, err := cart.CreateOrderFromCart(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if backend.txCalls != 1 || backend.orderInserts != 0 || backend.itemInserts != 0 {
		t.Fatalf("tx=%d orders=%d items=%d", backend.txCalls, backend.orderInserts, backend.itemInserts)
	}
	if len(backend.orders[id].Items) != 1 {
		t.Fatalf("items = %+v", backend.orders[id].Items)
	}
}

func TestCheckoutRemovesOrphanOrderWhenItemsFail(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	p := backend.addProduct("عدس", "700", "", true, 10)
	cart.AddToCart(ctx, p.ID, 1)
	backend.failItems = errors.New("insert order_items: constraint violation")

	if _, err := cart.CreateOrderFromCart(ctx, ""); err == nil {
		t.Fatal("expected error")
	}
	if backend.orderInserts != 1 || backend.orderDeletes != 1 || len(backend.orders) != 0 {
		t.Fatalf("inserts=%d deletes=%d left=%d", backend.orderInserts, backend.orderDeletes, len(backend.orders))
	}
	if n, _ := cart.GetCartCount(ctx); n != 1 {
		t.Fatalf("cart cleared after failed checkout")
	}
	if backend.stockOf(p.ID) != 10 {
		t.Fatalf("stock touched after failed checkout")
	}
}

func TestCheckoutStockFailureIsQueued(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	reconciler := NewInventoryReconciler(backend, kvstore.NewMemoryStore())
	cart.SetInventory(reconciler)

	p := backend.addProduct("فاصوليا", "900", "", true, 10)
	cart.AddToCart(ctx, p.ID, 3)
	backend.failStock = errNetwork

	id, err := cart.CreateOrderFromCart(ctx, "")
	if err != nil {
		t.Fatalf("checkout should succeed despite stock failure: %v", err)
	}
	pending := reconciler.Pending()
	if len(pending) != 1 || pending[0].OrderID != id || pending[0].Delta != -3 {
		t.Fatalf("pending = %+v", pending)
	}

	backend.failStock = nil
	if n := reconciler.Reconcile(ctx); n != 1 {
		t.Fatalf("reconciled %d, want 1", n)
	}
	if backend.stockOf(p.ID) != 7 {
		t.Fatalf("stock = %d, want 7", backend.stockOf(p.ID))
	}
}

func TestCartClosedQueue(t *testing.T) {
	backend := newFakeBackend()
	cart, _ := newTestCart(t, backend, backend, activeSession(models.UserTypeStoreOwner))
	cart.Close()
	if err := cart.ClearCart(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("want ErrQueueClosed, got %v", err)
	}
}
