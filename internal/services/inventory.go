package services

import (
	"context"
	"log"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"wholesale-market/internal/models"
)

const (
	maxAdjustmentAttempts = 5
	pendingStockKey       = "pending_stock_adjustments"
)

// InventoryReconciler holds stock adjustments that failed when an order was
// placed or cancelled and retries them until they apply. The pending list is
// kept in the device store so it outlives the process.
type InventoryReconciler struct {
	stock StockAdjuster
	store KeyValueStore

	// pass is held for a whole Reconcile run.
	pass sync.Mutex

	mu       sync.Mutex
	inflight []models.StockAdjustment
	pending  []models.StockAdjustment
}

func NewInventoryReconciler(stock StockAdjuster, store KeyValueStore) *InventoryReconciler {
	r := &InventoryReconciler{stock: stock, store: store}
	r.load(context.Background())
	return r
}

func (r *InventoryReconciler) Enqueue(adj models.StockAdjustment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, adj)
	r.persistLocked(context.Background())
}

// Pending returns a copy of the adjustments still waiting.
func (r *InventoryReconciler) Pending() []models.StockAdjustment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// DropOrder discards the order's decrements that have not reached the catalog
// yet and returns how many were dropped. It waits for a running pass so no
// decrement of the order is applied after it returns.
func (r *InventoryReconciler) DropOrder(orderID uuid.UUID) int {
	r.pass.Lock()
	defer r.pass.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.pending[:0]
	dropped := 0
	for _, adj := range r.pending {
		if adj.OrderID == orderID && adj.Delta < 0 {
			dropped++
			continue
		}
		kept = append(kept, adj)
	}
	r.pending = kept
	if dropped > 0 {
		r.persistLocked(context.Background())
	}
	return dropped
}

// Reconcile applies pending adjustments and returns how many succeeded.
// Adjustments that keep failing are dropped after maxAdjustmentAttempts.
func (r *InventoryReconciler) Reconcile(ctx context.Context) int {
	r.pass.Lock()
	defer r.pass.Unlock()

	r.mu.Lock()
	batch := r.pending
	r.inflight = batch
	r.pending = nil
	r.mu.Unlock()

	applied := 0
	var retry []models.StockAdjustment
	for i, adj := range batch {
		if ctx.Err() != nil {
			retry = append(retry, batch[i:]...)
			break
		}
		err := r.stock.AdjustStock(ctx, adj.ProductID, adj.Delta)
		if err == nil {
			applied++
			if adj.Delta < 0 && adj.OrderID != uuid.Nil {
				markStockTaken(ctx, r.stock, adj.OrderID, adj.ProductID, true)
			}
			continue
		}
		adj.Attempts++
		adj.LastError = err.Error()
		if adj.Attempts >= maxAdjustmentAttempts {
			log.Printf("❌ InventoryReconciler - giving up on product %s (order %s, delta %d): %v",
				adj.ProductID, adj.OrderID, adj.Delta, err)
			continue
		}
		retry = append(retry, adj)
	}

	r.mu.Lock()
	r.pending = append(retry, r.pending...)
	r.inflight = nil
	r.persistLocked(context.WithoutCancel(ctx))
	r.mu.Unlock()
	return applied
}

// Run reconciles on every tick until ctx ends.
func (r *InventoryReconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reconcile(ctx); n > 0 {
				log.Printf("📦 InventoryReconciler - applied %d stock adjustments", n)
			}
		}
	}
}

func (r *InventoryReconciler) snapshotLocked() []models.StockAdjustment {
	out := make([]models.StockAdjustment, 0, len(r.inflight)+len(r.pending))
	out = append(out, r.inflight...)
	return append(out, r.pending...)
}

func (r *InventoryReconciler) persistLocked(ctx context.Context) {
	raw, err := json.Marshal(r.snapshotLocked())
	if err != nil {
		log.Printf("InventoryReconciler.persist - encode: %v", err)
		return
	}
	if err := r.store.SetItem(ctx, pendingStockKey, string(raw)); err != nil {
		log.Printf("InventoryReconciler.persist - %v", err)
	}
}

func (r *InventoryReconciler) load(ctx context.Context) {
	raw, ok, err := r.store.GetItem(ctx, pendingStockKey)
	if err != nil {
		log.Printf("InventoryReconciler.load - %v", err)
		return
	}
	if !ok || raw == "" {
		return
	}
	var stored []models.StockAdjustment
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		log.Printf("InventoryReconciler.load - discarding unreadable list: %v", err)
		return
	}
	for _, adj := range stored {
		if adj.ProductID == uuid.Nil || adj.Delta == 0 {
			continue
		}
		r.pending = append(r.pending, adj)
	}
	if len(r.pending) > 0 {
		log.Printf("📦 InventoryReconciler - %d stock adjustments carried over", len(r.pending))
	}
}

// adjustStock applies a stock change and hands failures to the reconciler.
// It reports whether the change reached the catalog now.
func adjustStock(ctx context.Context, stock StockAdjuster, inventory *InventoryReconciler, orderID, productID uuid.UUID, delta int) bool {
	err := stock.AdjustStock(ctx, productID, delta)
	if err == nil {
		return true
	}
	log.Printf("⚠️  stock adjustment %+d for product %s (order %s) failed: %v", delta, productID, orderID, err)
	if inventory != nil {
		inventory.Enqueue(models.StockAdjustment{
			OrderID:   orderID,
			ProductID: productID,
			Delta:     delta,
			Attempts:  1,
			LastError: err.Error(),
		})
	}
	return false
}

// takeStock decrements stock for an order line and records it on the line
// when the decrement applied.
func takeStock(ctx context.Context, stock StockAdjuster, inventory *InventoryReconciler, orderID, productID uuid.UUID, quantity int) {
	if adjustStock(ctx, stock, inventory, orderID, productID, -quantity) {
		markStockTaken(ctx, stock, orderID, productID, true)
	}
}

func markStockTaken(ctx context.Context, stock StockAdjuster, orderID, productID uuid.UUID, taken bool) {
	if err := stock.SetStockTaken(context.WithoutCancel(ctx), orderID, productID, taken); err != nil {
		log.Printf("⚠️  order %s product %s: record stock_taken=%t: %v", orderID, productID, taken, err)
	}
}
