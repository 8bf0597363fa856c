package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"wholesale-market/internal/models"
)

// OrderService covers what happens to an order after checkout: history,
// cancellation by the store owner and status changes by merchants.
type OrderService struct {
	orders    OrderBackend
	sessions  SessionProvider
	inventory *InventoryReconciler

	stats struct {
		sync.RWMutex
		cancelled   int64
		transitions int64
		rejected    int64
	}
}

func NewOrderService(orders OrderBackend, sessions SessionProvider, inventory *InventoryReconciler) *OrderService {
	return &OrderService{orders: orders, sessions: sessions, inventory: inventory}
}

// ListOrders returns the current store owner's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	session, err := s.sessions.RequireActive(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListOrders(ctx, session.UserID)
	if err != nil {
		log.Printf("OrderService.ListOrders - %s: %v", session.UserID, err)
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder returns one order. Store owners only see their own.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	session, err := s.sessions.RequireActive(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.UserType == models.UserTypeStoreOwner && order.StoreOwnerID != session.UserID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// CancelOrder lets a store owner withdraw a pending order. Stock taken at
// checkout is put back.
func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	session, err := s.sessions.RequireActive(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.StoreOwnerID != session.UserID {
		return nil, ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPending {
		s.reject()
		return nil, ErrInvalidTransition
	}
	return s.transition(ctx, order, models.OrderStatusCancelled)
}

// UpdateOrderStatus moves an order along its lifecycle. Only merchants and
// admins may do this.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (*models.Order, error) {
	session, err := s.sessions.RequireActive(ctx)
	if err != nil {
		return nil, err
	}
	if session.UserType != models.UserTypeMerchant && session.UserType != models.UserTypeAdmin {
		return nil, ErrForbidden
	}
	next, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(next) {
		s.reject()
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, next)
	}
	return s.transition(ctx, order, next)
}

func (s *OrderService) transition(ctx context.Context, order *models.Order, next models.OrderStatus) (*models.Order, error) {
	if err := s.orders.UpdateOrderStatus(ctx, order.ID, order.Status, next); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Someone else moved the order first.
			s.reject()
			return nil, ErrInvalidTransition
		}
		log.Printf("OrderService.transition - order %s %s→%s: %v", order.ID, order.Status, next, err)
		return nil, fmt.Errorf("update order status: %w", err)
	}
	log.Printf("OrderService.transition - order %s %s→%s", order.ID, order.Status, next)
	order.Status = next

	s.stats.Lock()
	s.stats.transitions++
	if next == models.OrderStatusCancelled {
		s.stats.cancelled++
	}
	s.stats.Unlock()

	if next == models.OrderStatusCancelled {
		s.restoreStock(ctx, order)
	}
	return order, nil
}

// restoreStock gives back what checkout actually took. Decrements still
// waiting in the reconciler are dropped instead, and lines whose decrement
// never applied are left alone.
func (s *OrderService) restoreStock(ctx context.Context, order *models.Order) {
	if s.inventory != nil {
		if n := s.inventory.DropOrder(order.ID); n > 0 {
			log.Printf("OrderService.restoreStock - order %s: dropped %d pending decrements", order.ID, n)
		}
	}
	if fresh, err := s.orders.GetOrder(ctx, order.ID); err == nil {
		order.Items = fresh.Items
	} else {
		log.Printf("OrderService.restoreStock - reload order %s: %v", order.ID, err)
	}

	for i, it := range order.Items {
		if !it.StockTaken {
			continue
		}
		markStockTaken(ctx, s.orders, order.ID, it.ProductID, false)
		adjustStock(ctx, s.orders, s.inventory, order.ID, it.ProductID, it.Quantity)
		order.Items[i].StockTaken = false
	}
}

func (s *OrderService) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (s *OrderService) reject() {
	s.stats.Lock()
	s.stats.rejected++
	s.stats.Unlock()
}

// GetStats reports status-change counters since start.
func (s *OrderService) GetStats() map[string]int64 {
	s.stats.RLock()
	defer s.stats.RUnlock()

	pending := int64(0)
	if s.inventory != nil {
		pending = int64(len(s.inventory.Pending()))
	}
	return map[string]int64{
		"transitions":               s.stats.transitions,
		"cancelled":                 s.stats.cancelled,
		"rejected_transitions":      s.stats.rejected,
		"pending_stock_adjustments": pending,
	}
}
