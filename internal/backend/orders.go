package backend

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wholesale-market/internal/models"
)

// InsertOrder writes the order row only; items go through InsertOrderItems.
func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (s *Store) InsertOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&items).Error
}

// DeleteOrder removes an order and any items it has.
func (s *Store) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Order{}).Error
	})
}

// CreateOrderWithItems writes the order and its items in one transaction.
func (s *Store) CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return fmt.Errorf("insert order items: %w", err)
			}
		}
		return nil
	})
}

// AdjustStock adds delta to a product's stock. A decrement that would take
// stock below zero is refused with ErrInsufficientStock.
func (s *Store) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error {
	tx := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", productID)
	if delta < 0 {
		tx = tx.Where("stock_quantity >= ?", -delta)
	}
	res := tx.UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.ErrNotFound
		}
		return models.ErrInsufficientStock
	}
	return nil
}

// SetStockTaken flags the order line for productID as having had its stock
// decrement applied, or not.
func (s *Store) SetStockTaken(ctx context.Context, orderID, productID uuid.UUID, taken bool) error {
	res := s.db.WithContext(ctx).Model(&models.OrderItem{}).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		Update("stock_taken", taken)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) ListOrders(ctx context.Context, storeOwnerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("store_owner_id = ?", storeOwnerID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// UpdateOrderStatus moves an order from one status to another. The from
// status guards against a concurrent change.
func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}
