package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var ErrInvalidOrderStatus = errors.New("invalid order status")

// ParseOrderStatus maps free-form input onto a known status.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(s))) {
	case OrderStatusPending:
		return OrderStatusPending, nil
	case OrderStatusConfirmed:
		return OrderStatusConfirmed, nil
	case OrderStatusPreparing:
		return OrderStatusPreparing, nil
	case OrderStatusShipped:
		return OrderStatusShipped, nil
	case OrderStatusDelivered:
		return OrderStatusDelivered, nil
	case OrderStatusCancelled:
		return OrderStatusCancelled, nil
	default:
		return "", ErrInvalidOrderStatus
	}
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// CanTransitionTo reports whether an order in status s may move to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Order struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	StoreOwnerID uuid.UUID       `json:"store_owner_id" gorm:"type:uuid;index;not null"`
	Status       OrderStatus     `json:"status" gorm:"type:varchar(20);not null"`
	TotalPrice   decimal.Decimal `json:"total_price" gorm:"type:numeric(14,2);not null"`
	OrderNotes   *string         `json:"order_notes,omitempty"`
	Items        []OrderItem     `json:"items,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem snapshots the unit price at purchase time in PriceAtOrder.
// StockTaken is set once the checkout decrement for the line has reached the
// catalog; only those lines get their quantity back on cancellation.
type OrderItem struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID      uuid.UUID       `json:"order_id" gorm:"type:uuid;index;not null"`
	ProductID    uuid.UUID       `json:"product_id" gorm:"type:uuid;not null"`
	Quantity     int             `json:"quantity" gorm:"not null"`
	PriceAtOrder decimal.Decimal `json:"price_at_order" gorm:"type:numeric(14,2);not null"`
	StockTaken   bool            `json:"stock_taken" gorm:"not null;default:false"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// StockAdjustment is an inventory change that still has to reach the catalog.
type StockAdjustment struct {
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Delta     int       `json:"delta"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
}

type CreateOrderRequest struct {
	Notes string `json:"notes"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
