package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLineItem is one product/quantity pairing in the device-local cart.
type CartLineItem struct {
	ID        string    `json:"id" validate:"required"`
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gte=1"`
	AddedAt   time.Time `json:"added_at"`
}

// CartItemDetails is a line item joined with the live product row.
type CartItemDetails struct {
	CartLineItem
	Product Product `json:"product"`
}

func (d CartItemDetails) LineTotal() decimal.Decimal {
	return d.Product.EffectivePrice().Mul(decimal.NewFromInt(int64(d.Quantity)))
}

type CartSummary struct {
	Items []CartItemDetails `json:"items"`
	Count int               `json:"count"`
	Total decimal.Decimal   `json:"total"`
}

type AddToCartRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}
