package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID            uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey" validate:"required"`
	MerchantID    uuid.UUID           `json:"merchant_id" gorm:"type:uuid;index;not null" validate:"required"`
	Name          string              `json:"name" gorm:"not null" validate:"required"`
	Description   string              `json:"description"`
	Price         decimal.Decimal     `json:"price" gorm:"type:numeric(14,2);not null" validate:"gte=0"`
	DiscountPrice decimal.NullDecimal `json:"discount_price" gorm:"type:numeric(14,2)" validate:"omitempty,gte=0"`
	ImageURL      string              `json:"image_url"`
	IsActive      bool                `json:"is_active" gorm:"not null"`
	StockQuantity int                 `json:"stock_quantity" gorm:"not null" validate:"gte=0"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// EffectivePrice is the discount price when one is set, otherwise the list price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice.Valid {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}

type ProductQuery struct {
	Query      string
	MerchantID uuid.UUID
	Page       int
	Limit      int
}

type ProductPage struct {
	Products   []Product `json:"data"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Total      int64     `json:"total"`
	TotalPages int       `json:"total_pages"`
	HasNext    bool      `json:"has_next"`
	HasPrev    bool      `json:"has_prev"`
}
