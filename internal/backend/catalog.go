package backend

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"wholesale-market/internal/models"
)

// ProductsByIDs fetches every listed product in one query. Unknown ids are
// simply absent from the result.
func (s *Store) ProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for i := range products {
		if err := models.Validate(&products[i]); err != nil {
			return nil, err
		}
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	if err := models.Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchProducts lists active products, newest first. The name match is
// case-insensitive and portable across dialects.
func (s *Store) SearchProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.Product{}).Where("is_active = ?", true)
	if term := strings.TrimSpace(q.Query); term != "" {
		tx = tx.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	if q.MerchantID != uuid.Nil {
		tx = tx.Where("merchant_id = ?", q.MerchantID)
	}

	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	err := tx.Order("created_at DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&products).Error
	if err != nil {
		return nil, 0, err
	}
	for i := range products {
		if err := models.Validate(&products[i]); err != nil {
			return nil, 0, err
		}
	}
	return products, total, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	return s.db.WithContext(ctx).Create(p).Error
}
