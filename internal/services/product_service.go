package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"wholesale-market/internal/models"
)

const (
	ProductImageBucket = "products"

	defaultPageSize = 20
	maxPageSize     = 100
)

// ProductService is read-only catalog browsing.
type ProductService struct {
	catalog Catalog
	images  ObjectStorage
}

func NewProductService(catalog Catalog, images ObjectStorage) *ProductService {
	return &ProductService{catalog: catalog, images: images}
}

// Search lists active products whose name contains q.Query, newest first.
func (s *ProductService) Search(ctx context.Context, q models.ProductQuery) (*models.ProductPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > maxPageSize {
		q.Limit = defaultPageSize
	}
	q.Query = strings.TrimSpace(q.Query)

	products, total, err := s.catalog.SearchProducts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	for i := range products {
		products[i] = resolveImage(s.images, products[i])
	}

	totalPages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return &models.ProductPage{
		Products:   products,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    q.Page < totalPages,
		HasPrev:    q.Page > 1,
	}, nil
}

func (s *ProductService) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	resolved := resolveImage(s.images, *p)
	return &resolved, nil
}

// resolveImage replaces a stored image path with its public URL.
func resolveImage(images ObjectStorage, p models.Product) models.Product {
	if images != nil && p.ImageURL != "" {
		p.ImageURL = images.PublicURL(ProductImageBucket, p.ImageURL)
	}
	return p
}
