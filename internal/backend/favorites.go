package backend

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"wholesale-market/internal/models"
)

func (s *Store) FavoriteExists(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.FavoriteEntry{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&count).Error
	return count > 0, err
}

// AddFavorite is idempotent on the (user, product) pair.
func (s *Store) AddFavorite(ctx context.Context, entry *models.FavoriteEntry) error {
	return s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(entry).Error
}

func (s *Store) RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.FavoriteEntry{}).Error
}

// ListFavorites returns the user's favorites joined with live product rows.
// Favorites whose product no longer exists are left out.
func (s *Store) ListFavorites(ctx context.Context, userID uuid.UUID) ([]models.FavoriteEntry, error) {
	var entries []models.FavoriteEntry
	err := s.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	live := entries[:0]
	for _, e := range entries {
		if e.Product.ID == uuid.Nil {
			continue
		}
		if err := models.Validate(&e.Product); err != nil {
			return nil, err
		}
		live = append(live, e)
	}
	return live, nil
}
