package backend

import (
	"context"
	"time"

	"github.com/google/uuid"

	"wholesale-market/internal/models"
)

func (s *Store) InsertAuthLog(ctx context.Context, rec *models.AuthLog) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *Store) GetAuthLog(ctx context.Context, id uuid.UUID) (*models.AuthLog, error) {
	var rec models.AuthLog
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (s *Store) ExtendAuthLog(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.AuthLog{}).
		Where("id = ? AND is_used = ?", id, false).
		Update("expires_at", expiresAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) MarkAuthLogUsed(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.AuthLog{}).
		Where("id = ?", id).
		Update("is_used", true).Error
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	if err := models.Validate(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

// GetUserAccountInfo answers "does this phone have an account, and what kind"
// in one round trip. Postgres uses the server-side function; other dialects
// read the users table directly.
func (s *Store) GetUserAccountInfo(ctx context.Context, phone string) (*models.AccountInfo, error) {
	if s.db.Dialector.Name() == "postgres" {
		var info models.AccountInfo
		err := s.db.WithContext(ctx).
			Raw("SELECT * FROM get_user_account_info(?)", phone).
			Scan(&info).Error
		if err != nil {
			return nil, err
		}
		return &info, nil
	}

	var u models.User
	res := s.db.WithContext(ctx).Where("phone_number = ?", phone).Limit(1).Find(&u)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return &models.AccountInfo{Exists: false}, nil
	}
	return &models.AccountInfo{
		Exists:     true,
		UserID:     u.ID,
		FullName:   u.FullName,
		UserType:   u.UserType,
		IsApproved: u.IsApproved,
	}, nil
}
