// Package backend adapts the hosted backend (relational tables, OTP auth and
// object storage) to the narrow contracts the services consume.
package backend

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wholesale-market/internal/models"
)

// Store talks to the backend's relational tables.
type Store struct {
	db *gorm.DB
}

// Open connects to the Postgres database behind the hosted backend.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("backend: empty database url")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("backend: connect: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an existing connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates the tables the storefront relies on, plus the account
// lookup function on Postgres.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&models.User{},
		&models.AuthLog{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.FavoriteEntry{},
	); err != nil {
		return fmt.Errorf("backend: migrate: %w", err)
	}
	if s.db.Dialector.Name() == "postgres" {
		if err := s.db.Exec(accountInfoFunction).Error; err != nil {
			return fmt.Errorf("backend: create get_user_account_info: %w", err)
		}
	}
	log.Printf("✅ backend schema up to date (%s)", s.db.Dialector.Name())
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}

const accountInfoFunction = `
CREATE OR REPLACE FUNCTION get_user_account_info(p_phone text)
RETURNS TABLE(account_exists boolean, user_id uuid, full_name text, user_type text, is_approved boolean)
LANGUAGE sql STABLE AS $$
  SELECT true, u.id, COALESCE(u.full_name, ''), u.user_type::text, u.is_approved
  FROM users u WHERE u.phone_number = p_phone
  UNION ALL
  SELECT false, NULL::uuid, ''::text, ''::text, false
  WHERE NOT EXISTS (SELECT 1 FROM users WHERE phone_number = p_phone)
$$;`
