package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserType string

const (
	UserTypeMerchant   UserType = "merchant"
	UserTypeStoreOwner UserType = "store_owner"
	UserTypeAdmin      UserType = "admin"
)

type User struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey" validate:"required"`
	PhoneNumber string    `json:"phone_number" gorm:"uniqueIndex;not null" validate:"required"`
	FullName    string    `json:"full_name"`
	UserType    UserType  `json:"user_type" gorm:"type:varchar(20);not null" validate:"oneof=merchant store_owner admin"`
	IsApproved  bool      `json:"is_approved" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserSession is the device's view of who is logged in. AuthLogID points at
// the server-side record that decides whether the session is still valid.
type UserSession struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	PhoneNumber string    `json:"phone_number" validate:"required"`
	FullName    string    `json:"full_name"`
	UserType    UserType  `json:"user_type" validate:"oneof=merchant store_owner admin"`
	IsApproved  bool      `json:"is_approved"`
	AuthLogID   uuid.UUID `json:"auth_log_id" validate:"required"`
}

// AuthLog is the server-tracked session record.
type AuthLog struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	PhoneNumber string    `json:"phone_number" gorm:"not null"`
	IsUsed      bool      `json:"is_used" gorm:"not null"`
	ExpiresAt   time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (l *AuthLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Valid reports whether the record can still back a session at time now.
func (l AuthLog) Valid(now time.Time) bool {
	return !l.IsUsed && now.Before(l.ExpiresAt)
}

// AccountInfo is the result of the get_user_account_info lookup.
type AccountInfo struct {
	Exists     bool      `json:"exists" gorm:"column:account_exists"`
	UserID     uuid.UUID `json:"user_id"`
	FullName   string    `json:"full_name"`
	UserType   UserType  `json:"user_type"`
	IsApproved bool      `json:"is_approved"`
}

// AuthIdentity is what the OTP provider hands back after a successful verify.
type AuthIdentity struct {
	UserID      uuid.UUID `json:"user_id"`
	PhoneNumber string    `json:"phone_number"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type OTPChannel string

const (
	OTPChannelSMS      OTPChannel = "sms"
	OTPChannelWhatsApp OTPChannel = "whatsapp"
)

type PhoneRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type SendOTPRequest struct {
	Phone   string     `json:"phone" binding:"required"`
	Channel OTPChannel `json:"channel"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
	Token string `json:"token" binding:"required,len=6,numeric"`
}
