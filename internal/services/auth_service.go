package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"wholesale-market/internal/models"
)

// RetryPolicy retries calls that failed with a network-class error.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: 2 * time.Second}

var networkMarkers = []string{"network", "timeout", "timed out", "abort"}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range networkMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Do runs fn until it succeeds, fails with a non-network error, or the
// attempts run out.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil || !isNetworkError(err) {
			return err
		}
		if i == attempts {
			break
		}
		log.Printf("⚠️  network error (attempt %d/%d): %v", i, attempts, err)
		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// NormalizePhone turns the accepted spellings of an Iraqi mobile number
// into +9647XXXXXXXXX.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "00964"):
		digits = digits[5:]
	case strings.HasPrefix(digits, "964"):
		digits = digits[3:]
	case strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}
	if len(digits) != 10 || digits[0] != '7' {
		return "", ErrInvalidPhone
	}
	return "+964" + digits, nil
}

// AuthService runs the phone OTP login flow and hands the result to the
// session service.
type AuthService struct {
	provider OTPProvider
	accounts AccountDirectory
	sessions *SessionService
	retry    RetryPolicy

	mu          sync.Mutex
	accessToken string
}

func NewAuthService(provider OTPProvider, accounts AccountDirectory, sessions *SessionService, retry RetryPolicy) *AuthService {
	return &AuthService{
		provider: provider,
		accounts: accounts,
		sessions: sessions,
		retry:    retry,
	}
}

// CheckPhoneExists looks up the account registered for phone.
func (s *AuthService) CheckPhoneExists(ctx context.Context, phone string) (*models.AccountInfo, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	var info *models.AccountInfo
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		info, err = s.accounts.GetUserAccountInfo(ctx, normalized)
		return err
	})
	if err != nil {
		log.Printf("AuthService.CheckPhoneExists - %s: %v", normalized, err)
		return nil, err
	}
	return info, nil
}

// SendOTP asks the provider to deliver a login code.
func (s *AuthService) SendOTP(ctx context.Context, phone string, channel models.OTPChannel) error {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	if channel == "" {
		channel = models.OTPChannelSMS
	}
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.provider.SignInWithOTP(ctx, normalized, channel, nil)
	})
	if err != nil {
		log.Printf("AuthService.SendOTP - %s via %s: %v", normalized, channel, err)
	}
	return err
}

// VerifyOTP checks the code and opens a session for the matching account.
// Unapproved accounts still get a session; IsLoggedIn keeps them gated.
func (s *AuthService) VerifyOTP(ctx context.Context, phone, token string) (*models.UserSession, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	identity, err := s.provider.VerifyOTP(ctx, normalized, token)
	if err != nil {
		log.Printf("AuthService.VerifyOTP - %s: %v", normalized, err)
		if isNetworkError(err) {
			return nil, fmt.Errorf("verify otp: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidOTP, err)
	}

	info, err := s.accounts.GetUserAccountInfo(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if !info.Exists {
		return nil, ErrAccountNotFound
	}
	if info.UserID != identity.UserID {
		log.Printf("AuthService.VerifyOTP - provider user %s differs from account %s", identity.UserID, info.UserID)
		return nil, fmt.Errorf("%w: provider user %s does not match account", ErrInvalidOTP, identity.UserID)
	}

	s.mu.Lock()
	s.accessToken = identity.AccessToken
	s.mu.Unlock()

	return s.sessions.CreateSession(ctx, models.User{
		ID:          info.UserID,
		PhoneNumber: normalized,
		FullName:    info.FullName,
		UserType:    info.UserType,
		IsApproved:  info.IsApproved,
	})
}

// Logout signs out at the provider when possible, then ends the session.
func (s *AuthService) Logout(ctx context.Context) {
	s.mu.Lock()
	token := s.accessToken
	s.accessToken = ""
	s.mu.Unlock()

	if err := s.provider.SignOut(ctx, token); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("AuthService.Logout - provider sign out: %v", err)
	}
	s.sessions.Logout(ctx)
}
