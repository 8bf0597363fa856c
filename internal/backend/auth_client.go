package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"wholesale-market/internal/models"
)

// AuthClient speaks to the hosted auth service's phone OTP endpoints.
type AuthClient struct {
	baseURL   string
	apiKey    string
	jwtSecret []byte
	http      *http.Client
}

func NewAuthClient(baseURL, apiKey, jwtSecret string) *AuthClient {
	return &AuthClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		jwtSecret: []byte(jwtSecret),
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

type otpRequest struct {
	Phone      string         `json:"phone"`
	Channel    string         `json:"channel,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	CreateUser bool           `json:"create_user"`
}

type verifyRequest struct {
	Type  string `json:"type"`
	Phone string `json:"phone"`
	Token string `json:"token"`
}

type verifyResponse struct {
	AccessToken string `json:"access_token" validate:"required"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in" validate:"gte=0"`
	User        struct {
		ID    string `json:"id" validate:"required,uuid"`
		Phone string `json:"phone"`
	} `json:"user" validate:"required"`
}

type errorResponse struct {
	Message          string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type accessClaims struct {
	Phone string `json:"phone"`
	jwt.RegisteredClaims
}

// SignInWithOTP asks the provider to send a one-time code to phone.
func (c *AuthClient) SignInWithOTP(ctx context.Context, phone string, channel models.OTPChannel, metadata map[string]any) error {
	body := otpRequest{Phone: phone, Channel: string(channel), Data: metadata, CreateUser: true}
	return c.post(ctx, "/auth/v1/otp", c.apiKey, body, nil)
}

// VerifyOTP exchanges the code for an access token and returns the identity
// carried by the token.
func (c *AuthClient) VerifyOTP(ctx context.Context, phone, token string) (*models.AuthIdentity, error) {
	var resp verifyResponse
	if err := c.post(ctx, "/auth/v1/verify", c.apiKey, verifyRequest{Type: "sms", Phone: phone, Token: token}, &resp); err != nil {
		return nil, err
	}
	if err := models.Validate(&resp); err != nil {
		return nil, err
	}

	claims, err := c.parseAccessToken(resp.AccessToken)
	if err != nil {
		return nil, err
	}
	if claims.Subject != resp.User.ID {
		return nil, fmt.Errorf("%w: token subject %q does not match user %q", models.ErrMalformedRecord, claims.Subject, resp.User.ID)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject: %v", models.ErrMalformedRecord, err)
	}

	identity := &models.AuthIdentity{
		UserID:      userID,
		PhoneNumber: phone,
		AccessToken: resp.AccessToken,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// SignOut revokes the access token on the provider side.
func (c *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	return c.post(ctx, "/auth/v1/logout", accessToken, nil, nil)
}

// parseAccessToken verifies the HS256 signature when a secret is configured.
// Without one the claims are read unverified; the provider already checked
// the code, and the claims are only used to cross-check the response.
func (c *AuthClient) parseAccessToken(raw string) (*accessClaims, error) {
	claims := &accessClaims{}
	if len(c.jwtSecret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return nil, fmt.Errorf("parse access token: %w", err)
		}
		return claims, nil
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return c.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	return claims, nil
}

func (c *AuthClient) post(ctx context.Context, path, bearer string, in, out any) error {
	var payload io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth %s: network error: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("auth %s: read body: %w", path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("auth %s: status %d: %s", path, resp.StatusCode, providerMessage(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: auth %s: %v", models.ErrMalformedRecord, path, err)
	}
	return nil
}

func providerMessage(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil {
		for _, m := range []string{e.Message, e.ErrorDescription, e.Error} {
			if m != "" {
				return m
			}
		}
	}
	if len(raw) == 0 {
		return "empty response"
	}
	return string(raw)
}
