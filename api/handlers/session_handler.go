package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wholesale-market/internal/models"
	"wholesale-market/internal/services"
)

type SessionHandler struct {
	authService    *services.AuthService
	sessionService *services.SessionService
}

func NewSessionHandler(authService *services.AuthService, sessionService *services.SessionService) *SessionHandler {
	return &SessionHandler{
		authService:    authService,
		sessionService: sessionService,
	}
}

// POST /api/auth/phone/check
func (h *SessionHandler) CheckPhone(c *gin.Context) {
	var req models.PhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	info, err := h.authService.CheckPhoneExists(c.Request.Context(), req.Phone)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"exists":      info.Exists,
		"is_approved": info.IsApproved,
		"user_type":   info.UserType,
	})
}

// POST /api/auth/otp/send
func (h *SessionHandler) SendOTP(c *gin.Context) {
	var req models.SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.authService.SendOTP(c.Request.Context(), req.Phone, req.Channel); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "تم إرسال رمز التحقق"})
}

// POST /api/auth/otp/verify
func (h *SessionHandler) VerifyOTP(c *gin.Context) {
	var req models.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session, err := h.authService.VerifyOTP(c.Request.Context(), req.Phone, req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"data":         session,
		"is_logged_in": session.IsApproved,
	})
}

// GET /api/session
// ?revalidate=true forces a server-side check of the cached session
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		session *models.UserSession
		err     error
	)
	if c.Query("revalidate") == "true" {
		session, err = h.sessionService.Revalidate(ctx)
	} else {
		session, err = h.sessionService.GetSession(ctx)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"data":         session,
		"is_logged_in": session.IsApproved,
	})
}

// POST /api/session/refresh
func (h *SessionHandler) RefreshSession(c *gin.Context) {
	if err := h.sessionService.RefreshSession(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, nil)
}

// POST /api/session/logout
// Always succeeds; local state is cleared even if the remote call fails
func (h *SessionHandler) Logout(c *gin.Context) {
	h.authService.Logout(c.Request.Context())
	respondOK(c, http.StatusOK, gin.H{"message": "تم تسجيل الخروج"})
}
