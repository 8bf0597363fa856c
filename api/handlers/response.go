package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wholesale-market/internal/models"
	"wholesale-market/internal/services"
)

const msgBadRequest = "البيانات المرسلة غير صحيحة"

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var pe *services.ProductError
	switch {
	case errors.As(err, &pe):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotLoggedIn),
		errors.Is(err, services.ErrNoSession),
		errors.Is(err, services.ErrInvalidOTP):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotApproved), errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidPhone),
		errors.Is(err, models.ErrInvalidOrderStatus):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, models.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, services.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"success": false, "message": services.UserMessage(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgBadRequest, "error": err.Error()})
}

func respondOK(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

// uuidParam reads a uuid path parameter, answering 400 when it is malformed.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, err)
		return uuid.Nil, false
	}
	return id, true
}
