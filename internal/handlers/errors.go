package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindMalformedPayload:
		return http.StatusBadRequest
	case domain.KindWebhookAuth:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError maps domain errors to HTTP responses. Gateway and
// internal details never reach the caller.
func handleServiceError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	resp := ErrorResponse{Success: false}

	switch kind {
	case domain.KindGateway:
		resp.Error = service.UnavailableMessage
		resp.Code = "PAYMENT_UNAVAILABLE"
	case domain.KindInternal:
		log.Printf("Internal error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		resp.Error = "Internal server error"
		resp.Code = "INTERNAL_ERROR"
	default:
		var se *domain.ServiceError
		if errors.As(err, &se) && se.Message != "" {
			resp.Error = se.Message
			resp.Code = se.Code
		} else {
			resp.Error = err.Error()
		}
	}

	c.JSON(statusFor(kind), resp)
}
