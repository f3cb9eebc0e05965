package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/service"
)

// SubscriptionHandler handles seller plan subscriptions.
type SubscriptionHandler struct {
	service *service.SubscriptionService
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(svc *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{service: svc}
}

// CreateSubscriptionRequest represents the JSON body for creating a subscription.
type CreateSubscriptionRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	PlanID        string `json:"plan_id" binding:"required"`
	PaymentMethod string `json:"payment_method"`
	AutoRenew     bool   `json:"auto_renew"`
}

// SubscriptionResponse is the public view of a subscription.
type SubscriptionResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	PlanID        string    `json:"plan_id"`
	Status        string    `json:"status"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	AutoRenew     bool      `json:"auto_renew"`
}

func toSubscriptionResponse(sub *domain.Subscription) SubscriptionResponse {
	resp := SubscriptionResponse{
		ID:        sub.ID,
		UserID:    sub.UserID,
		PlanID:    sub.PlanID,
		Status:    string(sub.Status),
		StartDate: sub.StartDate,
		EndDate:   sub.EndDate,
		AutoRenew: sub.AutoRenew,
	}
	if sub.PaymentMethod != nil {
		resp.PaymentMethod = string(*sub.PaymentMethod)
	}
	return resp
}

// Create handles POST /api/v1/subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	create := service.CreateSubscriptionRequest{
		UserID:    req.UserID,
		PlanID:    req.PlanID,
		AutoRenew: req.AutoRenew,
	}
	if req.PaymentMethod != "" {
		method, ok := domain.ParseBillingType(req.PaymentMethod)
		if !ok {
			handleServiceError(c, domain.NewValidationError("unsupported payment method "+req.PaymentMethod))
			return
		}
		create.PaymentMethod = &method
	}

	sub, err := h.service.CreateSubscription(c.Request.Context(), create)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSubscriptionResponse(sub))
}

// GetActive handles GET /api/v1/subscriptions/:user_id
func (h *SubscriptionHandler) GetActive(c *gin.Context) {
	sub, err := h.service.GetActive(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

// Cancel handles POST /api/v1/subscriptions/:user_id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	sub, err := h.service.Cancel(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}
