package handlers

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/service"
)

// CheckoutHandler runs the checkout flow for subscriptions and orders.
type CheckoutHandler struct {
	service *service.CheckoutService
	now     func() time.Time
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(svc *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{service: svc, now: time.Now}
}

// CheckoutRequest carries the form step and the payment step in one call.
type CheckoutRequest struct {
	Form          service.CheckoutForm `json:"form"`
	PaymentMethod string               `json:"payment_method" binding:"required"`
	Card          *domain.CardData     `json:"card"`
}

// ChargeView is the public view of a charge. Card data is never part of it.
type ChargeView struct {
	ID                  string     `json:"id"`
	Reference           string     `json:"reference"`
	Method              string     `json:"method"`
	Amount              float64    `json:"amount"`
	Status              string     `json:"status"`
	DueDate             time.Time  `json:"due_date"`
	PixPayload          string     `json:"pix_payload,omitempty"`
	PixQRImage          string     `json:"pix_qr_image,omitempty"`
	PixExpiresAt        *time.Time `json:"pix_expires_at,omitempty"`
	PixExpiresInSeconds *int64     `json:"pix_expires_in_seconds,omitempty"`
	InvoiceURL          string     `json:"invoice_url,omitempty"`
	BoletoURL           string     `json:"boleto_url,omitempty"`
}

// CheckoutResponse represents the response of a checkout attempt.
type CheckoutResponse struct {
	Success     bool        `json:"success"`
	Step        string      `json:"step"`
	Charge      *ChargeView `json:"charge,omitempty"`
	UnderReview bool        `json:"under_review,omitempty"`
	Message     string      `json:"message,omitempty"`
	Error       string      `json:"error,omitempty"`
	Code        string      `json:"code,omitempty"`
}

func toChargeView(c *domain.Charge, now time.Time) *ChargeView {
	view := &ChargeView{
		ID:         c.ID,
		Reference:  c.InternalReference,
		Method:     string(c.Method),
		Amount:     c.Amount,
		Status:     string(c.InternalStatus),
		DueDate:    c.DueDate,
		PixPayload: c.PixPayload,
		PixQRImage: c.PixQRImage,
		InvoiceURL: c.InvoiceURL,
		BoletoURL:  c.BoletoURL,
	}
	if c.Method == domain.BillingPix && c.InternalStatus == domain.StatusPending {
		countdown := service.Countdown{ExpiresAt: c.ExpiresAt()}
		expires := countdown.ExpiresAt
		secs := int64(math.Floor(countdown.Remaining(now).Seconds()))
		view.PixExpiresAt = &expires
		view.PixExpiresInSeconds = &secs
	}
	return view
}

// PaySubscription handles POST /api/v1/checkout/subscriptions/:subscription_id
func (h *CheckoutHandler) PaySubscription(c *gin.Context) {
	h.run(c, h.service.SubscriptionFlow(c.Param("subscription_id")))
}

// PayOrder handles POST /api/v1/checkout/orders/:order_id
func (h *CheckoutHandler) PayOrder(c *gin.Context) {
	h.run(c, h.service.OrderFlow(c.Param("order_id")))
}

func (h *CheckoutHandler) run(c *gin.Context, flow *service.CheckoutFlow) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, CheckoutResponse{
			Success: false,
			Step:    string(service.StepForm),
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	if err := flow.SubmitForm(req.Form); err != nil {
		c.JSON(http.StatusBadRequest, CheckoutResponse{
			Success: false,
			Step:    string(flow.Step()),
			Error:   flow.LastError(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	result, err := flow.Pay(c.Request.Context(), req.PaymentMethod, req.Card, c.ClientIP())
	if err != nil {
		kind := domain.KindOf(err)
		resp := CheckoutResponse{Success: false, Step: string(flow.Step()), Error: flow.LastError()}
		switch kind {
		case domain.KindGateway:
			resp.Code = "PAYMENT_UNAVAILABLE"
		case domain.KindInternal:
			handleServiceError(c, err)
			return
		default:
			resp.Code = codeOf(err)
		}
		c.JSON(statusFor(kind), resp)
		return
	}

	if result.Declined {
		c.JSON(http.StatusPaymentRequired, CheckoutResponse{
			Success: false,
			Step:    string(flow.Step()),
			Error:   result.Message,
			Code:    "CARD_DECLINED",
		})
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{
		Success:     true,
		Step:        string(flow.Step()),
		Charge:      toChargeView(result.Charge, h.now()),
		UnderReview: result.UnderReview,
		Message:     result.Message,
	})
}

// GetCharge handles GET /api/v1/payments/:charge_id
func (h *CheckoutHandler) GetCharge(c *gin.Context) {
	charge, err := h.service.GetCharge(c.Request.Context(), c.Param("charge_id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toChargeView(charge, h.now()))
}

func codeOf(err error) string {
	var se *domain.ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
