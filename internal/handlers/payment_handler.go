// Package handlers contains the HTTP handlers for the payment service.
package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/ports"
	"github.com/vendeuonline/vendeu-payments/internal/core/service"
)

// Header names gateways authenticate callbacks with.
const (
	asaasTokenHeader = "asaas-access-token"
	signatureHeader  = "x-signature"
	requestIDHeader  = "x-request-id"
)

// maxWebhookBody caps callback bodies; gateway payloads are a few KB.
const maxWebhookBody = 1 << 20

// PaymentHandler handles gateway callbacks and health checks.
type PaymentHandler struct {
	auth     ports.WebhookAuthenticator
	decoder  ports.WebhookDecoder
	ingestor *service.WebhookIngestor
	info     HealthInfo
}

// HealthInfo is reported by GET /health.
type HealthInfo struct {
	Service  string
	Version  string
	Provider string
	Mode     string
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(auth ports.WebhookAuthenticator, decoder ports.WebhookDecoder, ingestor *service.WebhookIngestor, info HealthInfo) *PaymentHandler {
	return &PaymentHandler{auth: auth, decoder: decoder, ingestor: ingestor, info: info}
}

// HandleWebhook handles POST /webhooks/payments
// Authentication runs before the body is parsed. Anything other than 2xx
// makes the gateway redeliver, so stale, duplicate and unknown statuses
// answer 200. A rejected callback answers 401 and an unparseable body 400
// rather than 5xx: both still trigger redelivery, and the status tells the
// operator which side is wrong. Failed side effects answer 500.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	requestID := c.GetString("request_id")

	creds := ports.WebhookCredentials{
		Token:     c.GetHeader(asaasTokenHeader),
		Signature: c.GetHeader(signatureHeader),
		RequestID: c.GetHeader(requestIDHeader),
		DataID:    c.Query("data.id"),
	}
	if err := h.auth.Authenticate(creds); err != nil {
		log.Printf("Webhook rejected from %s (request %s)", c.ClientIP(), requestID)
		c.JSON(http.StatusUnauthorized, gin.H{"status": "unauthorized"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Printf("Webhook body unreadable (request %s): %v", requestID, err)
		c.JSON(http.StatusBadRequest, gin.H{"status": "malformed"})
		return
	}

	event, err := h.decoder.Decode(body)
	if err != nil {
		log.Printf("Webhook payload rejected (request %s): %v", requestID, err)
		c.JSON(statusFor(domain.KindOf(err)), gin.H{"status": "malformed"})
		return
	}

	result, err := h.ingestor.Ingest(c.Request.Context(), event)
	if err != nil {
		log.Printf("Webhook processing error for charge %s (request %s): %v", result.ChargeID, requestID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "retry"})
		return
	}

	if result.Ignored {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "processed",
		"outcome": result.Outcome.String(),
	})
}

// Health handles GET /health
func (h *PaymentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  h.info.Service,
		"version":  h.info.Version,
		"provider": h.info.Provider,
		"mode":     h.info.Mode,
	})
}
