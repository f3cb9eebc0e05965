package asaas

import (
	"crypto/hmac"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/ports"
)

// WebhookTokenHeader is the header Asaas sends the configured webhook token in.
const WebhookTokenHeader = "asaas-access-token"

// TokenAuthenticator compares the shared webhook token in constant time.
type TokenAuthenticator struct {
	token      string
	production bool
}

// NewTokenAuthenticator creates the authenticator. An empty token accepts
// every callback outside production and rejects every callback in production.
func NewTokenAuthenticator(token string, production bool) *TokenAuthenticator {
	if token == "" && !production {
		log.Println("WARNING: webhook token not configured - Asaas webhooks are NOT authenticated")
	}
	return &TokenAuthenticator{token: token, production: production}
}

// Authenticate implements ports.WebhookAuthenticator.
func (a *TokenAuthenticator) Authenticate(creds ports.WebhookCredentials) error {
	if a.token == "" {
		if a.production {
			return domain.NewWebhookAuthError("webhook token not configured")
		}
		return nil
	}
	if creds.Token == "" {
		return domain.NewWebhookAuthError("missing webhook token")
	}
	if !hmac.Equal([]byte(creds.Token), []byte(a.token)) {
		return domain.NewWebhookAuthError("invalid webhook token")
	}
	return nil
}

type webhookPayload struct {
	ID          string          `json:"id"`
	Event       string          `json:"event"`
	DateCreated string          `json:"dateCreated"`
	Payment     *webhookPayment `json:"payment"`
}

type webhookPayment struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"externalReference"`
}

// WebhookDecoder parses Asaas payment callbacks.
type WebhookDecoder struct{}

// Decode implements ports.WebhookDecoder. Events without a payment object
// (transfers, invoices) are ignored.
func (WebhookDecoder) Decode(body []byte) (*domain.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, domain.NewMalformedPayloadError("invalid JSON body")
	}
	if p.Event == "" {
		return nil, domain.NewMalformedPayloadError("missing event")
	}
	if p.Payment == nil {
		if strings.HasPrefix(p.Event, "PAYMENT_") {
			return nil, domain.NewMalformedPayloadError("payment event without payment object")
		}
		return nil, nil
	}
	if strings.TrimSpace(p.Payment.ID) == "" || strings.TrimSpace(p.Payment.Status) == "" {
		return nil, domain.NewMalformedPayloadError("payment id and status are required")
	}

	event := &domain.WebhookEvent{
		EventID:          p.ID,
		EventType:        p.Event,
		ExternalChargeID: p.Payment.ID,
		RawStatus:        p.Payment.Status,
	}
	if p.DateCreated != "" {
		if ts, err := time.ParseInLocation(pixDateLayout, p.DateCreated, time.UTC); err == nil {
			event.EventTimestamp = ts
		}
	}
	return event, nil
}
