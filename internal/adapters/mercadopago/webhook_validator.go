package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/ports"
)

var (
	tsRegex = regexp.MustCompile(`ts=([^,]+)`)
	v1Regex = regexp.MustCompile(`v1=([^,]+)`)
)

// WebhookValidator validates Mercado Pago webhook signatures.
type WebhookValidator struct {
	secret     string
	production bool
}

// NewWebhookValidator creates a new webhook validator. An empty secret
// accepts every callback outside production and none in production.
func NewWebhookValidator(secret string, production bool) *WebhookValidator {
	if secret == "" && !production {
		log.Println("WARNING: webhook secret not configured - Mercado Pago webhooks are NOT authenticated")
	}
	return &WebhookValidator{secret: secret, production: production}
}

// Authenticate implements ports.WebhookAuthenticator.
func (v *WebhookValidator) Authenticate(creds ports.WebhookCredentials) error {
	if v.secret == "" {
		if v.production {
			return domain.NewWebhookAuthError("webhook secret not configured")
		}
		return nil
	}
	if !v.ValidateSignature(creds.Signature, creds.RequestID, creds.DataID) {
		return domain.NewWebhookAuthError("invalid webhook signature")
	}
	return nil
}

// ValidateSignature validates the x-signature header from Mercado Pago.
// See: https://www.mercadopago.com.br/developers/pt/docs/your-integrations/notifications/webhooks
//
// The x-signature header contains: ts=<timestamp>,v1=<signature>
// The signature is HMAC-SHA256 of: id:<data.id>;request-id:<x-request-id>;ts:<timestamp>;
func (v *WebhookValidator) ValidateSignature(xSignature, xRequestID, dataID string) bool {
	if xSignature == "" || v.secret == "" {
		return false
	}

	ts, hash := parseSignatureHeader(xSignature)
	if ts == "" || hash == "" {
		return false
	}

	manifest := buildManifest(strings.ToLower(dataID), xRequestID, ts)
	expectedHash := calculateHMAC(manifest, v.secret)

	return hmac.Equal([]byte(hash), []byte(expectedHash))
}

// parseSignatureHeader extracts ts and v1 values from x-signature header.
func parseSignatureHeader(header string) (ts, hash string) {
	if m := tsRegex.FindStringSubmatch(header); len(m) > 1 {
		ts = strings.TrimSpace(m[1])
	}
	if m := v1Regex.FindStringSubmatch(header); len(m) > 1 {
		hash = strings.TrimSpace(m[1])
	}
	return ts, hash
}

// buildManifest constructs the string to be signed. Absent parts are omitted.
func buildManifest(dataID, requestID, ts string) string {
	var parts []string

	if dataID != "" {
		parts = append(parts, "id:"+dataID)
	}
	if requestID != "" {
		parts = append(parts, "request-id:"+requestID)
	}
	if ts != "" {
		parts = append(parts, "ts:"+ts)
	}

	return strings.Join(parts, ";") + ";"
}

// calculateHMAC computes HMAC-SHA256 of the manifest.
func calculateHMAC(manifest, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}

// notification is the Mercado Pago webhook body. The status is not part of
// it; the ingestor fetches the payment to learn it.
type notification struct {
	ID          json.Number `json:"id"`
	Type        string      `json:"type"`
	Action      string      `json:"action"`
	DateCreated string      `json:"date_created"`
	Data        struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// WebhookDecoder parses Mercado Pago notifications.
type WebhookDecoder struct{}

// Decode implements ports.WebhookDecoder. Non-payment topics are ignored.
func (WebhookDecoder) Decode(body []byte) (*domain.WebhookEvent, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, domain.NewMalformedPayloadError("invalid JSON body")
	}
	if n.Type != "payment" {
		return nil, nil
	}
	dataID := strings.TrimSpace(n.Data.ID.String())
	if dataID == "" {
		return nil, domain.NewMalformedPayloadError("payment ID not found")
	}
	if _, err := strconv.ParseInt(dataID, 10, 64); err != nil {
		return nil, domain.NewMalformedPayloadError("payment ID is not numeric")
	}

	event := &domain.WebhookEvent{
		EventID:          n.ID.String(),
		EventType:        n.Action,
		ExternalChargeID: dataID,
	}
	if ts, err := time.Parse(time.RFC3339, n.DateCreated); err == nil {
		event.EventTimestamp = ts
	}
	return event, nil
}
