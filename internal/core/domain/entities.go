// Package domain contains the core business entities for the payment service.
// This is the innermost layer - no dependencies on adapters or frameworks.
package domain

import (
	"math"
	"time"
)

// BillingType is the payment method requested from the gateway.
type BillingType string

const (
	BillingPix        BillingType = "PIX"
	BillingBoleto     BillingType = "BOLETO"
	BillingCreditCard BillingType = "CREDIT_CARD"
	BillingDebitCard  BillingType = "DEBIT_CARD"
	// BillingUndefined lets the gateway offer every method on its invoice page.
	BillingUndefined BillingType = "UNDEFINED"
)

// ParseBillingType accepts both the gateway spelling ("CREDIT_CARD") and the
// checkout spelling ("credit_card"). Empty input means "let the gateway decide".
func ParseBillingType(raw string) (BillingType, bool) {
	switch BillingType(upper(raw)) {
	case "":
		return BillingUndefined, true
	case BillingPix, BillingBoleto, BillingCreditCard, BillingDebitCard, BillingUndefined:
		return BillingType(upper(raw)), true
	default:
		return "", false
	}
}

// IsCard reports whether the method is authorized synchronously.
func (b BillingType) IsCard() bool {
	return b == BillingCreditCard || b == BillingDebitCard
}

// Address is an optional postal address attached to a customer profile.
type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// CustomerProfile is the local user data sent to the gateway when a billing
// identity has to be created.
type CustomerProfile struct {
	UserID  string   `json:"user_id" validate:"required"`
	Name    string   `json:"name" validate:"required"`
	Email   string   `json:"email" validate:"required,email"`
	Phone   string   `json:"phone"`
	TaxID   string   `json:"tax_id,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// Customer is the gateway-side identity of a local user.
type Customer struct {
	ExternalID string   `json:"external_id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	TaxID      string   `json:"tax_id,omitempty"`
	Address    *Address `json:"address,omitempty"`
}

// CardData holds raw card fields. Never persisted, never logged.
type CardData struct {
	HolderName  string `json:"holder_name" binding:"required"`
	Number      string `json:"number" binding:"required"`
	ExpiryMonth string `json:"expiry_month" binding:"required"`
	ExpiryYear  string `json:"expiry_year" binding:"required"`
	CCV         string `json:"ccv" binding:"required"`
}

// CardHolder is the billing identity of the card owner.
type CardHolder struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	TaxID         string `json:"tax_id"`
	PostalCode    string `json:"postal_code"`
	AddressNumber string `json:"address_number"`
	Phone         string `json:"phone"`
}

// ChargeRequest describes a single billable request. SubscriptionID binds a
// plan charge to the row it pays for; gateways ignore it.
type ChargeRequest struct {
	Customer          Customer
	Method            BillingType
	Amount            float64
	DueDate           time.Time
	Description       string
	InternalReference string
	SubscriptionID    string
	Card              *CardData
	CardHolder        *CardHolder
	RemoteIP          string
}

// Charge is a billable request as returned by the gateway. Status holds the
// provider vocabulary; InternalStatus the mapped taxonomy.
type Charge struct {
	ID                string        `json:"id"`
	InternalReference string        `json:"internal_reference"`
	SubscriptionID    string        `json:"subscription_id,omitempty"`
	Method            BillingType   `json:"method"`
	Amount            float64       `json:"amount"`
	DueDate           time.Time     `json:"due_date"`
	Status            string        `json:"status"`
	InternalStatus    PaymentStatus `json:"internal_status"`
	PixPayload        string        `json:"pix_payload,omitempty"`
	PixQRImage        string        `json:"pix_qr_image,omitempty"`
	PixExpiresAt      *time.Time    `json:"pix_expires_at,omitempty"`
	InvoiceURL        string        `json:"invoice_url,omitempty"`
	BoletoURL         string        `json:"boleto_url,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// ExpiresAt is the advisory PIX expiry shown to the buyer. When the gateway
// does not report one, the charge expires at the end of its due date.
func (c *Charge) ExpiresAt() time.Time {
	if c.PixExpiresAt != nil {
		return *c.PixExpiresAt
	}
	y, m, d := c.DueDate.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, c.DueDate.Location())
}

// RoundAmount rounds a monetary amount to cents.
func RoundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}

// BillingPeriod is the recurrence of a plan.
type BillingPeriod string

const (
	PeriodMonthly  BillingPeriod = "monthly"
	PeriodYearly   BillingPeriod = "yearly"
	PeriodLifetime BillingPeriod = "lifetime"
)

// Plan is read from the catalog collaborator.
type Plan struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Slug          string        `json:"slug"`
	Price         float64       `json:"price"`
	BillingPeriod BillingPeriod `json:"billing_period"`
}

// IsFree reports whether the plan is activated without a charge.
func (p *Plan) IsFree() bool {
	return RoundAmount(p.Price) <= 0
}

// Order is the subset of a commerce order the checkout needs.
type Order struct {
	ID     string  `json:"id"`
	UserID string  `json:"user_id"`
	Total  float64 `json:"total"`
	Status string  `json:"status"`
}

// EventType names a notification emitted to the notification collaborator.
type EventType string

const (
	EventPaymentApproved       EventType = "payment_approved"
	EventPaymentFailed         EventType = "payment_failed"
	EventPaymentOverdue        EventType = "payment_overdue"
	EventPaymentRefunded       EventType = "payment_refunded"
	EventPaymentChargeback     EventType = "payment_chargeback"
	EventSubscriptionActivated EventType = "subscription_activated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventSubscriptionExpired   EventType = "subscription_expired"
)

// Event is a structured notification payload.
type Event struct {
	Type       EventType         `json:"event"`
	UserID     string            `json:"user_id,omitempty"`
	ChargeID   string            `json:"charge_id,omitempty"`
	Reference  string            `json:"reference,omitempty"`
	Status     PaymentStatus     `json:"status,omitempty"`
	Amount     float64           `json:"amount,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// WebhookEvent is a parsed gateway callback.
type WebhookEvent struct {
	// EventID is the provider's delivery id, used as idempotency key when present.
	EventID          string
	EventType        string
	ExternalChargeID string
	// RawStatus is empty when the provider only notifies the resource id.
	RawStatus      string
	EventTimestamp time.Time
}
