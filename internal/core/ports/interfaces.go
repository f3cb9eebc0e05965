// Package ports defines the interfaces (ports) for the payment service.
// These are contracts that adapters must implement.
package ports

import (
	"context"
	"time"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

// PaymentGateway is the client of the external payment provider.
type PaymentGateway interface {
	// Provider names the status vocabulary of the charges this gateway returns.
	Provider() domain.Provider

	// CreateOrGetCustomer looks the customer up by email and creates it on a miss.
	CreateOrGetCustomer(ctx context.Context, profile domain.CustomerProfile) (*domain.Customer, error)

	// CreateCharge issues a new charge. Business terms (interest, fine,
	// discount) are applied by the implementation.
	CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error)

	// GetCharge retrieves a charge by its external id.
	GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error)
}

// ChargeRepository persists charges created through checkout.
type ChargeRepository interface {
	// SaveCharge stores a charge; storing an existing id is a no-op.
	SaveCharge(ctx context.Context, charge *domain.Charge) error

	// GetCharge returns domain.ErrNotFound when the id is unknown.
	GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error)

	// UpdateChargeStatus moves a charge from one internal status to another.
	// It returns false without error when the stored status is no longer from.
	UpdateChargeStatus(ctx context.Context, chargeID string, from, to domain.PaymentStatus, rawStatus string) (bool, error)

	// BindSubscription records the subscription a charge paid for. A charge
	// already bound keeps its subscription.
	BindSubscription(ctx context.Context, chargeID, subscriptionID string) error
}

// SubscriptionRepository persists subscriptions. Rows are never deleted.
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	// FindActiveByUser returns domain.ErrNotFound when the user has no ACTIVE row.
	FindActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error)
	// FindLatestPending returns the newest PENDING row for a user and plan.
	FindLatestPending(ctx context.Context, userID, planID string) (*domain.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) error
	// ListExpired returns ACTIVE rows whose end date is before now.
	ListExpired(ctx context.Context, now time.Time) ([]domain.Subscription, error)
}

// PlanCatalog reads plans from the catalog collaborator.
type PlanCatalog interface {
	GetPlan(ctx context.Context, planID string) (*domain.Plan, error)
}

// OrderService reads and updates orders owned by the commerce collaborator.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	MarkOrderPaid(ctx context.Context, orderID, chargeID string) error
}

// SellerPlanWriter writes the seller's effective plan tier.
type SellerPlanWriter interface {
	SetSellerPlan(ctx context.Context, userID, planSlug string) error
}

// UserDirectory resolves the billing profile of a local user.
type UserDirectory interface {
	GetCustomerProfile(ctx context.Context, userID string) (*domain.CustomerProfile, error)
}

// Notifier is the fire-and-forget notification sink.
type Notifier interface {
	Emit(ctx context.Context, event domain.Event)
}

// IdempotencyStore remembers processed webhook deliveries.
type IdempotencyStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// StatusObserver is told how each webhook status was handled.
type StatusObserver interface {
	// UnknownStatus reports a provider status missing from the mapping table.
	UnknownStatus(ctx context.Context, provider domain.Provider, rawStatus, chargeID string)
	// Outcome reports whether a mapped status was applied or discarded.
	Outcome(ctx context.Context, provider domain.Provider, outcome domain.Transition, status domain.PaymentStatus)
}

// WebhookCredentials carries what a provider sends to prove a callback is genuine.
type WebhookCredentials struct {
	Token     string
	Signature string
	RequestID string
	DataID    string
}

// WebhookAuthenticator validates inbound gateway callbacks.
type WebhookAuthenticator interface {
	// Authenticate returns a domain.KindWebhookAuth error when the callback is rejected.
	Authenticate(creds WebhookCredentials) error
}

// SubscriptionActivator is called when a plan charge is paid.
type SubscriptionActivator interface {
	Activate(ctx context.Context, ref domain.SubscriptionRef) (*domain.Subscription, error)
}

// RenewalRequester requests the charge that renews an auto-renewing subscription.
type RenewalRequester interface {
	RequestRenewal(ctx context.Context, sub *domain.Subscription, plan *domain.Plan) error
}

// WebhookDecoder parses a provider callback body.
type WebhookDecoder interface {
	// Decode returns a domain.KindMalformedPayload error when the body cannot be parsed.
	// A nil event with a nil error means the callback is not about a payment.
	Decode(body []byte) (*domain.WebhookEvent, error)
}
