package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/ports"
)

// maxApplyAttempts bounds compare-and-swap retries when another instance
// moves the same charge concurrently.
const maxApplyAttempts = 3

// IngestResult describes what a webhook delivery did.
type IngestResult struct {
	ChargeID string
	Status   domain.PaymentStatus
	Outcome  domain.Transition
	// Ignored is set for callbacks that are not about a payment and for
	// deliveries already processed.
	Ignored bool
}

// WebhookIngestor applies gateway status callbacks to charges. Statuses only
// move forward in the payment-status partial order, so redelivered and
// reordered callbacks never corrupt state.
type WebhookIngestor struct {
	gateway   ports.PaymentGateway
	charges   ports.ChargeRepository
	dedup     ports.IdempotencyStore
	activator ports.SubscriptionActivator
	orders    ports.OrderService
	notifier  ports.Notifier
	observer  ports.StatusObserver
	mapper    domain.StatusMapper
	provider  domain.Provider
	locks     *keyedMutex
	now       func() time.Time
}

// NewWebhookIngestor creates the ingestor. dedup may be nil.
func NewWebhookIngestor(
	gateway ports.PaymentGateway,
	charges ports.ChargeRepository,
	dedup ports.IdempotencyStore,
	activator ports.SubscriptionActivator,
	orders ports.OrderService,
	notifier ports.Notifier,
	observer ports.StatusObserver,
) *WebhookIngestor {
	provider := gateway.Provider()
	return &WebhookIngestor{
		gateway:   gateway,
		charges:   charges,
		dedup:     dedup,
		activator: activator,
		orders:    orders,
		notifier:  notifier,
		observer:  observer,
		mapper:    domain.MapperFor(provider),
		provider:  provider,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// Ingest applies one authenticated, decoded callback. Stale, duplicate and
// unknown statuses are not errors. An error means the delivery should be
// retried by the gateway.
func (w *WebhookIngestor) Ingest(ctx context.Context, event *domain.WebhookEvent) (IngestResult, error) {
	if event == nil {
		return IngestResult{Ignored: true}, nil
	}
	result := IngestResult{ChargeID: event.ExternalChargeID}

	key := w.dedupKey(event)
	if w.seen(ctx, key) {
		log.Printf("Webhook %s for charge %s already processed", event.EventID, event.ExternalChargeID)
		result.Outcome = domain.TransitionDuplicate
		result.Ignored = true
		return result, nil
	}

	unlock := w.locks.Lock(event.ExternalChargeID)
	defer unlock()

	charge, fetched, err := w.loadCharge(ctx, event.ExternalChargeID)
	if err != nil {
		return result, err
	}

	rawStatus := event.RawStatus
	if rawStatus == "" {
		if fetched == nil {
			if fetched, err = w.gateway.GetCharge(ctx, event.ExternalChargeID); err != nil {
				return result, err
			}
		}
		rawStatus = fetched.Status
	}

	target := w.mapper(rawStatus)
	result.Status = target
	if target == domain.StatusUnknown {
		w.observer.UnknownStatus(ctx, w.provider, rawStatus, charge.ID)
		result.Outcome = domain.TransitionUnknown
		return result, nil
	}

	outcome, err := w.apply(ctx, charge, target, rawStatus)
	if err != nil {
		return result, err
	}
	result.Outcome = outcome
	w.observer.Outcome(ctx, w.provider, outcome, target)

	switch outcome {
	case domain.TransitionAdvance:
		log.Printf("Charge %s: %s -> %s (%s)", charge.ID, charge.InternalStatus, target, rawStatus)
		if err := w.onTransition(ctx, charge, target); err != nil {
			return result, err
		}
	case domain.TransitionDuplicate:
		// A previous delivery may have advanced the charge but failed its
		// side effects; they are idempotent, so run them again. Plan charges
		// only ever settle the row they are bound to.
		if target == domain.StatusPaid {
			if err := w.settle(ctx, charge); err != nil {
				return result, err
			}
		}
	case domain.TransitionRegression:
		log.Printf("Charge %s: discarded stale status %s (%s), current %s", charge.ID, target, rawStatus, charge.InternalStatus)
	}

	w.remember(ctx, key)
	return result, nil
}

// loadCharge returns the stored charge, adopting it from the gateway when the
// callback overtook the local insert. Adopted charges start at pending so the
// callback's status is applied as a regular transition.
func (w *WebhookIngestor) loadCharge(ctx context.Context, chargeID string) (*domain.Charge, *domain.Charge, error) {
	charge, err := w.charges.GetCharge(ctx, chargeID)
	if err == nil {
		return charge, nil, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}

	fetched, err := w.gateway.GetCharge(ctx, chargeID)
	if err != nil {
		return nil, nil, err
	}
	adopted := *fetched
	adopted.Status = ""
	adopted.InternalStatus = domain.StatusPending
	if adopted.CreatedAt.IsZero() {
		adopted.CreatedAt = w.now()
	}
	adopted.UpdatedAt = w.now()
	if err := w.charges.SaveCharge(ctx, &adopted); err != nil {
		return nil, nil, err
	}
	log.Printf("Adopted charge %s from gateway", chargeID)

	// Re-read: another instance may have saved it first.
	stored, err := w.charges.GetCharge(ctx, chargeID)
	if err != nil {
		return nil, nil, err
	}
	return stored, fetched, nil
}

// apply moves charge to target if that is strictly forward. The repository
// compare-and-swap guards against writers outside this process.
func (w *WebhookIngestor) apply(ctx context.Context, charge *domain.Charge, target domain.PaymentStatus, rawStatus string) (domain.Transition, error) {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		outcome := domain.ClassifyTransition(charge.InternalStatus, target)
		if outcome != domain.TransitionAdvance {
			return outcome, nil
		}
		ok, err := w.charges.UpdateChargeStatus(ctx, charge.ID, charge.InternalStatus, target, rawStatus)
		if err != nil {
			return outcome, err
		}
		if ok {
			return domain.TransitionAdvance, nil
		}
		fresh, err := w.charges.GetCharge(ctx, charge.ID)
		if err != nil {
			return outcome, err
		}
		*charge = *fresh
	}
	return domain.TransitionAdvance, fmt.Errorf("charge %s changed concurrently %d times", charge.ID, maxApplyAttempts)
}

func (w *WebhookIngestor) onTransition(ctx context.Context, charge *domain.Charge, to domain.PaymentStatus) error {
	switch to {
	case domain.StatusPaid:
		if err := w.settle(ctx, charge); err != nil {
			return err
		}
		w.emit(ctx, domain.EventPaymentApproved, charge, to)
	case domain.StatusFailed:
		w.emit(ctx, domain.EventPaymentFailed, charge, to)
	case domain.StatusOverdue, domain.StatusDunning:
		// The subscription stays active; the expiry sweep decides.
		w.emit(ctx, domain.EventPaymentOverdue, charge, to)
	case domain.StatusRefundRequested, domain.StatusRefundInProgress, domain.StatusRefunded:
		w.emit(ctx, domain.EventPaymentRefunded, charge, to)
	case domain.StatusChargeback:
		w.emit(ctx, domain.EventPaymentChargeback, charge, to)
	}
	return nil
}

// settle runs the effects of a paid charge on what it pays for.
func (w *WebhookIngestor) settle(ctx context.Context, charge *domain.Charge) error {
	ref, err := domain.ParseReference(charge.InternalReference)
	if err != nil {
		log.Printf("Charge %s paid with unrecognized reference: %v", charge.ID, err)
		return nil
	}

	switch ref.Kind {
	case domain.ReferencePlan:
		sub, err := w.activator.Activate(ctx, domain.SubscriptionRef{
			UserID:         ref.UserID,
			PlanID:         ref.PlanID,
			SubscriptionID: charge.SubscriptionID,
		})
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				log.Printf("Charge %s paid but no subscription awaits it (user %s, plan %s)", charge.ID, ref.UserID, ref.PlanID)
				return nil
			}
			return fmt.Errorf("activate subscription for charge %s: %w", charge.ID, err)
		}
		if charge.SubscriptionID == "" {
			// Later deliveries for this charge must not reach a newer row.
			if err := w.charges.BindSubscription(ctx, charge.ID, sub.ID); err != nil {
				return fmt.Errorf("bind charge %s: %w", charge.ID, err)
			}
			charge.SubscriptionID = sub.ID
		}
		log.Printf("Charge %s settled subscription %s", charge.ID, sub.ID)
	case domain.ReferenceOrder:
		if err := w.orders.MarkOrderPaid(ctx, ref.OrderID, charge.ID); err != nil {
			return fmt.Errorf("mark order %s paid: %w", ref.OrderID, err)
		}
		log.Printf("Charge %s settled order %s", charge.ID, ref.OrderID)
	}
	return nil
}

func (w *WebhookIngestor) emit(ctx context.Context, t domain.EventType, charge *domain.Charge, status domain.PaymentStatus) {
	ev := domain.Event{
		Type:       t,
		ChargeID:   charge.ID,
		Reference:  charge.InternalReference,
		Status:     status,
		Amount:     charge.Amount,
		OccurredAt: w.now(),
	}
	if ref, err := domain.ParseReference(charge.InternalReference); err == nil {
		switch ref.Kind {
		case domain.ReferencePlan:
			ev.UserID = ref.UserID
			ev.Attributes = map[string]string{"plan_id": ref.PlanID}
		case domain.ReferenceOrder:
			ev.Attributes = map[string]string{"order_id": ref.OrderID}
		}
	}
	w.notifier.Emit(ctx, ev)
}

// dedupKey prefers the provider's delivery id. Without one, the charge and
// raw status identify the delivery; status-less callbacks are not cached.
func (w *WebhookIngestor) dedupKey(event *domain.WebhookEvent) string {
	switch {
	case event.EventID != "":
		return string(w.provider) + ":" + event.EventID
	case event.RawStatus != "":
		return string(w.provider) + ":" + event.ExternalChargeID + ":" + event.RawStatus
	default:
		return ""
	}
}

func (w *WebhookIngestor) seen(ctx context.Context, key string) bool {
	if w.dedup == nil || key == "" {
		return false
	}
	ok, err := w.dedup.Seen(ctx, key)
	if err != nil {
		log.Printf("Idempotency cache unavailable, relying on status order: %v", err)
		return false
	}
	return ok
}

func (w *WebhookIngestor) remember(ctx context.Context, key string) {
	if w.dedup == nil || key == "" {
		return
	}
	if err := w.dedup.Remember(ctx, key); err != nil {
		log.Printf("Failed to remember webhook %s: %v", key, err)
	}
}
