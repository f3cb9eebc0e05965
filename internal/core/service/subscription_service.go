package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/ports"
)

// CreateSubscriptionRequest is a seller's plan selection.
type CreateSubscriptionRequest struct {
	UserID        string
	PlanID        string
	PaymentMethod *domain.BillingType
	AutoRenew     bool
}

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	Expired int
	Renewed int
}

// SubscriptionService owns the subscription lifecycle:
// PENDING -> ACTIVE -> CANCELLED | EXPIRED, free plans ACTIVE on creation.
// At most one ACTIVE row exists per user.
type SubscriptionService struct {
	subs         ports.SubscriptionRepository
	plans        ports.PlanCatalog
	sellers      ports.SellerPlanWriter
	notifier     ports.Notifier
	renewals     ports.RenewalRequester
	freePlanSlug string
	users        *keyedMutex
	now          func() time.Time
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(
	subs ports.SubscriptionRepository,
	plans ports.PlanCatalog,
	sellers ports.SellerPlanWriter,
	notifier ports.Notifier,
	freePlanSlug string,
) *SubscriptionService {
	return &SubscriptionService{
		subs:         subs,
		plans:        plans,
		sellers:      sellers,
		notifier:     notifier,
		freePlanSlug: freePlanSlug,
		users:        newKeyedMutex(),
		now:          time.Now,
	}
}

// SetRenewalRequester wires the checkout side after both services exist.
func (s *SubscriptionService) SetRenewalRequester(r ports.RenewalRequester) {
	s.renewals = r
}

// CreateSubscription creates a PENDING subscription awaiting payment, or an
// ACTIVE one for free plans. A user with an ACTIVE subscription gets a conflict.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*domain.Subscription, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.PlanID = strings.TrimSpace(req.PlanID)
	if req.UserID == "" || req.PlanID == "" {
		return nil, domain.NewValidationError("user_id and plan_id are required")
	}

	unlock := s.users.Lock(req.UserID)
	defer unlock()

	active, err := s.subs.FindActiveByUser(ctx, req.UserID)
	switch {
	case err == nil:
		return nil, domain.NewConflictError(fmt.Sprintf("user %s already has active subscription %s", req.UserID, active.ID))
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	plan, err := s.plans.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	end, err := domain.PeriodEnd(now, plan.BillingPeriod)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	sub := &domain.Subscription{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		PlanID:        plan.ID,
		Status:        domain.SubscriptionPending,
		StartDate:     now,
		EndDate:       end,
		PaymentMethod: req.PaymentMethod,
		AutoRenew:     req.AutoRenew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if plan.IsFree() {
		sub.Status = domain.SubscriptionActive
	}

	if err := s.subs.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	if sub.Status == domain.SubscriptionActive {
		s.setSellerPlan(ctx, sub.UserID, plan.Slug)
		s.emit(ctx, domain.EventSubscriptionActivated, sub, plan.Slug)
		log.Printf("Free subscription %s activated for user %s (plan %s)", sub.ID, sub.UserID, plan.Slug)
	} else {
		log.Printf("Subscription %s created for user %s, awaiting payment of %.2f", sub.ID, sub.UserID, plan.Price)
	}
	return sub, nil
}

// Activate moves the PENDING subscription a paid charge is bound to into
// ACTIVE. An already active target is returned unchanged, so repeated payment
// confirmations are harmless. A cancelled or expired target is never revived.
func (s *SubscriptionService) Activate(ctx context.Context, ref domain.SubscriptionRef) (*domain.Subscription, error) {
	unlock := s.users.Lock(ref.UserID)
	defer unlock()

	pending, err := s.paidSubscription(ctx, ref)
	if err != nil {
		return nil, err
	}
	if pending.Status == domain.SubscriptionActive {
		return pending, nil
	}

	plan, err := s.plans.GetPlan(ctx, ref.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	previous, err := s.subs.FindActiveByUser(ctx, ref.UserID)
	switch {
	case err == nil && previous.ID != pending.ID:
		if err := previous.Cancel(now); err != nil {
			return nil, err
		}
		if err := s.subs.UpdateSubscription(ctx, previous); err != nil {
			return nil, err
		}
		log.Printf("Subscription %s of user %s cancelled in favour of %s", previous.ID, ref.UserID, pending.ID)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	if err := pending.Activate(now, plan.BillingPeriod); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if err := s.subs.UpdateSubscription(ctx, pending); err != nil {
		return nil, err
	}

	s.setSellerPlan(ctx, pending.UserID, plan.Slug)
	s.emit(ctx, domain.EventSubscriptionActivated, pending, plan.Slug)
	log.Printf("Subscription %s activated for user %s until %s", pending.ID, pending.UserID, pending.EndDate.Format(time.RFC3339))
	return pending, nil
}

// paidSubscription resolves the row a plan charge pays for. A bound charge
// only ever pays its own row. Unbound charges fall back to the newest PENDING
// row for the plan, or the ACTIVE one for the same plan.
func (s *SubscriptionService) paidSubscription(ctx context.Context, ref domain.SubscriptionRef) (*domain.Subscription, error) {
	if ref.SubscriptionID != "" {
		sub, err := s.subs.GetSubscription(ctx, ref.SubscriptionID)
		if err != nil {
			return nil, err
		}
		if sub.UserID != ref.UserID || sub.PlanID != ref.PlanID {
			return nil, domain.NewNotFoundError(fmt.Sprintf("subscription %s does not belong to user %s plan %s", sub.ID, ref.UserID, ref.PlanID))
		}
		switch sub.Status {
		case domain.SubscriptionPending, domain.SubscriptionActive:
			return sub, nil
		default:
			return nil, domain.NewNotFoundError(fmt.Sprintf("subscription %s is %s", sub.ID, sub.Status))
		}
	}

	pending, err := s.subs.FindLatestPending(ctx, ref.UserID, ref.PlanID)
	if err == nil {
		return pending, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	active, err := s.subs.FindActiveByUser(ctx, ref.UserID)
	if err == nil && active.PlanID == ref.PlanID {
		return active, nil
	}
	return nil, domain.NewNotFoundError(fmt.Sprintf("no pending subscription for user %s plan %s", ref.UserID, ref.PlanID))
}

// Cancel cancels the user's ACTIVE subscription and downgrades the seller to
// the free tier. It is synchronous and takes effect immediately.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string) (*domain.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user_id is required")
	}
	unlock := s.users.Lock(userID)
	defer unlock()

	active, err := s.subs.FindActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewNotFoundError("user " + userID + " has no active subscription")
		}
		return nil, err
	}

	if err := active.Cancel(s.now()); err != nil {
		return nil, err
	}
	if err := s.subs.UpdateSubscription(ctx, active); err != nil {
		return nil, err
	}

	s.setSellerPlan(ctx, userID, s.freePlanSlug)
	s.emit(ctx, domain.EventSubscriptionCancelled, active, s.freePlanSlug)
	log.Printf("Subscription %s of user %s cancelled", active.ID, userID)
	return active, nil
}

// GetActive returns the user's ACTIVE subscription.
func (s *SubscriptionService) GetActive(ctx context.Context, userID string) (*domain.Subscription, error) {
	active, err := s.subs.FindActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewNotFoundError("user " + userID + " has no active subscription")
		}
		return nil, err
	}
	return active, nil
}

// SweepExpired expires ACTIVE subscriptions past their end date. Auto-renew
// subscriptions get a new PENDING row and a renewal charge. One failing row
// does not stop the sweep.
func (s *SubscriptionService) SweepExpired(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	expired, err := s.subs.ListExpired(ctx, now)
	if err != nil {
		return result, err
	}

	var errs []error
	for i := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		renewed, err := s.expireOne(ctx, expired[i].ID, now)
		if err != nil {
			log.Printf("Failed to expire subscription %s: %v", expired[i].ID, err)
			errs = append(errs, err)
			continue
		}
		result.Expired++
		if renewed {
			result.Renewed++
		}
	}

	if result.Expired > 0 {
		log.Printf("Expiry sweep: %d expired, %d renewal(s) requested", result.Expired, result.Renewed)
	}
	return result, errors.Join(errs...)
}

func (s *SubscriptionService) expireOne(ctx context.Context, id string, now time.Time) (bool, error) {
	// Re-read under the user lock: the row may have been cancelled or
	// replaced since it was listed.
	listed, err := s.subs.GetSubscription(ctx, id)
	if err != nil {
		return false, err
	}
	unlock := s.users.Lock(listed.UserID)
	defer unlock()

	sub, err := s.subs.GetSubscription(ctx, id)
	if err != nil {
		return false, err
	}
	if sub.Status != domain.SubscriptionActive || !sub.EndDate.Before(now) {
		return false, nil
	}

	if err := sub.Expire(now); err != nil {
		return false, err
	}
	if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
		return false, err
	}
	s.emit(ctx, domain.EventSubscriptionExpired, sub, "")

	if !sub.AutoRenew {
		s.setSellerPlan(ctx, sub.UserID, s.freePlanSlug)
		return false, nil
	}
	return s.renew(ctx, sub, now)
}

func (s *SubscriptionService) renew(ctx context.Context, expired *domain.Subscription, now time.Time) (bool, error) {
	plan, err := s.plans.GetPlan(ctx, expired.PlanID)
	if err != nil {
		s.setSellerPlan(ctx, expired.UserID, s.freePlanSlug)
		return false, fmt.Errorf("renewal of %s: %w", expired.ID, err)
	}
	end, err := domain.PeriodEnd(now, plan.BillingPeriod)
	if err != nil {
		s.setSellerPlan(ctx, expired.UserID, s.freePlanSlug)
		return false, fmt.Errorf("renewal of %s: %w", expired.ID, err)
	}

	next := &domain.Subscription{
		ID:            uuid.NewString(),
		UserID:        expired.UserID,
		PlanID:        plan.ID,
		Status:        domain.SubscriptionPending,
		StartDate:     now,
		EndDate:       end,
		PaymentMethod: expired.PaymentMethod,
		AutoRenew:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if plan.IsFree() {
		next.Status = domain.SubscriptionActive
	}
	if err := s.subs.CreateSubscription(ctx, next); err != nil {
		s.setSellerPlan(ctx, expired.UserID, s.freePlanSlug)
		return false, fmt.Errorf("renewal of %s: %w", expired.ID, err)
	}

	if next.Status == domain.SubscriptionActive {
		s.emit(ctx, domain.EventSubscriptionActivated, next, plan.Slug)
		return true, nil
	}

	// Service is downgraded until the renewal charge is paid.
	s.setSellerPlan(ctx, expired.UserID, s.freePlanSlug)
	if s.renewals == nil {
		log.Printf("No renewal requester configured; subscription %s awaits manual payment", next.ID)
		return true, nil
	}
	if err := s.renewals.RequestRenewal(ctx, next, plan); err != nil {
		return true, fmt.Errorf("renewal charge for %s: %w", next.ID, err)
	}
	return true, nil
}

func (s *SubscriptionService) setSellerPlan(ctx context.Context, userID, slug string) {
	if slug == "" {
		return
	}
	if err := s.sellers.SetSellerPlan(ctx, userID, slug); err != nil {
		log.Printf("Failed to set plan %s for seller %s: %v", slug, userID, err)
	}
}

func (s *SubscriptionService) emit(ctx context.Context, t domain.EventType, sub *domain.Subscription, planSlug string) {
	attrs := map[string]string{
		"subscription_id": sub.ID,
		"plan_id":         sub.PlanID,
		"status":          string(sub.Status),
	}
	if planSlug != "" {
		attrs["plan"] = planSlug
	}
	s.notifier.Emit(ctx, domain.Event{
		Type:       t,
		UserID:     sub.UserID,
		Reference:  domain.PlanReference(sub.PlanID, sub.UserID),
		Attributes: attrs,
		OccurredAt: s.now(),
	})
}
