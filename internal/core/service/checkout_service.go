package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
	"github.com/vendeuonline/vendeu-payments/internal/core/ports"
)

// UnavailableMessage is the only gateway failure text callers ever see.
const UnavailableMessage = "payment unavailable, try again"

// DeclinedMessage is shown when a card is not authorized.
const DeclinedMessage = "card not authorized, check the data or use another method"

// ReviewMessage is shown when the gateway holds a card charge for analysis.
const ReviewMessage = "payment under analysis, you will be notified once it is confirmed"

// PaymentInput is the payment step of a checkout.
type PaymentInput struct {
	Method     string
	Card       *domain.CardData
	CardHolder *domain.CardHolder
	RemoteIP   string
}

// CheckoutResult is the outcome of a payment attempt. A declined card is a
// result, not an error: the buyer stays on the payment step. A card charge
// the gateway has not decided yet is UnderReview and must not be retried.
type CheckoutResult struct {
	Charge      *domain.Charge
	Step        Step
	Declined    bool
	UnderReview bool
	Message     string
}

// CheckoutService creates charges for subscriptions and orders and persists
// them for the webhook ingestor.
type CheckoutService struct {
	gateway   ports.PaymentGateway
	charges   ports.ChargeRepository
	subs      ports.SubscriptionRepository
	plans     ports.PlanCatalog
	orders    ports.OrderService
	users     ports.UserDirectory
	activator ports.SubscriptionActivator
	now       func() time.Time
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	gateway ports.PaymentGateway,
	charges ports.ChargeRepository,
	subs ports.SubscriptionRepository,
	plans ports.PlanCatalog,
	orders ports.OrderService,
	users ports.UserDirectory,
	activator ports.SubscriptionActivator,
) *CheckoutService {
	return &CheckoutService{
		gateway:   gateway,
		charges:   charges,
		subs:      subs,
		plans:     plans,
		orders:    orders,
		users:     users,
		activator: activator,
		now:       time.Now,
	}
}

// PaySubscription charges a PENDING subscription.
func (s *CheckoutService) PaySubscription(ctx context.Context, subscriptionID string, in PaymentInput) (*CheckoutResult, error) {
	method, err := parseMethod(in)
	if err != nil {
		return nil, err
	}

	sub, err := s.subs.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionPending {
		return nil, domain.NewValidationError("subscription " + sub.ID + " is not awaiting payment")
	}
	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.IsFree() {
		return nil, domain.NewValidationError("free plans are not charged")
	}

	result, err := s.charge(ctx, sub.UserID, domain.ChargeRequest{
		Method:            method,
		Amount:            plan.Price,
		Description:       fmt.Sprintf("Assinatura %s - Vendeu Online", plan.Name),
		InternalReference: domain.PlanReference(plan.ID, sub.UserID),
		SubscriptionID:    sub.ID,
		Card:              in.Card,
		CardHolder:        in.CardHolder,
		RemoteIP:          in.RemoteIP,
	})
	if err != nil {
		return nil, err
	}

	if result.Charge != nil && sub.PaymentMethod == nil {
		sub.PaymentMethod = &method
		sub.UpdatedAt = s.now()
		if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
			log.Printf("Failed to record payment method on subscription %s: %v", sub.ID, err)
		}
	}

	if authorizedNow(result) {
		ref := domain.SubscriptionRef{UserID: sub.UserID, PlanID: plan.ID, SubscriptionID: sub.ID}
		if _, err := s.activator.Activate(ctx, ref); err != nil {
			log.Printf("Card charge %s authorized, activation deferred to webhook: %v", result.Charge.ID, err)
		}
	}
	return result, nil
}

// PayOrder charges a marketplace order.
func (s *CheckoutService) PayOrder(ctx context.Context, orderID string, in PaymentInput) (*CheckoutResult, error) {
	method, err := parseMethod(in)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(order.Status, "paid") {
		return nil, domain.NewConflictError("order " + order.ID + " is already paid")
	}
	if order.Total <= 0 {
		return nil, domain.NewValidationError("order total must be positive")
	}

	result, err := s.charge(ctx, order.UserID, domain.ChargeRequest{
		Method:            method,
		Amount:            order.Total,
		Description:       "Pedido " + order.ID + " - Vendeu Online",
		InternalReference: domain.OrderReference(order.ID),
		Card:              in.Card,
		CardHolder:        in.CardHolder,
		RemoteIP:          in.RemoteIP,
	})
	if err != nil {
		return nil, err
	}

	if authorizedNow(result) {
		if err := s.orders.MarkOrderPaid(ctx, order.ID, result.Charge.ID); err != nil {
			log.Printf("Card charge %s authorized, order update deferred to webhook: %v", result.Charge.ID, err)
		}
	}
	return result, nil
}

// RequestRenewal implements ports.RenewalRequester. Card details are never
// stored, so card subscriptions renew through the gateway invoice page.
func (s *CheckoutService) RequestRenewal(ctx context.Context, sub *domain.Subscription, plan *domain.Plan) error {
	method := domain.BillingUndefined
	if sub.PaymentMethod != nil && !sub.PaymentMethod.IsCard() {
		method = *sub.PaymentMethod
	}
	result, err := s.charge(ctx, sub.UserID, domain.ChargeRequest{
		Method:            method,
		Amount:            plan.Price,
		Description:       fmt.Sprintf("Renovação %s - Vendeu Online", plan.Name),
		InternalReference: domain.PlanReference(plan.ID, sub.UserID),
		SubscriptionID:    sub.ID,
	})
	if err != nil {
		return err
	}
	log.Printf("Renewal charge %s requested for subscription %s", result.Charge.ID, sub.ID)
	return nil
}

// GetCharge returns the locally stored charge, falling back to the gateway.
func (s *CheckoutService) GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error) {
	charge, err := s.charges.GetCharge(ctx, chargeID)
	if err == nil {
		return charge, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	charge, err = s.gateway.GetCharge(ctx, chargeID)
	if err != nil {
		if domain.KindOf(err) == domain.KindGateway {
			return nil, unavailable(err)
		}
		return nil, err
	}
	return charge, nil
}

func (s *CheckoutService) charge(ctx context.Context, userID string, req domain.ChargeRequest) (*CheckoutResult, error) {
	profile, err := s.users.GetCustomerProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	customer, err := s.gateway.CreateOrGetCustomer(ctx, *profile)
	if err != nil {
		if domain.KindOf(err) == domain.KindGateway {
			return nil, unavailable(err)
		}
		return nil, err
	}
	req.Customer = *customer

	charge, err := s.gateway.CreateCharge(ctx, req)
	if err != nil {
		if req.Method.IsCard() && isDecline(err) {
			log.Printf("Card charge for %s declined by gateway", req.InternalReference)
			return &CheckoutResult{Step: StepPayment, Declined: true, Message: DeclinedMessage}, nil
		}
		if domain.KindOf(err) == domain.KindGateway {
			return nil, unavailable(err)
		}
		return nil, err
	}

	charge.SubscriptionID = req.SubscriptionID
	if err := s.charges.SaveCharge(ctx, charge); err != nil {
		// The webhook adopts charges missing locally.
		log.Printf("Failed to store charge %s: %v", charge.ID, err)
	}

	result := &CheckoutResult{Charge: charge, Step: StepConfirmation}
	if req.Method.IsCard() {
		switch charge.InternalStatus {
		case domain.StatusPaid:
		case domain.StatusFailed:
			result.Step = StepPayment
			result.Declined = true
			result.Message = DeclinedMessage
		default:
			// Live at the gateway; the webhook settles it.
			result.UnderReview = true
			result.Message = ReviewMessage
		}
	}
	log.Printf("Charge %s created for %s: method=%s status=%s", charge.ID, req.InternalReference, charge.Method, charge.InternalStatus)
	return result, nil
}

func parseMethod(in PaymentInput) (domain.BillingType, error) {
	method, ok := domain.ParseBillingType(in.Method)
	if !ok {
		return "", domain.NewValidationError("unsupported payment method " + in.Method)
	}
	if method.IsCard() && (in.Card == nil || in.CardHolder == nil) {
		return "", domain.NewValidationError("card data and holder info are required for card payments")
	}
	return method, nil
}

func authorizedNow(r *CheckoutResult) bool {
	return r.Charge != nil && r.Charge.Method.IsCard() && r.Charge.InternalStatus == domain.StatusPaid
}

// isDecline reports a refused card. Gateways answer 400 or 422; other 4xx
// (bad credentials, unknown route) are our fault and read as unavailable.
func isDecline(err error) bool {
	var se *domain.ServiceError
	if !errors.As(err, &se) || se.Kind != domain.KindGateway {
		return false
	}
	return se.StatusCode == http.StatusBadRequest || se.StatusCode == http.StatusUnprocessableEntity
}

// unavailable hides gateway details from callers; they are logged instead.
func unavailable(err error) error {
	log.Printf("Gateway failure: %v", err)
	return domain.NewServiceError(domain.KindGateway, domain.ErrGateway, UnavailableMessage, "PAYMENT_UNAVAILABLE")
}
