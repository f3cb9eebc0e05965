package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

// Step is a checkout screen.
type Step string

const (
	StepForm         Step = "form"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

// CheckoutForm is the delivery and billing data collected on the form step.
type CheckoutForm struct {
	Name    string         `json:"name" validate:"required,min=3"`
	Email   string         `json:"email" validate:"required,email"`
	Phone   string         `json:"phone" validate:"omitempty,min=10"`
	TaxID   string         `json:"tax_id" validate:"omitempty,numeric,min=11,max=14"`
	Address domain.Address `json:"address"`
}

// PayFunc charges whatever the flow was opened for.
type PayFunc func(ctx context.Context, in PaymentInput) (*CheckoutResult, error)

// CheckoutFlow drives form -> payment -> confirmation, with payment -> form
// allowed. It lives for one checkout and is not persisted.
type CheckoutFlow struct {
	step     Step
	form     *CheckoutForm
	result   *CheckoutResult
	lastErr  string
	pay      PayFunc
	validate *validator.Validate
}

// NewCheckoutFlow opens a flow on the form step.
func NewCheckoutFlow(pay PayFunc) *CheckoutFlow {
	return &CheckoutFlow{step: StepForm, pay: pay, validate: validator.New()}
}

// SubscriptionFlow opens a flow that pays a pending subscription.
func (s *CheckoutService) SubscriptionFlow(subscriptionID string) *CheckoutFlow {
	return NewCheckoutFlow(func(ctx context.Context, in PaymentInput) (*CheckoutResult, error) {
		return s.PaySubscription(ctx, subscriptionID, in)
	})
}

// OrderFlow opens a flow that pays an order.
func (s *CheckoutService) OrderFlow(orderID string) *CheckoutFlow {
	return NewCheckoutFlow(func(ctx context.Context, in PaymentInput) (*CheckoutResult, error) {
		return s.PayOrder(ctx, orderID, in)
	})
}

func (f *CheckoutFlow) Step() Step { return f.step }

// LastError is the message shown on the current step, empty when none.
func (f *CheckoutFlow) LastError() string { return f.lastErr }

func (f *CheckoutFlow) Result() *CheckoutResult { return f.result }

func (f *CheckoutFlow) Form() *CheckoutForm { return f.form }

// SubmitForm validates the form and moves to the payment step.
func (f *CheckoutFlow) SubmitForm(form CheckoutForm) error {
	if f.step != StepForm {
		return domain.NewValidationError(fmt.Sprintf("form cannot be submitted on step %s", f.step))
	}
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	form.TaxID = digits(form.TaxID)
	if err := f.validate.Struct(form); err != nil {
		f.lastErr = formError(err)
		return domain.NewValidationError(f.lastErr)
	}
	f.form = &form
	f.lastErr = ""
	f.step = StepPayment
	return nil
}

// Back returns from payment to the form, keeping the entered data.
func (f *CheckoutFlow) Back() error {
	if f.step != StepPayment {
		return domain.NewValidationError(fmt.Sprintf("cannot go back from step %s", f.step))
	}
	f.step = StepForm
	return nil
}

// Pay submits the payment. PIX and boleto confirm as soon as the charge
// exists. Cards confirm when authorized or held for analysis; a refused card
// stays on payment with LastError set.
func (f *CheckoutFlow) Pay(ctx context.Context, method string, card *domain.CardData, remoteIP string) (*CheckoutResult, error) {
	if f.step != StepPayment {
		return nil, domain.NewValidationError(fmt.Sprintf("cannot pay on step %s", f.step))
	}

	in := PaymentInput{Method: method, Card: card, RemoteIP: remoteIP}
	if bt, ok := domain.ParseBillingType(method); ok && bt.IsCard() {
		holder, err := f.cardHolder()
		if err != nil {
			f.lastErr = err.Error()
			return nil, domain.NewValidationError(f.lastErr)
		}
		in.CardHolder = holder
	}

	result, err := f.pay(ctx, in)
	if err != nil {
		var se *domain.ServiceError
		if errors.As(err, &se) && se.Kind == domain.KindGateway {
			f.lastErr = UnavailableMessage
		} else {
			f.lastErr = err.Error()
		}
		return nil, err
	}

	f.result = result
	if result.Declined {
		f.lastErr = result.Message
		f.step = StepPayment
		return result, nil
	}
	f.lastErr = ""
	f.step = StepConfirmation
	result.Step = StepConfirmation
	return result, nil
}

// Countdown returns the PIX expiry countdown of the confirmed charge.
func (f *CheckoutFlow) Countdown() (Countdown, bool) {
	if f.step != StepConfirmation || f.result == nil || f.result.Charge == nil {
		return Countdown{}, false
	}
	if f.result.Charge.Method != domain.BillingPix {
		return Countdown{}, false
	}
	return Countdown{ExpiresAt: f.result.Charge.ExpiresAt()}, true
}

func (f *CheckoutFlow) cardHolder() (*domain.CardHolder, error) {
	if f.form == nil {
		return nil, errors.New("billing data is required")
	}
	if f.form.TaxID == "" || f.form.Address.PostalCode == "" || f.form.Address.Number == "" {
		return nil, errors.New("card payments require tax id, postal code and address number")
	}
	return &domain.CardHolder{
		Name:          f.form.Name,
		Email:         f.form.Email,
		TaxID:         f.form.TaxID,
		PostalCode:    f.form.Address.PostalCode,
		AddressNumber: f.form.Address.Number,
		Phone:         f.form.Phone,
	}, nil
}

// Countdown is the advisory PIX expiry timer. The gateway enforces the real expiry.
type Countdown struct {
	ExpiresAt time.Time
}

// Remaining is never negative.
func (c Countdown) Remaining(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (c Countdown) Expired(now time.Time) bool {
	return c.Remaining(now) == 0
}

// Format renders mm:ss; minutes are not wrapped into hours.
func (c Countdown) Format(now time.Time) string {
	secs := int(c.Remaining(now).Seconds())
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func formError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid form"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}
