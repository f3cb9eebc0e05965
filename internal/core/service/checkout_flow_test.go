package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

func validForm() CheckoutForm {
	return CheckoutForm{
		Name:    "Maria Souza",
		Email:   " Maria@Example.com ",
		Phone:   "11987654321",
		TaxID:   "249.715.637-92",
		Address: domain.Address{Street: "Av. Paulista", Number: "1000", City: "São Paulo", State: "SP", PostalCode: "01310100"},
	}
}

func pixResult() *CheckoutResult {
	expires := time.Now().Add(15 * time.Minute)
	return &CheckoutResult{
		Step:   StepConfirmation,
		Charge: &domain.Charge{ID: "pay_1", Method: domain.BillingPix, InternalStatus: domain.StatusPending, PixExpiresAt: &expires},
	}
}

func TestCheckoutFlow_FormValidation(t *testing.T) {
	flow := NewCheckoutFlow(nil)
	assert.Equal(t, StepForm, flow.Step())

	form := validForm()
	form.Email = "not-an-email"
	err := flow.SubmitForm(form)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Equal(t, StepForm, flow.Step())
	assert.Contains(t, flow.LastError(), "email")

	require.NoError(t, flow.SubmitForm(validForm()))
	assert.Equal(t, StepPayment, flow.Step())
	assert.Empty(t, flow.LastError())
	assert.Equal(t, "maria@example.com", flow.Form().Email)
	assert.Equal(t, "24971563792", flow.Form().TaxID)
}

func TestCheckoutFlow_BackKeepsForm(t *testing.T) {
	flow := NewCheckoutFlow(nil)

	assert.Error(t, flow.Back())
	require.NoError(t, flow.SubmitForm(validForm()))
	require.NoError(t, flow.Back())
	assert.Equal(t, StepForm, flow.Step())
	assert.Equal(t, "Maria Souza", flow.Form().Name)
	assert.Error(t, flow.Back())
}

func TestCheckoutFlow_PayOnlyFromPaymentStep(t *testing.T) {
	flow := NewCheckoutFlow(func(context.Context, PaymentInput) (*CheckoutResult, error) {
		t.Fatal("pay must not be called")
		return nil, nil
	})

	_, err := flow.Pay(context.Background(), "pix", nil, "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestCheckoutFlow_PixConfirms(t *testing.T) {
	var got PaymentInput
	flow := NewCheckoutFlow(func(_ context.Context, in PaymentInput) (*CheckoutResult, error) {
		got = in
		return pixResult(), nil
	})
	require.NoError(t, flow.SubmitForm(validForm()))

	result, err := flow.Pay(context.Background(), "pix", nil, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, flow.Step())
	assert.Equal(t, StepConfirmation, result.Step)
	assert.Equal(t, "pix", got.Method)
	assert.Nil(t, got.CardHolder)
	assert.Equal(t, "203.0.113.7", got.RemoteIP)

	countdown, ok := flow.Countdown()
	require.True(t, ok)
	assert.False(t, countdown.Expired(time.Now()))
}

func TestCheckoutFlow_DeclinedCardStaysOnPayment(t *testing.T) {
	var got PaymentInput
	flow := NewCheckoutFlow(func(_ context.Context, in PaymentInput) (*CheckoutResult, error) {
		got = in
		return &CheckoutResult{Step: StepPayment, Declined: true, Message: DeclinedMessage}, nil
	})
	require.NoError(t, flow.SubmitForm(validForm()))

	result, err := flow.Pay(context.Background(), "credit_card", testCard(), "")
	require.NoError(t, err)
	assert.True(t, result.Declined)
	assert.Equal(t, StepPayment, flow.Step())
	assert.Equal(t, DeclinedMessage, flow.LastError())

	require.NotNil(t, got.CardHolder)
	assert.Equal(t, "24971563792", got.CardHolder.TaxID)
	assert.Equal(t, "01310100", got.CardHolder.PostalCode)
	assert.Equal(t, "1000", got.CardHolder.AddressNumber)

	_, ok := flow.Countdown()
	assert.False(t, ok)
}

func TestCheckoutFlow_CardUnderAnalysisConfirms(t *testing.T) {
	flow := NewCheckoutFlow(func(context.Context, PaymentInput) (*CheckoutResult, error) {
		return &CheckoutResult{
			Charge:      &domain.Charge{ID: "pay_1", Method: domain.BillingCreditCard, InternalStatus: domain.StatusPending},
			Step:        StepConfirmation,
			UnderReview: true,
			Message:     ReviewMessage,
		}, nil
	})
	require.NoError(t, flow.SubmitForm(validForm()))

	result, err := flow.Pay(context.Background(), "credit_card", testCard(), "")
	require.NoError(t, err)
	assert.True(t, result.UnderReview)
	assert.Equal(t, StepConfirmation, flow.Step())
	assert.Empty(t, flow.LastError())
}

func TestCheckoutFlow_CardNeedsBillingAddress(t *testing.T) {
	flow := NewCheckoutFlow(func(context.Context, PaymentInput) (*CheckoutResult, error) {
		t.Fatal("pay must not be called")
		return nil, nil
	})
	form := validForm()
	form.Address = domain.Address{}
	require.NoError(t, flow.SubmitForm(form))

	_, err := flow.Pay(context.Background(), "credit_card", testCard(), "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Equal(t, StepPayment, flow.Step())
	assert.NotEmpty(t, flow.LastError())
}

func TestCheckoutFlow_GatewayErrorShowsGenericMessage(t *testing.T) {
	flow := NewCheckoutFlow(func(context.Context, PaymentInput) (*CheckoutResult, error) {
		return nil, unavailable(domain.NewGatewayError(502, "bad gateway"))
	})
	require.NoError(t, flow.SubmitForm(validForm()))

	_, err := flow.Pay(context.Background(), "boleto", nil, "")
	require.Error(t, err)
	assert.Equal(t, UnavailableMessage, flow.LastError())
	assert.Equal(t, StepPayment, flow.Step())
}

func TestCountdown(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires time.Time
		want    string
		expired bool
	}{
		{"minutes and seconds", now.Add(90 * time.Second), "01:30", false},
		{"under a minute", now.Add(9 * time.Second), "00:09", false},
		{"over an hour", now.Add(2 * time.Hour), "120:00", false},
		{"past", now.Add(-time.Minute), "00:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Countdown{ExpiresAt: tt.expires}
			assert.Equal(t, tt.want, c.Format(now))
			assert.Equal(t, tt.expired, c.Expired(now))
			assert.GreaterOrEqual(t, c.Remaining(now), time.Duration(0))
		})
	}
}
