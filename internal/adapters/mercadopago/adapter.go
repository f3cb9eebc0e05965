// Package mercadopago implements the PaymentGateway interface using the official SDK.
package mercadopago

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/customer"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

// Payment method ids used for the asynchronous Brazilian methods.
const (
	methodPix    = "pix"
	methodBoleto = "bolbradesco"
	currencyBRL  = "BRL"
)

// The subset of the SDK clients the adapter calls.
type (
	customerAPI interface {
		Create(ctx context.Context, request customer.Request) (*customer.Response, error)
		Search(ctx context.Context, request customer.SearchRequest) (*customer.SearchResponse, error)
	}
	paymentAPI interface {
		Create(ctx context.Context, request payment.Request) (*payment.Response, error)
		Get(ctx context.Context, id int) (*payment.Response, error)
	}
	preferenceAPI interface {
		Create(ctx context.Context, request preference.Request) (*preference.Response, error)
	}
)

// Adapter implements ports.PaymentGateway using Mercado Pago SDK.
type Adapter struct {
	customers       customerAPI
	payments        paymentAPI
	preferences     preferenceAPI
	notificationURL string
	timeout         time.Duration
	now             func() time.Time
}

// NewAdapter creates a new Mercado Pago adapter.
func NewAdapter(accessToken, notificationURL string, timeout time.Duration) (*Adapter, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("mercadopago: access token is required")
	}
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, domain.WrapGatewayError(err, "failed to create MP config")
	}
	return newAdapter(customer.NewClient(cfg), payment.NewClient(cfg), preference.NewClient(cfg), notificationURL, timeout), nil
}

func newAdapter(c customerAPI, p paymentAPI, pref preferenceAPI, notificationURL string, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		customers:       c,
		payments:        p,
		preferences:     pref,
		notificationURL: notificationURL,
		timeout:         timeout,
		now:             time.Now,
	}
}

// Provider implements ports.PaymentGateway.
func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderMercadoPago
}

// CreateOrGetCustomer searches the customer by email and creates it on a miss.
func (a *Adapter) CreateOrGetCustomer(ctx context.Context, profile domain.CustomerProfile) (*domain.Customer, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" || strings.TrimSpace(profile.Name) == "" {
		return nil, domain.NewValidationError("customer name and email are required")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	found, err := a.customers.Search(ctx, customer.SearchRequest{
		Filters: map[string]string{"email": email},
	})
	if err != nil {
		return nil, domain.WrapGatewayError(err, "failed to search MP customer")
	}
	if found != nil && len(found.Results) > 0 {
		return &domain.Customer{
			ExternalID: found.Results[0].ID,
			Name:       profile.Name,
			Email:      email,
			Phone:      profile.Phone,
			TaxID:      profile.TaxID,
		}, nil
	}

	first, last := splitName(profile.Name)
	created, err := a.customers.Create(ctx, customer.Request{
		Email:     email,
		FirstName: first,
		LastName:  last,
	})
	if err != nil {
		return nil, domain.WrapGatewayError(err, "failed to create MP customer")
	}
	log.Printf("MP customer created: %s", created.ID)
	return &domain.Customer{
		ExternalID: created.ID,
		Name:       profile.Name,
		Email:      email,
		Phone:      profile.Phone,
		TaxID:      profile.TaxID,
	}, nil
}

// CreateCharge creates a PIX or boleto payment. UNDEFINED creates a Checkout
// Pro preference whose init point is returned as the invoice URL; the payment
// made through it is adopted when its webhook arrives.
func (a *Adapter) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	if req.Amount < 0 || strings.TrimSpace(req.InternalReference) == "" {
		return nil, domain.NewValidationError("charge amount and reference are required")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	switch req.Method {
	case domain.BillingPix, domain.BillingBoleto:
		return a.createPayment(ctx, req)
	case domain.BillingUndefined, "":
		return a.createPreference(ctx, req)
	default:
		return nil, domain.NewValidationError("mercadopago requires tokenized cards; " + string(req.Method) + " is not supported")
	}
}

func (a *Adapter) createPayment(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	methodID := methodBoleto
	if req.Method == domain.BillingPix {
		methodID = methodPix
	}

	result, err := a.payments.Create(ctx, payment.Request{
		TransactionAmount: domain.RoundAmount(req.Amount),
		Description:       req.Description,
		PaymentMethodID:   methodID,
		ExternalReference: req.InternalReference,
		NotificationURL:   a.notificationURL,
		Payer: &payment.PayerRequest{
			Email: req.Customer.Email,
		},
	})
	if err != nil {
		return nil, domain.WrapGatewayError(err, "failed to create MP payment")
	}

	charge := toCharge(result)
	charge.Method = req.Method
	charge.DueDate = req.DueDate
	if charge.DueDate.IsZero() {
		charge.DueDate = a.now().Add(7 * 24 * time.Hour)
	}
	log.Printf("MP payment created: %s method=%s status=%s", charge.ID, methodID, charge.Status)
	return charge, nil
}

func (a *Adapter) createPreference(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	title := req.Description
	if title == "" {
		title = req.InternalReference
	}
	result, err := a.preferences.Create(ctx, preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:      title,
				Quantity:   1,
				UnitPrice:  domain.RoundAmount(req.Amount),
				CurrencyID: currencyBRL,
			},
		},
		Payer: &preference.PayerRequest{
			Email: req.Customer.Email,
		},
		ExternalReference: req.InternalReference,
		NotificationURL:   a.notificationURL,
	})
	if err != nil {
		return nil, domain.WrapGatewayError(err, "failed to create MP preference")
	}

	now := a.now()
	return &domain.Charge{
		ID:                result.ID,
		InternalReference: req.InternalReference,
		Method:            domain.BillingUndefined,
		Amount:            domain.RoundAmount(req.Amount),
		DueDate:           req.DueDate,
		Status:            "pending",
		InternalStatus:    domain.StatusPending,
		InvoiceURL:        result.InitPoint,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// GetCharge retrieves payment details from Mercado Pago. Payment ids are
// numeric; anything else cannot exist there.
func (a *Adapter) GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error) {
	id, err := strconv.Atoi(strings.TrimSpace(chargeID))
	if err != nil {
		return nil, domain.NewNotFoundError("invalid payment ID format")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.payments.Get(ctx, id)
	if err != nil {
		return nil, domain.WrapGatewayError(err, "failed to get payment info")
	}
	return toCharge(result), nil
}

func toCharge(r *payment.Response) *domain.Charge {
	charge := &domain.Charge{
		ID:                strconv.Itoa(r.ID),
		InternalReference: r.ExternalReference,
		Method:            billingTypeOf(r.PaymentMethodID, r.PaymentTypeID),
		Amount:            r.TransactionAmount,
		Status:            r.Status,
		InternalStatus:    domain.MapMercadoPagoStatus(r.Status),
		PixPayload:        r.PointOfInteraction.TransactionData.QRCode,
		PixQRImage:        r.PointOfInteraction.TransactionData.QRCodeBase64,
		CreatedAt:         r.DateCreated,
		UpdatedAt:         r.DateCreated,
	}
	if url := r.PointOfInteraction.TransactionData.TicketURL; url != "" {
		if charge.Method == domain.BillingBoleto {
			charge.BoletoURL = url
		} else {
			charge.InvoiceURL = url
		}
	}
	return charge
}

func billingTypeOf(methodID, typeID string) domain.BillingType {
	switch {
	case methodID == methodPix:
		return domain.BillingPix
	case typeID == "ticket":
		return domain.BillingBoleto
	case typeID == "credit_card":
		return domain.BillingCreditCard
	case typeID == "debit_card":
		return domain.BillingDebitCard
	default:
		return domain.BillingUndefined
	}
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
