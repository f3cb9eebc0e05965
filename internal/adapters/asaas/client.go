// Package asaas implements the PaymentGateway port against the Asaas v3 REST API.
package asaas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

// Business terms applied to every charge. Policy constants, not computed.
const (
	InterestPercent = 2.0
	FinePercent     = 1.0
	DiscountPercent = 0.0

	// DueGraceWindow is added to the creation time when a request has no due date.
	DueGraceWindow = 7 * 24 * time.Hour
)

const (
	dateLayout    = "2006-01-02"
	pixDateLayout = "2006-01-02 15:04:05"
	userAgent     = "Vendeu Online Marketplace"
)

// Mode selects between real gateway calls and synthetic charges.
type Mode int

const (
	ModeLive Mode = iota
	ModeMock
)

func (m Mode) String() string {
	if m == ModeMock {
		return "mock"
	}
	return "live"
}

// Options configures a Client.
type Options struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	MaxConcurrency int
	// Production forbids the mock fallback.
	Production bool
	// Now is overridable in tests.
	Now func() time.Time
}

// Client implements ports.PaymentGateway for Asaas.
// The mode is resolved once at construction; callers never see it.
type Client struct {
	mode     Mode
	http     *resty.Client
	sem      *semaphore.Weighted
	lookups  singleflight.Group
	timeout  time.Duration
	validate *validator.Validate
	tracer   trace.Tracer
	now      func() time.Time

	mockMu      sync.Mutex
	mockCharges map[string]domain.Charge
}

// NewClient creates the Asaas client. Without an API key it runs in mock
// mode, except in production where a missing key is a startup error.
func NewClient(opts Options) (*Client, error) {
	mode := ModeLive
	if opts.APIKey == "" {
		if opts.Production {
			return nil, errors.New("asaas: GATEWAY_API_KEY is required in production")
		}
		mode = ModeMock
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", userAgent).
		SetHeader("access_token", opts.APIKey)

	return &Client{
		mode:        mode,
		http:        httpClient,
		sem:         semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		timeout:     opts.Timeout,
		validate:    validator.New(),
		tracer:      otel.Tracer("github.com/vendeuonline/vendeu-payments/internal/adapters/asaas"),
		now:         opts.Now,
		mockCharges: make(map[string]domain.Charge),
	}, nil
}

// Mode reports the resolved mode.
func (c *Client) Mode() Mode {
	return c.mode
}

// Provider implements ports.PaymentGateway.
func (c *Client) Provider() domain.Provider {
	return domain.ProviderAsaas
}

// CreateOrGetCustomer searches by email first and only creates on a miss, so
// a local user maps to one billing identity. Concurrent calls for the same
// email share one round trip.
func (c *Client) CreateOrGetCustomer(ctx context.Context, profile domain.CustomerProfile) (*domain.Customer, error) {
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	profile.Name = strings.TrimSpace(profile.Name)
	if err := c.validate.Struct(profile); err != nil {
		return nil, domain.NewValidationError("invalid customer profile: " + err.Error())
	}

	if c.mode == ModeMock {
		return mockCustomer(profile), nil
	}

	ch := c.lookups.DoChan(profile.Email, func() (interface{}, error) {
		// Waiters share this call, so it must outlive any single caller.
		// Search plus create is at most two round trips.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*c.timeout)
		defer cancel()

		var found customerListResponse
		if err := c.do(lookupCtx, http.MethodGet, "/customers", map[string]string{"email": profile.Email}, nil, &found); err != nil {
			return nil, err
		}
		if len(found.Data) > 0 {
			log.Printf("Asaas customer found: %s", found.Data[0].ID)
			return toCustomer(found.Data[0]), nil
		}

		var created customerResponse
		if err := c.do(lookupCtx, http.MethodPost, "/customers", nil, newCustomerRequest(profile), &created); err != nil {
			return nil, err
		}
		log.Printf("Asaas customer created: %s", created.ID)
		return toCustomer(created), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	customer := *res.Val.(*domain.Customer)
	return &customer, nil
}

// CreateCharge issues a charge. PIX charges also fetch their QR code.
func (c *Client) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	if err := validateChargeRequest(req); err != nil {
		return nil, err
	}
	if req.Method == "" {
		req.Method = domain.BillingUndefined
	}
	if req.DueDate.IsZero() {
		req.DueDate = c.now().Add(DueGraceWindow)
	}

	if c.mode == ModeMock {
		return c.mockCharge(req)
	}

	var created paymentResponse
	if err := c.do(ctx, http.MethodPost, "/payments", nil, newPaymentRequest(req), &created); err != nil {
		return nil, err
	}
	charge, err := toCharge(created)
	if err != nil {
		return nil, err
	}
	charge.CreatedAt = c.now()
	charge.UpdatedAt = charge.CreatedAt

	if req.Method == domain.BillingPix {
		var qr pixQrCodeResponse
		path := fmt.Sprintf("/payments/%s/pixQrCode", created.ID)
		if err := c.do(ctx, http.MethodGet, path, nil, nil, &qr); err != nil {
			log.Printf("Asaas PIX QR code fetch failed for charge %s: %v", created.ID, err)
		} else {
			applyPixQrCode(charge, qr)
		}
	}

	log.Printf("Asaas charge created: %s method=%s amount=%.2f status=%s",
		charge.ID, charge.Method, charge.Amount, charge.Status)
	return charge, nil
}

// GetCharge retrieves a charge. A 404 is reported as a not-found error.
func (c *Client) GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error) {
	if strings.TrimSpace(chargeID) == "" {
		return nil, domain.NewValidationError("charge id is required")
	}
	if c.mode == ModeMock {
		return c.getMockCharge(chargeID)
	}

	var got paymentResponse
	err := c.do(ctx, http.MethodGet, "/payments/"+chargeID, nil, nil, &got)
	if err != nil {
		var se *domain.ServiceError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, &domain.ServiceError{
				Kind:       domain.KindNotFound,
				Err:        domain.ErrNotFound,
				Message:    "charge " + chargeID + " not found at gateway",
				Code:       "CHARGE_NOT_FOUND",
				StatusCode: se.StatusCode,
				RawBody:    se.RawBody,
			}
		}
		return nil, err
	}
	return toCharge(got)
}

// do performs one gateway call. Non-2xx responses become gateway errors
// carrying status and raw body; a 2xx body that is not valid JSON is an error too.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return domain.WrapGatewayError(err, "waiting for a gateway slot")
	}
	defer c.sem.Release(1)

	ctx, span := c.tracer.Start(ctx, "asaas "+method+" "+spanRoute(path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", method)),
	)
	defer span.End()

	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return domain.WrapGatewayError(err, "gateway request failed")
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode()))

	if !resp.IsSuccess() {
		span.SetStatus(codes.Error, resp.Status())
		log.Printf("Asaas API error: %s %s returned %d", method, spanRoute(path), resp.StatusCode())
		return domain.NewGatewayError(resp.StatusCode(), string(resp.Body()))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response")
		return domain.WrapGatewayError(err, "gateway returned malformed JSON")
	}
	return nil
}

// spanRoute strips ids from a path so span names stay low-cardinality.
func spanRoute(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 {
		parts[1] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}

func validateChargeRequest(req domain.ChargeRequest) error {
	if strings.TrimSpace(req.Customer.ExternalID) == "" {
		return domain.NewValidationError("charge customer is required")
	}
	if req.Amount < 0 {
		return domain.NewValidationError("charge amount must not be negative")
	}
	if strings.TrimSpace(req.InternalReference) == "" {
		return domain.NewValidationError("charge reference is required")
	}
	if req.Method != "" {
		if _, ok := domain.ParseBillingType(string(req.Method)); !ok {
			return domain.NewValidationError("unsupported billing type " + string(req.Method))
		}
	}
	if req.Method.IsCard() && (req.Card == nil || req.CardHolder == nil) {
		return domain.NewValidationError("card data and holder info are required for card charges")
	}
	return nil
}

func newCustomerRequest(p domain.CustomerProfile) customerRequest {
	r := customerRequest{
		Name:              p.Name,
		Email:             p.Email,
		Phone:             p.Phone,
		MobilePhone:       p.Phone,
		CpfCnpj:           p.TaxID,
		ExternalReference: p.UserID,
		Observations:      "Cliente do marketplace Vendeu Online - ID: " + p.UserID,
	}
	if p.Address != nil {
		r.PostalCode = p.Address.PostalCode
		r.Address = p.Address.Street
		r.AddressNumber = p.Address.Number
		r.Complement = p.Address.Complement
		r.Province = p.Address.District
	}
	return r
}

func newPaymentRequest(req domain.ChargeRequest) paymentRequest {
	r := paymentRequest{
		Customer:          req.Customer.ExternalID,
		BillingType:       string(req.Method),
		Value:             domain.RoundAmount(req.Amount),
		DueDate:           req.DueDate.Format(dateLayout),
		Description:       req.Description,
		ExternalReference: req.InternalReference,
		Discount:          discountTerms{Value: DiscountPercent, DueDateLimitDays: 0, Type: "PERCENTAGE"},
		Interest:          percentageTerms{Value: InterestPercent, Type: "PERCENTAGE"},
		Fine:              percentageTerms{Value: FinePercent, Type: "PERCENTAGE"},
		RemoteIP:          req.RemoteIP,
	}
	if req.Method.IsCard() && req.Card != nil && req.CardHolder != nil {
		r.CreditCard = &creditCard{
			HolderName:  req.Card.HolderName,
			Number:      req.Card.Number,
			ExpiryMonth: req.Card.ExpiryMonth,
			ExpiryYear:  req.Card.ExpiryYear,
			CCV:         req.Card.CCV,
		}
		r.CreditCardHolderInfo = &creditCardHolderInfo{
			Name:          req.CardHolder.Name,
			Email:         req.CardHolder.Email,
			CpfCnpj:       req.CardHolder.TaxID,
			PostalCode:    req.CardHolder.PostalCode,
			AddressNumber: req.CardHolder.AddressNumber,
			Phone:         req.CardHolder.Phone,
		}
	}
	return r
}

func toCustomer(r customerResponse) *domain.Customer {
	phone := r.MobilePhone
	if phone == "" {
		phone = r.Phone
	}
	c := &domain.Customer{
		ExternalID: r.ID,
		Name:       r.Name,
		Email:      r.Email,
		Phone:      phone,
		TaxID:      r.CpfCnpj,
	}
	if r.Address != "" || r.PostalCode != "" {
		c.Address = &domain.Address{
			Street:     r.Address,
			Number:     r.AddressNumber,
			Complement: r.Complement,
			District:   r.Province,
			City:       r.CityName,
			State:      r.State,
			PostalCode: r.PostalCode,
		}
	}
	return c
}

func toCharge(r paymentResponse) (*domain.Charge, error) {
	if r.ID == "" {
		return nil, domain.WrapGatewayError(errors.New("missing id"), "gateway returned a charge without id")
	}
	charge := &domain.Charge{
		ID:                r.ID,
		InternalReference: r.ExternalReference,
		Method:            domain.BillingType(r.BillingType),
		Amount:            r.Value,
		Status:            r.Status,
		InternalStatus:    domain.MapExternalStatus(r.Status),
		InvoiceURL:        r.InvoiceURL,
		BoletoURL:         r.BankSlipURL,
	}
	if r.DueDate != "" {
		due, err := time.ParseInLocation(dateLayout, r.DueDate, time.UTC)
		if err != nil {
			return nil, domain.WrapGatewayError(err, "gateway returned an invalid due date")
		}
		charge.DueDate = due
	}
	if r.DateCreated != "" {
		if created, err := time.ParseInLocation(dateLayout, r.DateCreated, time.UTC); err == nil {
			charge.CreatedAt = created
			charge.UpdatedAt = created
		}
	}
	return charge, nil
}

func applyPixQrCode(charge *domain.Charge, qr pixQrCodeResponse) {
	charge.PixPayload = qr.Payload
	charge.PixQRImage = qr.EncodedImage
	if qr.ExpirationDate == "" {
		return
	}
	if exp, err := time.ParseInLocation(pixDateLayout, qr.ExpirationDate, time.UTC); err == nil {
		charge.PixExpiresAt = &exp
	}
}
