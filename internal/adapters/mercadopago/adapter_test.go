package mercadopago

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mercadopago/sdk-go/pkg/customer"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

var fixedNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type fakeCustomers struct{ mock.Mock }

func (m *fakeCustomers) Create(ctx context.Context, req customer.Request) (*customer.Response, error) {
	args := m.Called(ctx, req)
	if r, ok := args.Get(0).(*customer.Response); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *fakeCustomers) Search(ctx context.Context, req customer.SearchRequest) (*customer.SearchResponse, error) {
	args := m.Called(ctx, req)
	if r, ok := args.Get(0).(*customer.SearchResponse); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type fakePayments struct{ mock.Mock }

func (m *fakePayments) Create(ctx context.Context, req payment.Request) (*payment.Response, error) {
	args := m.Called(ctx, req)
	if r, ok := args.Get(0).(*payment.Response); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *fakePayments) Get(ctx context.Context, id int) (*payment.Response, error) {
	args := m.Called(ctx, id)
	if r, ok := args.Get(0).(*payment.Response); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type fakePreferences struct{ mock.Mock }

func (m *fakePreferences) Create(ctx context.Context, req preference.Request) (*preference.Response, error) {
	args := m.Called(ctx, req)
	if r, ok := args.Get(0).(*preference.Response); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type adapterFixture struct {
	adapter     *Adapter
	customers   *fakeCustomers
	payments    *fakePayments
	preferences *fakePreferences
}

func newAdapterFixture() *adapterFixture {
	f := &adapterFixture{customers: &fakeCustomers{}, payments: &fakePayments{}, preferences: &fakePreferences{}}
	f.adapter = newAdapter(f.customers, f.payments, f.preferences, "https://pay.example.com/webhooks/payments", time.Second)
	f.adapter.now = func() time.Time { return fixedNow }
	return f
}

func testProfile() domain.CustomerProfile {
	return domain.CustomerProfile{UserID: "u1", Name: "Maria da Silva Souza", Email: " Maria@Example.com ", Phone: "11999990000"}
}

func TestNewAdapter_RequiresToken(t *testing.T) {
	_, err := NewAdapter("  ", "", 0)
	require.Error(t, err)
}

func TestCreateOrGetCustomer_SearchHit(t *testing.T) {
	f := newAdapterFixture()
	f.customers.On("Search", mock.Anything, mock.MatchedBy(func(req customer.SearchRequest) bool {
		return req.Filters["email"] == "maria@example.com"
	})).Return(&customer.SearchResponse{Results: []customer.Response{{ID: "cus_1"}}}, nil).Once()

	cust, err := f.adapter.CreateOrGetCustomer(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, "cus_1", cust.ExternalID)
	assert.Equal(t, "maria@example.com", cust.Email)
	f.customers.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrGetCustomer_CreatesOnMiss(t *testing.T) {
	f := newAdapterFixture()
	f.customers.On("Search", mock.Anything, mock.Anything).Return(&customer.SearchResponse{}, nil).Once()
	f.customers.On("Create", mock.Anything, mock.MatchedBy(func(req customer.Request) bool {
		return req.Email == "maria@example.com" && req.FirstName == "Maria" && req.LastName == "da Silva Souza"
	})).Return(&customer.Response{ID: "cus_new"}, nil).Once()

	cust, err := f.adapter.CreateOrGetCustomer(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, "cus_new", cust.ExternalID)
	f.customers.AssertExpectations(t)
}

func TestCreateOrGetCustomer_Errors(t *testing.T) {
	f := newAdapterFixture()
	_, err := f.adapter.CreateOrGetCustomer(context.Background(), domain.CustomerProfile{Name: "Maria"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	f.customers.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()
	_, err = f.adapter.CreateOrGetCustomer(context.Background(), testProfile())
	assert.Equal(t, domain.KindGateway, domain.KindOf(err))
}

func TestCreateCharge_Pix(t *testing.T) {
	f := newAdapterFixture()
	resp := &payment.Response{
		ID:                123,
		Status:            "pending",
		ExternalReference: "plan_pro_user_u1",
		PaymentMethodID:   "pix",
		PaymentTypeID:     "bank_transfer",
		TransactionAmount: 19.9,
		DateCreated:       fixedNow,
	}
	resp.PointOfInteraction.TransactionData.QRCode = "00020126"
	resp.PointOfInteraction.TransactionData.QRCodeBase64 = "iVBORw0KGgo="
	f.payments.On("Create", mock.Anything, mock.MatchedBy(func(req payment.Request) bool {
		return req.PaymentMethodID == "pix" &&
			req.TransactionAmount == 19.9 &&
			req.ExternalReference == "plan_pro_user_u1" &&
			req.NotificationURL == "https://pay.example.com/webhooks/payments" &&
			req.Payer != nil && req.Payer.Email == "maria@example.com"
	})).Return(resp, nil).Once()

	charge, err := f.adapter.CreateCharge(context.Background(), domain.ChargeRequest{
		Customer:          domain.Customer{ExternalID: "cus_1", Email: "maria@example.com"},
		Method:            domain.BillingPix,
		Amount:            19.899,
		Description:       "Assinatura Pro - Vendeu Online",
		InternalReference: "plan_pro_user_u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "123", charge.ID)
	assert.Equal(t, domain.BillingPix, charge.Method)
	assert.Equal(t, domain.StatusPending, charge.InternalStatus)
	assert.Equal(t, "00020126", charge.PixPayload)
	assert.Equal(t, "iVBORw0KGgo=", charge.PixQRImage)
	assert.Equal(t, fixedNow.Add(7*24*time.Hour), charge.DueDate)
	f.payments.AssertExpectations(t)
}

func TestCreateCharge_Boleto(t *testing.T) {
	f := newAdapterFixture()
	resp := &payment.Response{ID: 456, Status: "pending", PaymentMethodID: "bolbradesco", PaymentTypeID: "ticket", TransactionAmount: 250}
	resp.PointOfInteraction.TransactionData.TicketURL = "https://mp.example.com/boleto/456"
	f.payments.On("Create", mock.Anything, mock.MatchedBy(func(req payment.Request) bool {
		return req.PaymentMethodID == "bolbradesco"
	})).Return(resp, nil).Once()

	due := fixedNow.AddDate(0, 0, 3)
	charge, err := f.adapter.CreateCharge(context.Background(), domain.ChargeRequest{
		Method: domain.BillingBoleto, Amount: 250, InternalReference: "order_o1", DueDate: due,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BillingBoleto, charge.Method)
	assert.Equal(t, "https://mp.example.com/boleto/456", charge.BoletoURL)
	assert.Empty(t, charge.InvoiceURL)
	assert.Equal(t, due, charge.DueDate)
}

func TestCreateCharge_UndefinedUsesPreference(t *testing.T) {
	f := newAdapterFixture()
	f.preferences.On("Create", mock.Anything, mock.MatchedBy(func(req preference.Request) bool {
		return len(req.Items) == 1 &&
			req.Items[0].Title == "order_o1" &&
			req.Items[0].UnitPrice == 99.9 &&
			req.ExternalReference == "order_o1"
	})).Return(&preference.Response{ID: "pref_1", InitPoint: "https://mp.example.com/checkout/pref_1"}, nil).Once()

	charge, err := f.adapter.CreateCharge(context.Background(), domain.ChargeRequest{
		Method: domain.BillingUndefined, Amount: 99.9, InternalReference: "order_o1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pref_1", charge.ID)
	assert.Equal(t, domain.BillingUndefined, charge.Method)
	assert.Equal(t, domain.StatusPending, charge.InternalStatus)
	assert.Equal(t, "https://mp.example.com/checkout/pref_1", charge.InvoiceURL)
	f.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateCharge_Rejections(t *testing.T) {
	f := newAdapterFixture()

	_, err := f.adapter.CreateCharge(context.Background(), domain.ChargeRequest{Method: domain.BillingPix, Amount: 10})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err), "reference is required")

	_, err = f.adapter.CreateCharge(context.Background(), domain.ChargeRequest{
		Method: domain.BillingCreditCard, Amount: 10, InternalReference: "order_o1",
	})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err), "raw cards are not supported")

	f.payments.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("503 from api")).Once()
	_, err = f.adapter.CreateCharge(context.Background(), domain.ChargeRequest{
		Method: domain.BillingPix, Amount: 10, InternalReference: "order_o1",
	})
	assert.Equal(t, domain.KindGateway, domain.KindOf(err))
}

func TestGetCharge(t *testing.T) {
	f := newAdapterFixture()
	f.payments.On("Get", mock.Anything, 789).Return(&payment.Response{
		ID: 789, Status: "approved", ExternalReference: "order_o1", PaymentTypeID: "credit_card", TransactionAmount: 50,
	}, nil).Once()
	f.payments.On("Get", mock.Anything, 999).Return(nil, errors.New("timeout")).Once()

	charge, err := f.adapter.GetCharge(context.Background(), " 789 ")
	require.NoError(t, err)
	assert.Equal(t, "789", charge.ID)
	assert.Equal(t, "approved", charge.Status)
	assert.Equal(t, domain.StatusPaid, charge.InternalStatus)
	assert.Equal(t, domain.BillingCreditCard, charge.Method)
	assert.Equal(t, "order_o1", charge.InternalReference)

	_, err = f.adapter.GetCharge(context.Background(), "pay_abc")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = f.adapter.GetCharge(context.Background(), "999")
	assert.Equal(t, domain.KindGateway, domain.KindOf(err))
	f.payments.AssertExpectations(t)
}

func TestBillingTypeOf(t *testing.T) {
	tests := []struct {
		methodID, typeID string
		want             domain.BillingType
	}{
		{"pix", "bank_transfer", domain.BillingPix},
		{"bolbradesco", "ticket", domain.BillingBoleto},
		{"visa", "credit_card", domain.BillingCreditCard},
		{"maestro", "debit_card", domain.BillingDebitCard},
		{"account_money", "account_money", domain.BillingUndefined},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, billingTypeOf(tt.methodID, tt.typeID), tt.methodID)
	}
}

func TestSplitName(t *testing.T) {
	first, last := splitName("  Maria   da Silva ")
	assert.Equal(t, "Maria", first)
	assert.Equal(t, "da Silva", last)

	first, last = splitName("")
	assert.Empty(t, first)
	assert.Empty(t, last)
}
