package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

// MockGateway simulates the payment gateway.
type MockGateway struct {
	mock.Mock
	provider domain.Provider
}

func (m *MockGateway) Provider() domain.Provider {
	if m.provider == "" {
		return domain.ProviderAsaas
	}
	return m.provider
}

func (m *MockGateway) CreateOrGetCustomer(ctx context.Context, profile domain.CustomerProfile) (*domain.Customer, error) {
	args := m.Called(ctx, profile)
	if c, ok := args.Get(0).(*domain.Customer); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	args := m.Called(ctx, req)
	if c, ok := args.Get(0).(*domain.Charge); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error) {
	args := m.Called(ctx, chargeID)
	if c, ok := args.Get(0).(*domain.Charge); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockCommerce simulates the marketplace backend.
type MockCommerce struct {
	mock.Mock
}

func (m *MockCommerce) GetPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	args := m.Called(ctx, planID)
	if p, ok := args.Get(0).(*domain.Plan); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCommerce) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if o, ok := args.Get(0).(*domain.Order); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCommerce) MarkOrderPaid(ctx context.Context, orderID, chargeID string) error {
	return m.Called(ctx, orderID, chargeID).Error(0)
}

func (m *MockCommerce) SetSellerPlan(ctx context.Context, userID, planSlug string) error {
	return m.Called(ctx, userID, planSlug).Error(0)
}

func (m *MockCommerce) GetCustomerProfile(ctx context.Context, userID string) (*domain.CustomerProfile, error) {
	args := m.Called(ctx, userID)
	if p, ok := args.Get(0).(*domain.CustomerProfile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRenewals records renewal requests.
type MockRenewals struct {
	mock.Mock
}

func (m *MockRenewals) RequestRenewal(ctx context.Context, sub *domain.Subscription, plan *domain.Plan) error {
	return m.Called(ctx, sub, plan).Error(0)
}

// recordingObserver keeps what the ingestor reported.
type recordingObserver struct {
	mu       sync.Mutex
	unknown  []string
	outcomes []domain.Transition
}

func (o *recordingObserver) UnknownStatus(_ context.Context, _ domain.Provider, raw, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unknown = append(o.unknown, raw)
}

func (o *recordingObserver) Outcome(_ context.Context, _ domain.Provider, t domain.Transition, _ domain.PaymentStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, t)
}
