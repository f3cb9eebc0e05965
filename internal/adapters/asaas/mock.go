package asaas

import (
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

// Synthetic values returned in mock mode. They are clearly recognisable so a
// mock charge is never mistaken for a real one.
const (
	MockChargePrefix = "pay_mock_"
	MockPixPayload   = "00020126580014br.gov.bcb.pix013634MOCK"
	MockInvoiceURL   = "https://sandbox.asaas.com/i/mock"
	MockBoletoURL    = "https://sandbox.asaas.com/b/mock"
	// 1x1 transparent PNG.
	MockPixQRImage = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

	mockDeclinedSuffix = "0000"
	mockReviewSuffix   = "0101"
)

var mockNamespace = uuid.MustParse("9b2f4c1e-6a0d-4d8e-9a55-2f7a1c3b8e10")

// mockCustomer derives a stable id from the email so repeated lookups agree.
func mockCustomer(p domain.CustomerProfile) *domain.Customer {
	id := "cus_mock_" + strings.ReplaceAll(uuid.NewSHA1(mockNamespace, []byte(p.Email)).String(), "-", "")[:12]
	return &domain.Customer{
		ExternalID: id,
		Name:       p.Name,
		Email:      p.Email,
		Phone:      p.Phone,
		TaxID:      p.TaxID,
		Address:    p.Address,
	}
}

func (c *Client) mockCharge(req domain.ChargeRequest) (*domain.Charge, error) {
	if req.Method.IsCard() && strings.HasSuffix(strings.TrimSpace(req.Card.Number), mockDeclinedSuffix) {
		log.Printf("MOCK: card charge declined for reference %s", req.InternalReference)
		return nil, domain.NewGatewayError(http.StatusBadRequest,
			`{"errors":[{"code":"invalid_creditCard","description":"Transação não autorizada (mock)"}]}`)
	}

	now := c.now()
	status := "PENDING"
	if req.Method.IsCard() {
		status = "CONFIRMED"
		if strings.HasSuffix(strings.TrimSpace(req.Card.Number), mockReviewSuffix) {
			status = "AWAITING_RISK_ANALYSIS"
		}
	}

	charge := &domain.Charge{
		ID:                MockChargePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		InternalReference: req.InternalReference,
		Method:            req.Method,
		Amount:            domain.RoundAmount(req.Amount),
		DueDate:           req.DueDate,
		Status:            status,
		InternalStatus:    domain.MapExternalStatus(status),
		InvoiceURL:        MockInvoiceURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	switch req.Method {
	case domain.BillingPix:
		charge.PixPayload = MockPixPayload
		charge.PixQRImage = MockPixQRImage
		exp := now.Add(DueGraceWindow)
		charge.PixExpiresAt = &exp
	case domain.BillingBoleto:
		charge.BoletoURL = MockBoletoURL
	}

	c.mockMu.Lock()
	c.mockCharges[charge.ID] = *charge
	c.mockMu.Unlock()

	log.Printf("MOCK: charge %s created method=%s amount=%.2f", charge.ID, charge.Method, charge.Amount)
	return charge, nil
}

func (c *Client) getMockCharge(chargeID string) (*domain.Charge, error) {
	c.mockMu.Lock()
	defer c.mockMu.Unlock()
	charge, ok := c.mockCharges[chargeID]
	if !ok {
		return nil, domain.NewNotFoundError("charge " + chargeID + " not found at gateway")
	}
	return &charge, nil
}

// SetMockStatus changes the raw status of a mock charge, standing in for the
// gateway settling it. It fails outside mock mode.
func (c *Client) SetMockStatus(chargeID, rawStatus string) error {
	if c.mode != ModeMock {
		return domain.NewValidationError("mock statuses can only be set in mock mode")
	}
	c.mockMu.Lock()
	defer c.mockMu.Unlock()
	charge, ok := c.mockCharges[chargeID]
	if !ok {
		return domain.NewNotFoundError("charge " + chargeID + " not found at gateway")
	}
	charge.Status = rawStatus
	charge.InternalStatus = domain.MapExternalStatus(rawStatus)
	charge.UpdatedAt = c.now()
	c.mockCharges[chargeID] = charge
	return nil
}
