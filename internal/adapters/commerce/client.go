// Package commerce provides the HTTP client for the marketplace backend that
// owns plans, orders, sellers and notification delivery.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

// Client implements PlanCatalog, OrderService, SellerPlanWriter,
// UserDirectory and Notifier against the marketplace backend.
type Client struct {
	http    *resty.Client
	apiKey  string
	timeout time.Duration

	inflight sync.WaitGroup
}

// NewClient creates a new marketplace backend client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Internal-API-Key", apiKey),
		apiKey:  apiKey,
		timeout: timeout,
	}
}

type planResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	Price         float64 `json:"price"`
	BillingPeriod string  `json:"billingPeriod"`
}

// GetPlan reads a plan from the catalog.
// GET /api/internal/plans/:id
func (c *Client) GetPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	var p planResponse
	if err := c.get(ctx, "/api/internal/plans/"+url.PathEscape(planID), "plan "+planID, &p); err != nil {
		return nil, err
	}
	return &domain.Plan{
		ID:            p.ID,
		Name:          p.Name,
		Slug:          strings.ToLower(p.Slug),
		Price:         p.Price,
		BillingPeriod: domain.BillingPeriod(strings.ToLower(p.BillingPeriod)),
	}, nil
}

// GetOrder reads an order.
// GET /api/internal/orders/:id
func (c *Client) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var o domain.Order
	if err := c.get(ctx, "/api/internal/orders/"+url.PathEscape(orderID), "order "+orderID, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetCustomerProfile reads the billing profile of a user.
// GET /api/internal/users/:id/billing-profile
func (c *Client) GetCustomerProfile(ctx context.Context, userID string) (*domain.CustomerProfile, error) {
	var p domain.CustomerProfile
	path := fmt.Sprintf("/api/internal/users/%s/billing-profile", url.PathEscape(userID))
	if err := c.get(ctx, path, "user "+userID, &p); err != nil {
		return nil, err
	}
	if p.UserID == "" {
		p.UserID = userID
	}
	return &p, nil
}

// MarkOrderPaid confirms an order payment.
// POST /api/internal/orders/:id/paid
func (c *Client) MarkOrderPaid(ctx context.Context, orderID, chargeID string) error {
	path := fmt.Sprintf("/api/internal/orders/%s/paid", url.PathEscape(orderID))
	return c.send(ctx, http.MethodPost, path, map[string]string{"charge_id": chargeID})
}

// SetSellerPlan writes the effective plan tier of a seller.
// PUT /api/internal/sellers/:userId/plan
func (c *Client) SetSellerPlan(ctx context.Context, userID, planSlug string) error {
	path := fmt.Sprintf("/api/internal/sellers/%s/plan", url.PathEscape(userID))
	return c.send(ctx, http.MethodPut, path, map[string]string{"plan": planSlug})
}

// Emit delivers an event in the background. Delivery failures are logged and
// never reach the caller.
// POST /api/internal/notifications
func (c *Client) Emit(ctx context.Context, event domain.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		if err := c.send(sendCtx, http.MethodPost, "/api/internal/notifications", event); err != nil {
			log.Printf("Notification %s for user %s not delivered: %v", event.Type, event.UserID, err)
		}
	}()
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (c *Client) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) get(ctx context.Context, path, what string, out interface{}) error {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return fmt.Errorf("commerce request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return domain.NewNotFoundError(what + " not found")
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("commerce returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Webhook-Secret", c.apiKey).
		SetBody(body).
		Execute(method, path)
	if err != nil {
		return fmt.Errorf("commerce request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return domain.NewNotFoundError(path + " not found")
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("commerce returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}
