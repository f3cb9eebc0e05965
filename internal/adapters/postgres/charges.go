package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

// ChargeRepository implements ports.ChargeRepository.
type ChargeRepository struct {
	pool *pgxpool.Pool
}

func NewChargeRepository(pool *pgxpool.Pool) *ChargeRepository {
	return &ChargeRepository{pool: pool}
}

// SaveCharge inserts a charge; an existing id is left untouched.
func (r *ChargeRepository) SaveCharge(ctx context.Context, c *domain.Charge) error {
	query := `
		INSERT INTO charges (id, internal_reference, subscription_id, method, amount, due_date, status,
			internal_status, pix_payload, pix_qr_image, pix_expires_at, invoice_url, boleto_url,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		c.ID, c.InternalReference, c.SubscriptionID, string(c.Method), domain.RoundAmount(c.Amount), c.DueDate,
		c.Status, string(c.InternalStatus), c.PixPayload, c.PixQRImage, c.PixExpiresAt,
		c.InvoiceURL, c.BoletoURL, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save charge %s: %w", c.ID, err)
	}
	return nil
}

func (r *ChargeRepository) GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error) {
	query := `
		SELECT id, internal_reference, subscription_id, method, amount::float8, due_date, status, internal_status,
			pix_payload, pix_qr_image, pix_expires_at, invoice_url, boleto_url, created_at, updated_at
		FROM charges
		WHERE id = $1
	`
	var (
		c              domain.Charge
		method, status string
	)
	err := r.pool.QueryRow(ctx, query, chargeID).Scan(
		&c.ID, &c.InternalReference, &c.SubscriptionID, &method, &c.Amount, &c.DueDate, &c.Status, &status,
		&c.PixPayload, &c.PixQRImage, &c.PixExpiresAt, &c.InvoiceURL, &c.BoletoURL,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("charge " + chargeID + " not found")
		}
		return nil, fmt.Errorf("failed to get charge: %w", err)
	}
	c.Method = domain.BillingType(method)
	c.InternalStatus = domain.PaymentStatus(status)
	return &c, nil
}

// UpdateChargeStatus is a compare-and-swap on the internal status.
func (r *ChargeRepository) UpdateChargeStatus(ctx context.Context, chargeID string, from, to domain.PaymentStatus, rawStatus string) (bool, error) {
	query := `
		UPDATE charges
		SET internal_status = $3,
			status = $4,
			updated_at = NOW()
		WHERE id = $1 AND internal_status = $2
	`
	tag, err := r.pool.Exec(ctx, query, chargeID, string(from), string(to), rawStatus)
	if err != nil {
		return false, fmt.Errorf("failed to update charge status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// BindSubscription sets subscription_id only while it is still empty.
func (r *ChargeRepository) BindSubscription(ctx context.Context, chargeID, subscriptionID string) error {
	query := `
		UPDATE charges
		SET subscription_id = $2,
			updated_at = NOW()
		WHERE id = $1 AND subscription_id = ''
	`
	if _, err := r.pool.Exec(ctx, query, chargeID, subscriptionID); err != nil {
		return fmt.Errorf("failed to bind charge %s: %w", chargeID, err)
	}
	return nil
}
