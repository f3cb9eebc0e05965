package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

const subscriptionColumns = `id, user_id, plan_id, status, start_date, end_date, payment_method, auto_renew, created_at, updated_at`

// SubscriptionRepository implements ports.SubscriptionRepository. The partial
// unique index on ACTIVE rows backs the one-active-per-user rule.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

func (r *SubscriptionRepository) CreateSubscription(ctx context.Context, s *domain.Subscription) error {
	query := `INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.PlanID, string(s.Status), s.StartDate, s.EndDate,
		methodParam(s.PaymentMethod), s.AutoRenew, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("user " + s.UserID + " already has an active subscription")
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return r.queryOne(ctx, "subscription "+id, query, id)
}

func (r *SubscriptionRepository) FindActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND status = 'ACTIVE'`
	return r.queryOne(ctx, "active subscription for user "+userID, query, userID)
}

func (r *SubscriptionRepository) FindLatestPending(ctx context.Context, userID, planID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND plan_id = $2 AND status = 'PENDING'
		ORDER BY created_at DESC
		LIMIT 1`
	return r.queryOne(ctx, "pending subscription for user "+userID, query, userID, planID)
}

func (r *SubscriptionRepository) UpdateSubscription(ctx context.Context, s *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET status = $2,
			start_date = $3,
			end_date = $4,
			payment_method = $5,
			auto_renew = $6,
			updated_at = $7
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		s.ID, string(s.Status), s.StartDate, s.EndDate, methodParam(s.PaymentMethod), s.AutoRenew, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("user " + s.UserID + " already has an active subscription")
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("subscription " + s.ID + " not found")
	}
	return nil
}

func (r *SubscriptionRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'ACTIVE' AND end_date < $1
		ORDER BY end_date`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired subscriptions: %w", err)
	}
	return subs, nil
}

func (r *SubscriptionRepository) queryOne(ctx context.Context, what, query string, args ...interface{}) (*domain.Subscription, error) {
	s, err := scanSubscription(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(what + " not found")
		}
		return nil, err
	}
	return s, nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		s      domain.Subscription
		status string
		method *string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &status, &s.StartDate, &s.EndDate,
		&method, &s.AutoRenew, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	s.Status = domain.SubscriptionStatus(status)
	if method != nil {
		bt := domain.BillingType(*method)
		s.PaymentMethod = &bt
	}
	return &s, nil
}

func methodParam(m *domain.BillingType) *string {
	if m == nil {
		return nil
	}
	v := string(*m)
	return &v
}
