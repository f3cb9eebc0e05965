package domain

import (
	"fmt"
	"time"
)

// SubscriptionStatus is the lifecycle state of a seller subscription.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
)

// LifetimeEnd is the far-future end date of lifetime plans. A finite date
// keeps end-date comparisons total.
var LifetimeEnd = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Subscription is a seller's entitlement to a plan. Rows are never deleted.
type Subscription struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	PlanID        string             `json:"plan_id"`
	Status        SubscriptionStatus `json:"status"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       time.Time          `json:"end_date"`
	PaymentMethod *BillingType       `json:"payment_method,omitempty"`
	AutoRenew     bool               `json:"auto_renew"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// SubscriptionRef identifies the subscription a plan charge pays for. Charges
// created by checkout or renewal carry SubscriptionID; charges adopted from
// the gateway only know the user and plan.
type SubscriptionRef struct {
	UserID         string
	PlanID         string
	SubscriptionID string
}

// PeriodEnd computes the end of a billing period starting at start.
func PeriodEnd(start time.Time, period BillingPeriod) (time.Time, error) {
	switch period {
	case PeriodMonthly:
		return start.AddDate(0, 1, 0), nil
	case PeriodYearly:
		return start.AddDate(1, 0, 0), nil
	case PeriodLifetime:
		return LifetimeEnd, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported billing period %q", period)
	}
}

// Activate moves a PENDING subscription to ACTIVE and restarts its period at now.
func (s *Subscription) Activate(now time.Time, period BillingPeriod) error {
	if s.Status != SubscriptionPending {
		return fmt.Errorf("cannot activate subscription in status %s", s.Status)
	}
	end, err := PeriodEnd(now, period)
	if err != nil {
		return err
	}
	s.Status = SubscriptionActive
	s.StartDate = now
	s.EndDate = end
	s.UpdatedAt = now
	return nil
}

// Cancel moves an ACTIVE subscription to CANCELLED.
func (s *Subscription) Cancel(now time.Time) error {
	if s.Status != SubscriptionActive {
		return fmt.Errorf("cannot cancel subscription in status %s", s.Status)
	}
	s.Status = SubscriptionCancelled
	s.UpdatedAt = now
	return nil
}

// Expire moves an ACTIVE subscription past its end date to EXPIRED.
func (s *Subscription) Expire(now time.Time) error {
	if s.Status != SubscriptionActive {
		return fmt.Errorf("cannot expire subscription in status %s", s.Status)
	}
	if !s.EndDate.Before(now) {
		return fmt.Errorf("subscription %s has not reached its end date", s.ID)
	}
	s.Status = SubscriptionExpired
	s.UpdatedAt = now
	return nil
}
