// Package memory provides in-process implementations of the storage ports.
// They back development runs without DATABASE_URL or REDIS_ADDR and the
// service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

// ChargeStore implements ports.ChargeRepository.
type ChargeStore struct {
	mu      sync.RWMutex
	charges map[string]domain.Charge
}

func NewChargeStore() *ChargeStore {
	return &ChargeStore{charges: make(map[string]domain.Charge)}
}

func (s *ChargeStore) SaveCharge(_ context.Context, c *domain.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.charges[c.ID]; !ok {
		s.charges[c.ID] = *c
	}
	return nil
}

func (s *ChargeStore) GetCharge(_ context.Context, id string) (*domain.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.charges[id]
	if !ok {
		return nil, domain.NewNotFoundError("charge " + id + " not found")
	}
	return &c, nil
}

func (s *ChargeStore) UpdateChargeStatus(_ context.Context, id string, from, to domain.PaymentStatus, raw string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[id]
	if !ok || c.InternalStatus != from {
		return false, nil
	}
	c.InternalStatus = to
	c.Status = raw
	c.UpdatedAt = time.Now()
	s.charges[id] = c
	return true, nil
}

func (s *ChargeStore) BindSubscription(_ context.Context, id, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[id]
	if !ok {
		return domain.NewNotFoundError("charge " + id + " not found")
	}
	if c.SubscriptionID == "" {
		c.SubscriptionID = subscriptionID
		s.charges[id] = c
	}
	return nil
}

// SubscriptionStore implements ports.SubscriptionRepository and rejects a
// second ACTIVE row per user the way the database index does.
type SubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]domain.Subscription
}

func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: make(map[string]domain.Subscription)}
}

func (s *SubscriptionStore) CreateSubscription(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.Status == domain.SubscriptionActive && s.activeIDLocked(sub.UserID) != "" {
		return domain.NewConflictError("user " + sub.UserID + " already has an active subscription")
	}
	s.subs[sub.ID] = *sub
	return nil
}

func (s *SubscriptionStore) GetSubscription(_ context.Context, id string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, domain.NewNotFoundError("subscription " + id + " not found")
	}
	return &sub, nil
}

func (s *SubscriptionStore) FindActiveByUser(_ context.Context, userID string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := s.activeIDLocked(userID)
	if id == "" {
		return nil, domain.NewNotFoundError("active subscription for user " + userID + " not found")
	}
	sub := s.subs[id]
	return &sub, nil
}

func (s *SubscriptionStore) FindLatestPending(_ context.Context, userID, planID string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Subscription
	for _, sub := range s.subs {
		if sub.UserID != userID || sub.PlanID != planID || sub.Status != domain.SubscriptionPending {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			sub := sub
			latest = &sub
		}
	}
	if latest == nil {
		return nil, domain.NewNotFoundError("pending subscription for user " + userID + " not found")
	}
	return latest, nil
}

func (s *SubscriptionStore) UpdateSubscription(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return domain.NewNotFoundError("subscription " + sub.ID + " not found")
	}
	if sub.Status == domain.SubscriptionActive {
		if id := s.activeIDLocked(sub.UserID); id != "" && id != sub.ID {
			return domain.NewConflictError("user " + sub.UserID + " already has an active subscription")
		}
	}
	s.subs[sub.ID] = *sub
	return nil
}

func (s *SubscriptionStore) ListExpired(_ context.Context, now time.Time) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Subscription
	for _, sub := range s.subs {
		if sub.Status == domain.SubscriptionActive && sub.EndDate.Before(now) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

// All returns every row of a user, oldest first.
func (s *SubscriptionStore) All(userID string) []domain.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *SubscriptionStore) activeIDLocked(userID string) string {
	for id, sub := range s.subs {
		if sub.UserID == userID && sub.Status == domain.SubscriptionActive {
			return id
		}
	}
	return ""
}

// IdempotencyStore implements ports.IdempotencyStore with expiring keys.
type IdempotencyStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{ttl: ttl, keys: make(map[string]time.Time), now: time.Now}
}

func (s *IdempotencyStore) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.keys[key]
	if !ok {
		return false, nil
	}
	if s.now().After(exp) {
		delete(s.keys, key)
		return false, nil
	}
	return true, nil
}

func (s *IdempotencyStore) Remember(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; !ok {
		s.keys[key] = s.now().Add(s.ttl)
	}
	return nil
}

// Recorder is a Notifier that keeps emitted events.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Emit(_ context.Context, e domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
