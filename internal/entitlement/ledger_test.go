package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// memStore mirrors the guarded-update contract of the SQL repository against
// a single in-memory subscription.
type memStore struct {
	sub          *Subscription
	reservations map[uuid.UUID]*Reservation
	returns      int
}

func newMemStore(sub *Subscription) *memStore {
	return &memStore{
		sub:          sub,
		reservations: make(map[uuid.UUID]*Reservation),
	}
}

func (m *memStore) InsertSubscription(ctx context.Context, patientID, serviceID uuid.UUID, startDate, expiryDate time.Time, contracted int) (*Subscription, error) {
	return m.sub, nil
}

func (m *memStore) GetSubscriptionByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	if m.sub == nil || m.sub.ID != id {
		return nil, ErrSubscriptionNotFound
	}
	return m.sub, nil
}

func (m *memStore) ListSubscriptionsByPatient(ctx context.Context, patientID uuid.UUID) ([]Subscription, error) {
	return nil, nil
}

func (m *memStore) CancelSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	if m.sub == nil || m.sub.ID != id ||
		(m.sub.Status != SubscriptionActive && m.sub.Status != SubscriptionExhausted) {
		return nil, ErrSubscriptionNotFound
	}
	m.sub.Status = SubscriptionCancelled
	return m.sub, nil
}

func (m *memStore) ExpireSubscriptionsBefore(ctx context.Context, asOf time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) ConsumeSession(ctx context.Context, id uuid.UUID, asOf time.Time) (bool, error) {
	s := m.sub
	if s == nil || s.ID != id {
		return false, nil
	}
	if s.Status != SubscriptionActive ||
		s.ConsumedSessions >= s.ContractedSessions ||
		s.ExpiryDate.Before(asOf.Truncate(24*time.Hour)) {
		return false, nil
	}
	s.ConsumedSessions++
	if s.ConsumedSessions >= s.ContractedSessions {
		s.Status = SubscriptionExhausted
	}
	return true, nil
}

func (m *memStore) ReturnSession(ctx context.Context, subscriptionID uuid.UUID) error {
	m.returns++
	if m.sub != nil && m.sub.ID == subscriptionID {
		if m.sub.ConsumedSessions > 0 {
			m.sub.ConsumedSessions--
		}
		if m.sub.Status == SubscriptionExhausted {
			m.sub.Status = SubscriptionActive
		}
	}
	return nil
}

func (m *memStore) InsertReservation(ctx context.Context, subscriptionID uuid.UUID, appointmentID *uuid.UUID) (*Reservation, error) {
	res := &Reservation{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		AppointmentID:  appointmentID,
		CreatedAt:      time.Now(),
	}
	m.reservations[res.ID] = res
	return res, nil
}

func (m *memStore) MarkReservationReleased(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	res, ok := m.reservations[id]
	if !ok || res.ReleasedAt != nil {
		return uuid.Nil, false, nil
	}
	now := time.Now()
	res.ReleasedAt = &now
	return res.SubscriptionID, true, nil
}

func (m *memStore) ReservationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.reservations[id]
	return ok, nil
}

func (m *memStore) GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	res, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return res, nil
}

func activeSubscription(contracted int) *Subscription {
	return &Subscription{
		ID:                 uuid.New(),
		PatientID:          uuid.New(),
		ServiceID:          uuid.New(),
		StartDate:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:         time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		ContractedSessions: contracted,
		Status:             SubscriptionActive,
	}
}

func TestReserveEntitlementBound(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	store := newMemStore(activeSubscription(10))
	subID := store.sub.ID

	var last *Reservation
	for i := 0; i < 10; i++ {
		res, err := reserve(ctx, store, subID, nil, asOf)
		if err != nil {
			t.Fatalf("reserve %d: %v", i+1, err)
		}
		last = res
	}

	if store.sub.ConsumedSessions != 10 {
		t.Fatalf("consumed = %d, want 10", store.sub.ConsumedSessions)
	}
	if store.sub.Status != SubscriptionExhausted {
		t.Fatalf("status = %s, want exhausted after the last session", store.sub.Status)
	}

	if _, err := reserve(ctx, store, subID, nil, asOf); !errors.Is(err, ErrSubscriptionExhausted) {
		t.Fatalf("11th reserve: expected ErrSubscriptionExhausted, got %v", err)
	}

	// Releasing one reservation reopens exactly one session.
	if err := release(ctx, store, last.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.sub.ConsumedSessions != 9 {
		t.Fatalf("consumed after release = %d, want 9", store.sub.ConsumedSessions)
	}
	if store.sub.Status != SubscriptionActive {
		t.Fatalf("status after release = %s, want active", store.sub.Status)
	}

	if _, err := reserve(ctx, store, subID, nil, asOf); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	if store.sub.ConsumedSessions != 10 {
		t.Fatalf("consumed = %d, want 10 again", store.sub.ConsumedSessions)
	}
}

func TestReserveFailureClassification(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		sub  func() *Subscription
		want error
	}{
		{
			name: "expired status",
			sub: func() *Subscription {
				s := activeSubscription(10)
				s.Status = SubscriptionExpired
				return s
			},
			want: ErrSubscriptionExpired,
		},
		{
			name: "past expiry date still marked active",
			sub: func() *Subscription {
				s := activeSubscription(10)
				s.ExpiryDate = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
				return s
			},
			want: ErrSubscriptionExpired,
		},
		{
			name: "exhausted",
			sub: func() *Subscription {
				s := activeSubscription(10)
				s.ConsumedSessions = 10
				s.Status = SubscriptionExhausted
				return s
			},
			want: ErrSubscriptionExhausted,
		},
		{
			name: "cancelled",
			sub: func() *Subscription {
				s := activeSubscription(10)
				s.Status = SubscriptionCancelled
				return s
			},
			want: ErrSubscriptionInactive,
		},
		{
			name: "expired wins over exhausted",
			sub: func() *Subscription {
				s := activeSubscription(10)
				s.ConsumedSessions = 10
				s.Status = SubscriptionExhausted
				s.ExpiryDate = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
				return s
			},
			want: ErrSubscriptionExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(tt.sub())

			_, err := reserve(context.Background(), store, store.sub.ID, nil, asOf)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if store.returns != 0 || len(store.reservations) != 0 {
				t.Error("a failed reserve must not touch counters or reservations")
			}
		})
	}
}

func TestReserveUnknownSubscription(t *testing.T) {
	store := newMemStore(nil)

	_, err := reserve(context.Background(), store, uuid.New(), nil, time.Now())
	if !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	store := newMemStore(activeSubscription(10))
	res, err := reserve(ctx, store, store.sub.ID, nil, asOf)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := release(ctx, store, res.ID); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := release(ctx, store, res.ID); err != nil {
		t.Fatalf("second release must be a no-op, got %v", err)
	}

	if store.returns != 1 {
		t.Fatalf("session returned %d times, want exactly once", store.returns)
	}
	if store.sub.ConsumedSessions != 0 {
		t.Fatalf("consumed = %d, want 0", store.sub.ConsumedSessions)
	}
}

func TestReleaseUnknownReservation(t *testing.T) {
	store := newMemStore(activeSubscription(10))

	err := release(context.Background(), store, uuid.New())
	if !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
}

func TestCancelSubscription(t *testing.T) {
	store := newMemStore(activeSubscription(10))
	ledger := &Ledger{repo: store}

	sub, err := ledger.CancelSubscription(context.Background(), store.sub.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != SubscriptionCancelled {
		t.Errorf("status = %s, want cancelled", sub.Status)
	}
}

func TestCancelSubscriptionWrongState(t *testing.T) {
	store := newMemStore(activeSubscription(10))
	store.sub.Status = SubscriptionExpired
	ledger := &Ledger{repo: store}

	_, err := ledger.CancelSubscription(context.Background(), store.sub.ID)
	if !errors.Is(err, ErrSubscriptionInactive) {
		t.Fatalf("expected ErrSubscriptionInactive, got %v", err)
	}
}

func TestCancelSubscriptionNotFound(t *testing.T) {
	store := newMemStore(nil)
	ledger := &Ledger{repo: store}

	_, err := ledger.CancelSubscription(context.Background(), uuid.New())
	if !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}
