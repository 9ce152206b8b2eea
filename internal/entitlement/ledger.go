package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrSubscriptionExpired   = errors.New("subscription has expired")
	ErrSubscriptionExhausted = errors.New("subscription has no sessions left")
	ErrSubscriptionInactive  = errors.New("subscription is not active")
	ErrReservationNotFound   = errors.New("reservation not found")
)

// Ledger owns the session counters of subscriptions. Reserve and Release are
// guarded single-statement updates, so concurrent callers cannot push consumed
// past contracted or below zero; a loser simply gets the typed error.
type Ledger struct {
	pool *pgxpool.Pool
	repo Repository
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool, repo: NewPgRepository(pool)}
}

func (l *Ledger) CreateSubscription(ctx context.Context, patientID, serviceID uuid.UUID, startDate, expiryDate time.Time, contracted int) (*Subscription, error) {
	return l.repo.InsertSubscription(ctx, patientID, serviceID, startDate, expiryDate, contracted)
}

func (l *Ledger) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return l.repo.GetSubscriptionByID(ctx, id)
}

func (l *Ledger) ListSubscriptionsByPatient(ctx context.Context, patientID uuid.UUID) ([]Subscription, error) {
	return l.repo.ListSubscriptionsByPatient(ctx, patientID)
}

// CancelSubscription moves an active or exhausted subscription to cancelled.
func (l *Ledger) CancelSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := l.repo.CancelSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			// Distinguish a missing row from one in the wrong state.
			if _, getErr := l.repo.GetSubscriptionByID(ctx, id); getErr == nil {
				return nil, ErrSubscriptionInactive
			}
		}
		return nil, err
	}
	return sub, nil
}

// Reserve consumes one session outside of any appointment transaction, for
// manual billing adjustments.
func (l *Ledger) Reserve(ctx context.Context, subscriptionID uuid.UUID, asOf time.Time) (*Reservation, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := reserve(ctx, NewPgRepository(tx), subscriptionID, nil, asOf)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

// Release returns the session held by a reservation. Releasing the same
// reservation twice is a no-op.
func (l *Ledger) Release(ctx context.Context, reservationID uuid.UUID) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := release(ctx, NewPgRepository(tx), reservationID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetReservation loads a reservation by id.
func (l *Ledger) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return l.repo.GetReservationByID(ctx, id)
}

// ExpireSubscriptions marks every subscription whose expiry date lies before
// asOf as expired, regardless of remaining sessions. Returns the number of
// rows changed. Called periodically by the status worker.
func (l *Ledger) ExpireSubscriptions(ctx context.Context, asOf time.Time) (int64, error) {
	n, err := l.repo.ExpireSubscriptionsBefore(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	return n, nil
}
