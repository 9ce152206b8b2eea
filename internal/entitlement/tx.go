package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ReserveTx consumes one session inside the caller's transaction, so an
// appointment insert and its reservation commit or roll back together.
func ReserveTx(ctx context.Context, tx pgx.Tx, subscriptionID uuid.UUID, appointmentID *uuid.UUID, asOf time.Time) (*Reservation, error) {
	return reserve(ctx, NewPgRepository(tx), subscriptionID, appointmentID, asOf)
}

// ReleaseTx returns the session held by a reservation inside the caller's
// transaction.
func ReleaseTx(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID) error {
	return release(ctx, NewPgRepository(tx), reservationID)
}

// reserve runs the guarded consume. When the conditional update matches no
// row the subscription is loaded once more to classify the failure.
func reserve(ctx context.Context, repo Repository, subscriptionID uuid.UUID, appointmentID *uuid.UUID, asOf time.Time) (*Reservation, error) {
	ok, err := repo.ConsumeSession(ctx, subscriptionID, asOf)
	if err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}
	if !ok {
		sub, err := repo.GetSubscriptionByID(ctx, subscriptionID)
		if err != nil {
			return nil, err
		}
		return nil, classifyReserveFailure(sub, asOf)
	}

	res, err := repo.InsertReservation(ctx, subscriptionID, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	return res, nil
}

// classifyReserveFailure orders the checks: an expired subscription reports
// expired even when it is also out of sessions.
func classifyReserveFailure(sub *Subscription, asOf time.Time) error {
	switch {
	case sub.Status == SubscriptionExpired || asOf.Truncate(24*time.Hour).After(sub.ExpiryDate):
		return ErrSubscriptionExpired
	case sub.ConsumedSessions >= sub.ContractedSessions:
		return ErrSubscriptionExhausted
	default:
		return ErrSubscriptionInactive
	}
}

// release flags the reservation first; a reservation that already carries a
// released_at is a no-op, which keeps releases idempotent even when a cancel
// is retried.
func release(ctx context.Context, repo Repository, reservationID uuid.UUID) error {
	subscriptionID, released, err := repo.MarkReservationReleased(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("mark reservation released: %w", err)
	}
	if !released {
		exists, err := repo.ReservationExists(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("check reservation: %w", err)
		}
		if exists {
			return nil
		}
		return ErrReservationNotFound
	}

	if err := repo.ReturnSession(ctx, subscriptionID); err != nil {
		return fmt.Errorf("return session: %w", err)
	}
	return nil
}
