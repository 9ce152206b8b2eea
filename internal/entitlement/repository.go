package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository contains all DB interactions needed by the ledger. The mutation
// methods are conditional single statements; the decision logic that
// interprets their misses lives in the ledger, not here.
type Repository interface {
	InsertSubscription(ctx context.Context, patientID, serviceID uuid.UUID, startDate, expiryDate time.Time, contracted int) (*Subscription, error)
	GetSubscriptionByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListSubscriptionsByPatient(ctx context.Context, patientID uuid.UUID) ([]Subscription, error)

	// CancelSubscription transitions an active or exhausted subscription to
	// cancelled; a miss surfaces as ErrSubscriptionNotFound.
	CancelSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ExpireSubscriptionsBefore(ctx context.Context, asOf time.Time) (int64, error)

	// ConsumeSession is the guarded increment: it fires only while the
	// subscription is active, unexpired and below its contracted count, and
	// flips the status to exhausted when the last session goes. Reports
	// whether a row matched.
	ConsumeSession(ctx context.Context, id uuid.UUID, asOf time.Time) (bool, error)
	// ReturnSession decrements with floor zero and reopens exhausted.
	ReturnSession(ctx context.Context, subscriptionID uuid.UUID) error

	InsertReservation(ctx context.Context, subscriptionID uuid.UUID, appointmentID *uuid.UUID) (*Reservation, error)
	// MarkReservationReleased flags the reservation released and reports the
	// owning subscription; released=false when no unreleased row matched.
	MarkReservationReleased(ctx context.Context, id uuid.UUID) (subscriptionID uuid.UUID, released bool, err error)
	ReservationExists(ctx context.Context, id uuid.UUID) (bool, error)
	GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// repository serves standalone ledger calls and reserve/release riding in an
// appointment transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db querier
}

func NewPgRepository(db querier) *PgRepository {
	return &PgRepository{db: db}
}

const subscriptionColumns = `id, patient_id, service_id, start_date, expiry_date,
	contracted_sessions, consumed_sessions, status, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID,
		&s.PatientID,
		&s.ServiceID,
		&s.StartDate,
		&s.ExpiryDate,
		&s.ContractedSessions,
		&s.ConsumedSessions,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) InsertSubscription(ctx context.Context, patientID, serviceID uuid.UUID, startDate, expiryDate time.Time, contracted int) (*Subscription, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO subscriptions (id, patient_id, service_id, start_date, expiry_date, contracted_sessions, consumed_sessions, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 'active', now(), now())
		RETURNING `+subscriptionColumns+`
	`, uuid.New(), patientID, serviceID, startDate, expiryDate, contracted)
	return scanSubscription(row)
}

func (r *PgRepository) GetSubscriptionByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = $1
	`, id)
	return scanSubscription(row)
}

func (r *PgRepository) ListSubscriptionsByPatient(ctx context.Context, patientID uuid.UUID) ([]Subscription, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) CancelSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('active', 'exhausted')
		RETURNING `+subscriptionColumns+`
	`, id)
	return scanSubscription(row)
}

func (r *PgRepository) ExpireSubscriptionsBefore(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'expired',
		    updated_at = now()
		WHERE status IN ('active', 'exhausted')
		  AND expiry_date < $1::date
	`, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ConsumeSession(ctx context.Context, id uuid.UUID, asOf time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET consumed_sessions = consumed_sessions + 1,
		    status = CASE
		        WHEN consumed_sessions + 1 >= contracted_sessions THEN 'exhausted'
		        ELSE status
		    END,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'active'
		  AND consumed_sessions < contracted_sessions
		  AND expiry_date >= $2::date
	`, id, asOf)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) ReturnSession(ctx context.Context, subscriptionID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET consumed_sessions = GREATEST(consumed_sessions - 1, 0),
		    status = CASE WHEN status = 'exhausted' THEN 'active' ELSE status END,
		    updated_at = now()
		WHERE id = $1
	`, subscriptionID)
	return err
}

func (r *PgRepository) InsertReservation(ctx context.Context, subscriptionID uuid.UUID, appointmentID *uuid.UUID) (*Reservation, error) {
	var res Reservation
	err := r.db.QueryRow(ctx, `
		INSERT INTO reservations (id, subscription_id, appointment_id, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, subscription_id, appointment_id, created_at, released_at
	`, uuid.New(), subscriptionID, appointmentID).Scan(
		&res.ID, &res.SubscriptionID, &res.AppointmentID, &res.CreatedAt, &res.ReleasedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *PgRepository) MarkReservationReleased(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	var subscriptionID uuid.UUID
	err := r.db.QueryRow(ctx, `
		UPDATE reservations
		SET released_at = now()
		WHERE id = $1
		  AND released_at IS NULL
		RETURNING subscription_id
	`, id).Scan(&subscriptionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return subscriptionID, true, nil
}

func (r *PgRepository) ReservationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)
	`, id).Scan(&exists)
	return exists, err
}

func (r *PgRepository) GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	var res Reservation
	err := r.db.QueryRow(ctx, `
		SELECT id, subscription_id, appointment_id, created_at, released_at
		FROM reservations
		WHERE id = $1
	`, id).Scan(&res.ID, &res.SubscriptionID, &res.AppointmentID, &res.CreatedAt, &res.ReleasedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}
