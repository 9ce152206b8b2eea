package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const paymentColumns = `id, patient_id, subscription_id, appointment_id, amount_cents, method, status,
	installment_count, due_date, gateway_ref, gateway_status, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.PatientID,
		&p.SubscriptionID,
		&p.AppointmentID,
		&p.AmountCents,
		&p.Method,
		&p.Status,
		&p.InstallmentCount,
		&p.DueDate,
		&p.GatewayRef,
		&p.GatewayStatus,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

const installmentColumns = `id, payment_id, sequence, amount_cents, due_date, paid_at, status, created_at, updated_at`

func scanInstallment(row pgx.Row) (*Installment, error) {
	var i Installment
	err := row.Scan(
		&i.ID,
		&i.PaymentID,
		&i.Sequence,
		&i.AmountCents,
		&i.DueDate,
		&i.PaidAt,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInstallmentNotFound
		}
		return nil, err
	}
	return &i, nil
}

func (r *PgRepository) CreatePayment(ctx context.Context, p CreatePaymentParams, plan []PlannedInstallment) (*Payment, []Installment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.New()
	row := tx.QueryRow(ctx, `
		INSERT INTO payments (id, patient_id, subscription_id, appointment_id, amount_cents, method, status,
			installment_count, due_date, gateway_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, $9, now(), now())
		RETURNING `+paymentColumns+`
	`, id, p.PatientID, p.SubscriptionID, p.AppointmentID, p.AmountCents, p.Method,
		len(plan), p.DueDate, p.GatewayRef)

	payment, err := scanPayment(row)
	if err != nil {
		return nil, nil, fmt.Errorf("insert payment: %w", translateUnique(err))
	}

	installments := make([]Installment, 0, len(plan))
	for _, pl := range plan {
		row := tx.QueryRow(ctx, `
			INSERT INTO installments (id, payment_id, sequence, amount_cents, due_date, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'pending', now(), now())
			RETURNING `+installmentColumns+`
		`, uuid.New(), id, pl.Sequence, pl.AmountCents, pl.DueDate)

		inst, err := scanInstallment(row)
		if err != nil {
			return nil, nil, fmt.Errorf("insert installment %d: %w", pl.Sequence, translateUnique(err))
		}
		installments = append(installments, *inst)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	return payment, installments, nil
}

func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrDuplicatePayment
	}
	return err
}

func (r *PgRepository) GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id)
	return scanPayment(row)
}

func (r *PgRepository) GetInstallmentByID(ctx context.Context, id uuid.UUID) (*Installment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+installmentColumns+`
		FROM installments
		WHERE id = $1
	`, id)
	return scanInstallment(row)
}

func (r *PgRepository) ListInstallments(ctx context.Context, paymentID uuid.UUID) ([]Installment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+installmentColumns+`
		FROM installments
		WHERE payment_id = $1
		ORDER BY sequence
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Installment
	for rows.Next() {
		i, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *i)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListPaymentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus, gatewayStatus *string) (*Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE payments
		SET status = $2,
		    gateway_status = COALESCE($4, gateway_status),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+paymentColumns+`
	`, id, to, from, gatewayStatus)

	payment, err := scanPayment(row)
	if err != nil {
		return nil, err
	}

	// Cancelling a payment cancels every installment that has not reached a
	// terminal state. Paid installments keep their record.
	if to == PaymentCancelled {
		_, err = tx.Exec(ctx, `
			UPDATE installments
			SET status = 'cancelled',
			    updated_at = now()
			WHERE payment_id = $1
			  AND status IN ('pending', 'overdue')
		`, id)
		if err != nil {
			return nil, fmt.Errorf("cascade installment cancel: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return payment, nil
}

func (r *PgRepository) MarkInstallmentPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*Installment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE installments
		SET status = 'paid',
		    paid_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'overdue')
		RETURNING `+installmentColumns+`
	`, id, paidAt)
	return scanInstallment(row)
}

func (r *PgRepository) MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE installments
		SET status = 'overdue',
		    updated_at = now()
		WHERE status = 'pending'
		  AND due_date < $1::date
	`, asOf)
	if err != nil {
		return 0, fmt.Errorf("mark overdue installments: %w", err)
	}
	return tag.RowsAffected(), nil
}
