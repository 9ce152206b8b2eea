package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carespring/clinic-scheduling/internal/entitlement"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProfessional(row pgx.Row) (*Professional, error) {
	var p Professional
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessionalNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanCareService(row pgx.Row) (*CareService, error) {
	var s CareService
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Category,
		&s.DurationMinutes,
		&s.PriceCents,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var weekday int
	err := row.Scan(
		&w.ID,
		&w.ProfessionalID,
		&weekday,
		&w.StartMinute,
		&w.EndMinute,
		&w.Active,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}
	w.Weekday = time.Weekday(weekday)
	return &w, nil
}

const appointmentColumns = `id, patient_id, professional_id, service_id, subscription_id, reservation_id,
	start_time, end_time, duration_minutes, status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProfessionalID,
		&a.ServiceID,
		&a.SubscriptionID,
		&a.ReservationID,
		&a.StartTime,
		&a.EndTime,
		&a.DurationMinutes,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, active, created_at, updated_at
		FROM patients
		WHERE id = $1 AND active
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, active, created_at, updated_at
		FROM professionals
		WHERE id = $1 AND active
	`, id)
	return scanProfessional(row)
}

func (r *PgRepository) GetCareServiceByID(ctx context.Context, id uuid.UUID) (*CareService, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, category, duration_minutes, price_cents, active, created_at, updated_at
		FROM care_services
		WHERE id = $1 AND active
	`, id)
	return scanCareService(row)
}

func (r *PgRepository) ListWindows(ctx context.Context, professionalID uuid.UUID) ([]AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, weekday, start_minute, end_minute, active, created_at, updated_at
		FROM availability_windows
		WHERE professional_id = $1 AND active
		ORDER BY weekday, start_minute
	`, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_windows (id, professional_id, weekday, start_minute, end_minute, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, now(), now())
		RETURNING id, professional_id, weekday, start_minute, end_minute, active, created_at, updated_at
	`, uuid.New(), w.ProfessionalID, int(w.Weekday), w.StartMinute, w.EndMinute)
	return scanWindow(row)
}

func (r *PgRepository) DeactivateWindow(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_windows
		SET active = false,
		    updated_at = now()
		WHERE id = $1 AND active
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (r *PgRepository) HasOverlap(ctx context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	var overlap bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE professional_id = $1
			  AND status <> 'cancelled'
			  AND start_time < $3
			  AND $2 < end_time
			  AND ($4::uuid IS NULL OR id <> $4)
		)
	`, professionalID, start, end, excludeID).Scan(&overlap)
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return overlap, nil
}

// CreateScheduled inserts the appointment and, when a subscription is
// referenced, consumes one of its sessions in the same transaction. A failed
// reserve rolls the whole booking back.
func (r *PgRepository) CreateScheduled(ctx context.Context, p CreateAppointmentParams, end, asOf time.Time) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.New()

	var reservationID *uuid.UUID
	if p.SubscriptionID != nil {
		res, err := entitlement.ReserveTx(ctx, tx, *p.SubscriptionID, &id, asOf)
		if err != nil {
			return nil, err
		}
		reservationID = &res.ID
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, professional_id, service_id, subscription_id, reservation_id,
			start_time, end_time, duration_minutes, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'scheduled', $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, p.PatientID, p.ProfessionalID, p.ServiceID, p.SubscriptionID, reservationID,
		p.Start, end, p.DurationMinutes, p.Notes)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, start, end time.Time, durationMinutes int, notes string, unlink bool) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var reservationID *uuid.UUID
	if unlink {
		err = tx.QueryRow(ctx, `
			SELECT reservation_id FROM appointments WHERE id = $1
		`, id).Scan(&reservationID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load reservation: %w", err)
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
		    end_time = $3,
		    duration_minutes = $4,
		    notes = $5,
		    subscription_id = CASE WHEN $6 THEN NULL ELSE subscription_id END,
		    reservation_id = CASE WHEN $6 THEN NULL ELSE reservation_id END,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'scheduled'
		RETURNING `+appointmentColumns+`
	`, id, start, end, durationMinutes, notes, unlink)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.classifyTransitionFailure(ctx, id)
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	if unlink && reservationID != nil {
		if err := entitlement.ReleaseTx(ctx, tx, *reservationID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return appt, nil
}

// CancelScheduled moves a scheduled appointment to cancelled and releases its
// reservation, both in one transaction.
func (r *PgRepository) CancelScheduled(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'scheduled'
		RETURNING `+appointmentColumns+`
	`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.classifyTransitionFailure(ctx, id)
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	if appt.ReservationID != nil {
		if err := entitlement.ReleaseTx(ctx, tx, *appt.ReservationID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return appt, nil
}

// CompleteScheduled marks a scheduled appointment completed. The predicate
// also requires the scheduled start to have passed, so a stale caller cannot
// complete early. The held reservation stays consumed.
func (r *PgRepository) CompleteScheduled(ctx context.Context, id uuid.UUID, asOf time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'scheduled'
		  AND start_time <= $2
		RETURNING `+appointmentColumns+`
	`, id, asOf)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.classifyTransitionFailure(ctx, id)
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}
	return appt, nil
}

// classifyTransitionFailure distinguishes a missing appointment from one in a
// state the requested transition does not allow.
func (r *PgRepository) classifyTransitionFailure(ctx context.Context, id uuid.UUID) error {
	_, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return err
	}
	return ErrInvalidTransition
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *appt}

	if p, err := r.GetPatientByID(ctx, appt.PatientID); err == nil {
		detail.Patient = p
	}
	if p, err := r.GetProfessionalByID(ctx, appt.ProfessionalID); err == nil {
		detail.Professional = p
	}
	if s, err := r.GetCareServiceByID(ctx, appt.ServiceID); err == nil {
		detail.Service = s
	}

	return detail, nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND status <> 'cancelled'
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, AppointmentDetail{Appointment: *a})
	}
	return result, rows.Err()
}

func (r *PgRepository) ListAppointmentsByProfessional(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
		  AND status <> 'cancelled'
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, professionalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
