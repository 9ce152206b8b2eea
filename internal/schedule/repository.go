package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrProfessionalNotFound = errors.New("professional not found")
	ErrServiceNotFound      = errors.New("care service not found")
	ErrWindowNotFound       = errors.New("availability window not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
)

// CreateAppointmentParams carries a validated booking request into the
// repository. End time is derived by the service from start and duration.
type CreateAppointmentParams struct {
	PatientID       uuid.UUID
	ProfessionalID  uuid.UUID
	ServiceID       uuid.UUID
	SubscriptionID  *uuid.UUID
	Start           time.Time
	DurationMinutes int
	Notes           string
}

// ReschedulePatch updates only the fields that are set. Unlink detaches the
// appointment from its subscription and releases the held reservation.
type ReschedulePatch struct {
	Start           *time.Time
	DurationMinutes *int
	Notes           *string
	Unlink          bool
}

// Repository contains all DB interactions needed by the scheduling service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	GetCareServiceByID(ctx context.Context, id uuid.UUID) (*CareService, error)

	// Recurring weekly availability
	ListWindows(ctx context.Context, professionalID uuid.UUID) ([]AvailabilityWindow, error)
	CreateWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error)
	DeactivateWindow(ctx context.Context, id uuid.UUID) error

	// Conflict detection over non-cancelled appointments, half-open intervals
	HasOverlap(ctx context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error)

	// State transitions; each runs as one transaction together with any
	// entitlement reserve/release it implies
	CreateScheduled(ctx context.Context, p CreateAppointmentParams, end, asOf time.Time) (*Appointment, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, start, end time.Time, durationMinutes int, notes string, unlink bool) (*Appointment, error)
	CancelScheduled(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CompleteScheduled(ctx context.Context, id uuid.UUID, asOf time.Time) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)
	ListAppointmentsByProfessional(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
