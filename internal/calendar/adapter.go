// Package calendar pushes appointment changes to an external calendar
// provider. Sync is best-effort: a failure here never rolls back a booking.
package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the provider-facing view of an appointment.
type Event struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Title         string    `json:"title"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

type Adapter interface {
	CreateEvent(ctx context.Context, ev Event) error
	DeleteEvent(ctx context.Context, appointmentID uuid.UUID) error
}

// Disabled is used when no provider is configured.
type Disabled struct{}

func (Disabled) CreateEvent(ctx context.Context, ev Event) error {
	return nil
}

func (Disabled) DeleteEvent(ctx context.Context, appointmentID uuid.UUID) error {
	return nil
}
