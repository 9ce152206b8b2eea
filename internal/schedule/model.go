package schedule

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Professional struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CareService is a bookable catalog entry, e.g. one physiotherapy session.
type CareService struct {
	ID              uuid.UUID
	Name            string
	Category        string
	DurationMinutes int
	PriceCents      int64
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AvailabilityWindow is one recurring weekly opening of a professional,
// expressed in minutes from midnight so it is independent of the date.
type AvailabilityWindow struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	Weekday        time.Weekday
	StartMinute    int
	EndMinute      int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ProfessionalID  uuid.UUID
	ServiceID       uuid.UUID
	SubscriptionID  *uuid.UUID
	ReservationID   *uuid.UUID
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	Status          AppointmentStatus
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient      *Patient
	Professional *Professional
	Service      *CareService
}
