package entitlement

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExhausted SubscriptionStatus = "exhausted"
)

// Subscription is a prepaid bundle of sessions for one patient and service.
// ConsumedSessions only moves through Reserve and Release.
type Subscription struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	ServiceID          uuid.UUID
	StartDate          time.Time
	ExpiryDate         time.Time
	ContractedSessions int
	ConsumedSessions   int
	Status             SubscriptionStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Reservation records one consumed session. A released reservation keeps its
// row with ReleasedAt set, which is what makes Release idempotent.
type Reservation struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	AppointmentID  *uuid.UUID
	CreatedAt      time.Time
	ReleasedAt     *time.Time
}
