package billing

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentFailed    PaymentStatus = "failed"
)

type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pending"
	InstallmentPaid      InstallmentStatus = "paid"
	InstallmentOverdue   InstallmentStatus = "overdue"
	InstallmentCancelled InstallmentStatus = "cancelled"
)

// Payment records what a patient owes, optionally tied to a subscription or a
// single appointment. Amounts are integer cents. Gateway fields mirror the
// external processor's view and are recorded as reported, never interpreted.
type Payment struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	SubscriptionID   *uuid.UUID
	AppointmentID    *uuid.UUID
	AmountCents      int64
	Method           string
	Status           PaymentStatus
	InstallmentCount int
	DueDate          time.Time
	GatewayRef       *string
	GatewayStatus    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Installment struct {
	ID          uuid.UUID
	PaymentID   uuid.UUID
	Sequence    int
	AmountCents int64
	DueDate     time.Time
	PaidAt      *time.Time
	Status      InstallmentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
