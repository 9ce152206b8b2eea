package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrInstallmentNotFound = errors.New("installment not found")
	ErrDuplicatePayment    = errors.New("payment already recorded")
)

// CreatePaymentParams carries a validated payment request into the repository.
type CreatePaymentParams struct {
	PatientID      uuid.UUID
	SubscriptionID *uuid.UUID
	AppointmentID  *uuid.UUID
	AmountCents    int64
	Method         string
	DueDate        time.Time
	GatewayRef     *string
}

// Repository contains all DB interactions needed by the billing service.
type Repository interface {
	// CreatePayment inserts the payment and its full installment schedule in
	// one transaction.
	CreatePayment(ctx context.Context, p CreatePaymentParams, plan []PlannedInstallment) (*Payment, []Installment, error)

	GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetInstallmentByID(ctx context.Context, id uuid.UUID) (*Installment, error)
	ListInstallments(ctx context.Context, paymentID uuid.UUID) ([]Installment, error)
	ListPaymentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Payment, error)

	// UpdatePaymentStatus performs a conditional transition from one status to
	// another; cancelling cascades to all non-terminal installments.
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus, gatewayStatus *string) (*Payment, error)

	MarkInstallmentPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*Installment, error)
	MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int64, error)
}
