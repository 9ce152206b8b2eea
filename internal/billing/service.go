package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidPaymentTransition     = errors.New("invalid payment status transition")
	ErrInvalidInstallmentTransition = errors.New("installment is not payable")
)

// allowedTransitions enumerates the payment state machine. Paid and cancelled
// are terminal; a failed payment may still settle or be written off.
var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentCancelled, PaymentFailed},
	PaymentFailed:  {PaymentPaid, PaymentCancelled},
}

// Service handles payment records and their installment schedules. Billing is
// decoupled from scheduling entitlement: cancelling a payment never returns a
// consumed session.
type Service struct {
	repo Repository
	log  *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// CreatePayment records a payment and derives its installment schedule.
func (s *Service) CreatePayment(ctx context.Context, p CreatePaymentParams, installmentCount int) (*Payment, []Installment, error) {
	plan, err := PlanInstallments(p.AmountCents, installmentCount, p.DueDate)
	if err != nil {
		return nil, nil, err
	}

	payment, installments, err := s.repo.CreatePayment(ctx, p, plan)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("payment created",
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("amount_cents", payment.AmountCents),
		zap.Int("installments", len(installments)))

	return payment, installments, nil
}

// UpdateStatus applies an externally-reported status transition. Moving to
// cancelled cascades to all non-terminal installments.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to PaymentStatus, gatewayStatus *string) (*Payment, error) {
	payment, err := s.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(payment.Status, to) {
		return nil, ErrInvalidPaymentTransition
	}

	updated, err := s.repo.UpdatePaymentStatus(ctx, id, payment.Status, to, gatewayStatus)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			// The payment moved under us between the read and the update.
			return nil, ErrInvalidPaymentTransition
		}
		return nil, err
	}
	return updated, nil
}

func transitionAllowed(from, to PaymentStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, []Installment, error) {
	payment, err := s.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	installments, err := s.repo.ListInstallments(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return payment, installments, nil
}

func (s *Service) ListPaymentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Payment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPaymentsByPatient(ctx, patientID, limit, offset)
}

// PayInstallment settles one installment. Only pending and overdue
// installments are payable; paid and cancelled ones are terminal.
func (s *Service) PayInstallment(ctx context.Context, id uuid.UUID, paidAt time.Time) (*Installment, error) {
	inst, err := s.repo.GetInstallmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Status != InstallmentPending && inst.Status != InstallmentOverdue {
		return nil, ErrInvalidInstallmentTransition
	}

	paid, err := s.repo.MarkInstallmentPaid(ctx, id, paidAt)
	if err != nil {
		if errors.Is(err, ErrInstallmentNotFound) {
			// The installment moved under us between the read and the update.
			return nil, ErrInvalidInstallmentTransition
		}
		return nil, err
	}
	return paid, nil
}

// SweepOverdue marks pending installments past their due date overdue.
// Called periodically by the status worker.
func (s *Service) SweepOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	n, err := s.repo.MarkOverdueInstallments(ctx, asOf)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("installments marked overdue", zap.Int64("count", n))
	}
	return n, nil
}
