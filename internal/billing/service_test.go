package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type stubBillingRepo struct {
	payment    *Payment
	paymentErr error

	installments    []Installment
	installmentsErr error

	created     *Payment
	createdPlan []PlannedInstallment
	createErr   error

	updated      *Payment
	updateErr    error
	updateFrom   PaymentStatus
	updateTo     PaymentStatus
	updateCalled bool

	installment    *Installment
	installmentErr error
	markPaidErr    error
	markPaidCalled bool

	overdueCount int64
}

func (s *stubBillingRepo) CreatePayment(ctx context.Context, p CreatePaymentParams, plan []PlannedInstallment) (*Payment, []Installment, error) {
	if s.createErr != nil {
		return nil, nil, s.createErr
	}
	s.createdPlan = plan
	payment := &Payment{
		ID:               uuid.New(),
		PatientID:        p.PatientID,
		AmountCents:      p.AmountCents,
		Method:           p.Method,
		Status:           PaymentPending,
		InstallmentCount: len(plan),
		DueDate:          p.DueDate,
	}
	s.created = payment

	installments := make([]Installment, len(plan))
	for i, line := range plan {
		installments[i] = Installment{
			ID:          uuid.New(),
			PaymentID:   payment.ID,
			Sequence:    line.Sequence,
			AmountCents: line.AmountCents,
			DueDate:     line.DueDate,
			Status:      InstallmentPending,
		}
	}
	return payment, installments, nil
}

func (s *stubBillingRepo) GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.payment, s.paymentErr
}

func (s *stubBillingRepo) ListInstallments(ctx context.Context, paymentID uuid.UUID) ([]Installment, error) {
	return s.installments, s.installmentsErr
}

func (s *stubBillingRepo) ListPaymentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Payment, error) {
	return nil, nil
}

func (s *stubBillingRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus, gatewayStatus *string) (*Payment, error) {
	s.updateCalled = true
	s.updateFrom = from
	s.updateTo = to
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.updated, nil
}

func (s *stubBillingRepo) GetInstallmentByID(ctx context.Context, id uuid.UUID) (*Installment, error) {
	return s.installment, s.installmentErr
}

func (s *stubBillingRepo) MarkInstallmentPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*Installment, error) {
	s.markPaidCalled = true
	if s.markPaidErr != nil {
		return nil, s.markPaidErr
	}
	return &Installment{ID: id, Status: InstallmentPaid, PaidAt: &paidAt}, nil
}

func (s *stubBillingRepo) MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int64, error) {
	return s.overdueCount, nil
}

func TestCreatePayment(t *testing.T) {
	repo := &stubBillingRepo{}
	svc := NewService(repo, zap.NewNop())

	p := CreatePaymentParams{
		PatientID:   uuid.New(),
		AmountCents: 10000,
		Method:      "card",
		DueDate:     time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}

	payment, installments, err := svc.CreatePayment(context.Background(), p, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != PaymentPending {
		t.Errorf("status = %s, want pending", payment.Status)
	}
	if len(installments) != 3 {
		t.Fatalf("len(installments) = %d, want 3", len(installments))
	}

	var sum int64
	for _, inst := range installments {
		sum += inst.AmountCents
	}
	if sum != p.AmountCents {
		t.Errorf("installments sum to %d, want %d", sum, p.AmountCents)
	}
}

func TestCreatePaymentInvalidCount(t *testing.T) {
	repo := &stubBillingRepo{}
	svc := NewService(repo, zap.NewNop())

	p := CreatePaymentParams{PatientID: uuid.New(), AmountCents: 10000}

	_, _, err := svc.CreatePayment(context.Background(), p, 0)
	if !errors.Is(err, ErrInvalidInstallmentCount) {
		t.Fatalf("expected ErrInvalidInstallmentCount, got %v", err)
	}
	if repo.created != nil {
		t.Error("repository must not be touched on an invalid plan")
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{name: "pending to paid", from: PaymentPending, to: PaymentPaid, allowed: true},
		{name: "pending to cancelled", from: PaymentPending, to: PaymentCancelled, allowed: true},
		{name: "pending to failed", from: PaymentPending, to: PaymentFailed, allowed: true},
		{name: "failed to paid", from: PaymentFailed, to: PaymentPaid, allowed: true},
		{name: "failed to cancelled", from: PaymentFailed, to: PaymentCancelled, allowed: true},
		{name: "paid is terminal", from: PaymentPaid, to: PaymentCancelled, allowed: false},
		{name: "cancelled is terminal", from: PaymentCancelled, to: PaymentPaid, allowed: false},
		{name: "no self transition", from: PaymentPending, to: PaymentPending, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubBillingRepo{
				payment: &Payment{ID: uuid.New(), Status: tt.from},
				updated: &Payment{Status: tt.to},
			}
			svc := NewService(repo, zap.NewNop())

			updated, err := svc.UpdateStatus(context.Background(), repo.payment.ID, tt.to, nil)
			if tt.allowed {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if updated.Status != tt.to {
					t.Errorf("status = %s, want %s", updated.Status, tt.to)
				}
				if repo.updateFrom != tt.from {
					t.Errorf("conditional update ran from %s, want %s", repo.updateFrom, tt.from)
				}
			} else {
				if !errors.Is(err, ErrInvalidPaymentTransition) {
					t.Fatalf("expected ErrInvalidPaymentTransition, got %v", err)
				}
				if repo.updateCalled {
					t.Error("repository update must not run on a rejected transition")
				}
			}
		})
	}
}

func TestUpdateStatusLostRace(t *testing.T) {
	// The payment moved to a terminal state between the read and the
	// conditional update; the miss surfaces as an invalid transition.
	repo := &stubBillingRepo{
		payment:   &Payment{ID: uuid.New(), Status: PaymentPending},
		updateErr: ErrPaymentNotFound,
	}
	svc := NewService(repo, zap.NewNop())

	_, err := svc.UpdateStatus(context.Background(), repo.payment.ID, PaymentPaid, nil)
	if !errors.Is(err, ErrInvalidPaymentTransition) {
		t.Fatalf("expected ErrInvalidPaymentTransition, got %v", err)
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	repo := &stubBillingRepo{paymentErr: ErrPaymentNotFound}
	svc := NewService(repo, zap.NewNop())

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), PaymentPaid, nil)
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestPayInstallment(t *testing.T) {
	for _, status := range []InstallmentStatus{InstallmentPending, InstallmentOverdue} {
		t.Run(string(status), func(t *testing.T) {
			repo := &stubBillingRepo{
				installment: &Installment{ID: uuid.New(), Status: status},
			}
			svc := NewService(repo, zap.NewNop())

			inst, err := svc.PayInstallment(context.Background(), repo.installment.ID, time.Now())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if inst.Status != InstallmentPaid {
				t.Errorf("status = %s, want paid", inst.Status)
			}
		})
	}
}

func TestPayInstallmentTerminal(t *testing.T) {
	for _, status := range []InstallmentStatus{InstallmentPaid, InstallmentCancelled} {
		t.Run(string(status), func(t *testing.T) {
			repo := &stubBillingRepo{
				installment: &Installment{ID: uuid.New(), Status: status},
			}
			svc := NewService(repo, zap.NewNop())

			_, err := svc.PayInstallment(context.Background(), repo.installment.ID, time.Now())
			if !errors.Is(err, ErrInvalidInstallmentTransition) {
				t.Fatalf("expected ErrInvalidInstallmentTransition, got %v", err)
			}
			if repo.markPaidCalled {
				t.Error("repository update must not run for a terminal installment")
			}
		})
	}
}

func TestPayInstallmentLostRace(t *testing.T) {
	repo := &stubBillingRepo{
		installment: &Installment{ID: uuid.New(), Status: InstallmentPending},
		markPaidErr: ErrInstallmentNotFound,
	}
	svc := NewService(repo, zap.NewNop())

	_, err := svc.PayInstallment(context.Background(), repo.installment.ID, time.Now())
	if !errors.Is(err, ErrInvalidInstallmentTransition) {
		t.Fatalf("expected ErrInvalidInstallmentTransition, got %v", err)
	}
}

func TestPayInstallmentNotFound(t *testing.T) {
	repo := &stubBillingRepo{installmentErr: ErrInstallmentNotFound}
	svc := NewService(repo, zap.NewNop())

	_, err := svc.PayInstallment(context.Background(), uuid.New(), time.Now())
	if !errors.Is(err, ErrInstallmentNotFound) {
		t.Fatalf("expected ErrInstallmentNotFound, got %v", err)
	}
}

func TestSweepOverdue(t *testing.T) {
	repo := &stubBillingRepo{overdueCount: 4}
	svc := NewService(repo, zap.NewNop())

	n, err := svc.SweepOverdue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("swept %d installments, want 4", n)
	}
}
