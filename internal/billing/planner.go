package billing

import (
	"errors"
	"time"
)

var ErrInvalidInstallmentCount = errors.New("installment count must be at least 1")

// PlannedInstallment is one line of a derived payment schedule.
type PlannedInstallment struct {
	Sequence    int
	AmountCents int64
	DueDate     time.Time
}

// PlanInstallments splits totalCents into count equal shares. Integer-cent
// division leaves a remainder, which is added to the last installment so the
// schedule sums exactly to the total. Due dates advance one calendar month
// per installment starting at firstDue.
func PlanInstallments(totalCents int64, count int, firstDue time.Time) ([]PlannedInstallment, error) {
	if count < 1 {
		return nil, ErrInvalidInstallmentCount
	}

	share := totalCents / int64(count)
	remainder := totalCents - share*int64(count)

	plan := make([]PlannedInstallment, count)
	for i := 0; i < count; i++ {
		amount := share
		if i == count-1 {
			amount += remainder
		}
		plan[i] = PlannedInstallment{
			Sequence:    i + 1,
			AmountCents: amount,
			DueDate:     firstDue.AddDate(0, i, 0),
		}
	}

	return plan, nil
}
