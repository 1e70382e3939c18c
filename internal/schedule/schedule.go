// Package schedule turns a sale total and payment plan into installment rows.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"caderninho/backend/internal/calendar"
	"caderninho/backend/internal/domain"
	"caderninho/backend/internal/money"
)

var ErrInvalidPlan = errors.New("invalid payment plan")

type SchedulingError struct {
	Reason string
}

func (e *SchedulingError) Error() string {
	return "scheduling: " + e.Reason
}

func (e *SchedulingError) Unwrap() error {
	return ErrInvalidPlan
}

func invalid(format string, args ...any) error {
	return &SchedulingError{Reason: fmt.Sprintf(format, args...)}
}

// Entry is one scheduled (or already settled) payment before persistence.
type Entry struct {
	Number  int
	Amount  money.Cents
	DueDate calendar.Date
	Status  domain.InstallmentStatus
	PaidAt  *time.Time
}

// Schedule derives the installment sequence for total under plan. today anchors
// settled entries and the default due dates; now is recorded as paid_at.
func Schedule(total money.Cents, plan domain.PaymentPlan, today calendar.Date, now time.Time) ([]Entry, error) {
	if total.IsNegative() {
		return nil, invalid("total %s is negative", total)
	}
	if today.IsZero() {
		return nil, invalid("missing reference date")
	}

	switch plan.PaymentType {
	case domain.PaymentOneTime:
		return []Entry{settled(1, total, today, now)}, nil
	case domain.PaymentInstallments:
		return scheduleInstallments(total, plan, today, now)
	default:
		return nil, invalid("unknown payment type %q", plan.PaymentType)
	}
}

func scheduleInstallments(total money.Cents, plan domain.PaymentPlan, today calendar.Date, now time.Time) ([]Entry, error) {
	count := plan.InstallmentsCount
	if count < 1 {
		return nil, invalid("installments_count must be at least 1, got %d", count)
	}

	down := plan.DownPayment()
	if down.IsNegative() {
		return nil, invalid("down payment %s is negative", down)
	}
	remaining := total - down
	if remaining.IsNegative() {
		return nil, invalid("down payment %s exceeds total %s", down, total)
	}

	offset := 0
	if plan.HasDownPayment {
		offset = 1
	}
	financed := count - offset
	if financed < 1 {
		return nil, invalid("a down payment needs at least 2 installments, got %d", count)
	}

	amounts, err := money.Split(remaining, financed)
	if err != nil {
		return nil, invalid("%v", err)
	}

	entries := make([]Entry, 0, count)
	if plan.HasDownPayment {
		entries = append(entries, settled(1, down, today, now))
	}
	for i := offset; i < count; i++ {
		entries = append(entries, Entry{
			Number:  i + 1,
			Amount:  amounts[i-offset],
			DueDate: dueDate(plan.FirstDueDate, today, i, offset),
			Status:  domain.InstallmentPending,
		})
	}
	return entries, nil
}

// dueDate places the installment at loop index i. A custom first due date
// starts the monthly sequence at the first financed installment; otherwise each
// slot, the down payment included, advances one month from today.
func dueDate(first *calendar.Date, today calendar.Date, i int, offset int) calendar.Date {
	if first != nil && !first.IsZero() {
		return first.AddMonths(i - offset)
	}
	return today.AddMonths(i + 1)
}

func settled(number int, amount money.Cents, today calendar.Date, now time.Time) Entry {
	paidAt := now.UTC()
	return Entry{
		Number:  number,
		Amount:  amount,
		DueDate: today,
		Status:  domain.InstallmentPaid,
		PaidAt:  &paidAt,
	}
}

// Total sums the scheduled amounts.
func Total(entries []Entry) money.Cents {
	var sum money.Cents
	for _, e := range entries {
		sum += e.Amount
	}
	return sum
}
