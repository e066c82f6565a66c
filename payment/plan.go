/*
plan.go - Installment schedule generation

PURPOSE:
  GeneratePlan is the pure core: (total, downPayment, count, cadence,
  startDate) -> []Installment. Regenerate and Override wrap it with the
  paid-installment lock and operator adjustments.

ALGORITHM:
  With a down payment, it occupies installment #1 on the start date and is
  excluded from the even split: the remaining count-1 installments share
  total-downPayment, rounded to 2 decimals, dated one cadence step after
  the start date and each further installment one more step from the start
  date (offsets are multiplied, never chained, so variable month lengths
  cannot drift the schedule). Without a down payment the first installment
  falls exactly on the start date.

ROUNDING:
  Remainders from the even split are NOT redistributed. The operator may
  override individual installments afterwards; whether the overridden sum
  still matches the total is advisory only (see SumDeviation).

SEE ALSO:
  - types.go: Plan, Installment, Cadence
  - wizard/validate.go: vigencia containment over the generated dates
*/
package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrTooFewInstallments is returned when count < 2.
	ErrTooFewInstallments = errors.New("installment count must be at least 2")

	// ErrDownPaymentRange is returned when downPayment is negative or
	// exceeds the total.
	ErrDownPaymentRange = errors.New("down payment must be within [0, total]")

	// ErrNegativeTotal is returned for a negative total premium.
	ErrNegativeTotal = errors.New("total must not be negative")

	// ErrUnknownCadence is returned for a cadence outside the closed set.
	ErrUnknownCadence = errors.New("unknown cadence")

	// ErrScheduleLocked is returned when regeneration or a parameter change
	// is attempted while any installment is already paid.
	ErrScheduleLocked = errors.New("schedule locked: installments already paid")

	// ErrPaidImmutable is returned when an override targets a paid
	// installment.
	ErrPaidImmutable = errors.New("paid installment is immutable")
)

// LockedError carries which installments block a regeneration attempt.
type LockedError struct {
	PaidNumbers []int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("schedule locked: %d installment(s) already paid", len(e.PaidNumbers))
}

func (e *LockedError) Unwrap() error { return ErrScheduleLocked }

// =============================================================================
// GENERATION
// =============================================================================

// GeneratePlan builds the installment schedule. Pure: same inputs always
// yield the same schedule.
func GeneratePlan(total, downPayment decimal.Decimal, count int, cadence Cadence, start time.Time) ([]Installment, error) {
	if total.IsNegative() {
		return nil, ErrNegativeTotal
	}
	if count < 2 {
		return nil, ErrTooFewInstallments
	}
	if downPayment.IsNegative() || downPayment.GreaterThan(total) {
		return nil, ErrDownPaymentRange
	}
	step := cadence.Months()
	if step == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCadence, cadence)
	}

	var out []Installment

	if downPayment.IsPositive() {
		out = append(out, Installment{
			Number:      1,
			Amount:      downPayment.Round(2),
			DueDate:     start,
			Status:      StatusPending,
			DownPayment: true,
		})
		per := total.Sub(downPayment).Div(decimal.NewFromInt(int64(count - 1))).Round(2)
		for i := 1; i < count; i++ {
			out = append(out, Installment{
				Number:  i + 1,
				Amount:  per,
				DueDate: start.AddDate(0, i*step, 0),
				Status:  StatusPending,
			})
		}
		return out, nil
	}

	per := total.Div(decimal.NewFromInt(int64(count))).Round(2)
	for i := 0; i < count; i++ {
		out = append(out, Installment{
			Number:  i + 1,
			Amount:  per,
			DueDate: start.AddDate(0, i*step, 0),
			Status:  StatusPending,
		})
	}
	return out, nil
}

// Regenerate replaces the plan's schedule from its current credit
// parameters. Refused entirely once anything is paid: existing data is
// left untouched and a LockedError is returned.
func (p *Plan) Regenerate() error {
	if paid := p.paidNumbers(); len(paid) > 0 {
		return &LockedError{PaidNumbers: paid}
	}
	installments, err := GeneratePlan(p.Total, p.DownPayment, p.Count, p.Cadence, p.StartDate)
	if err != nil {
		return err
	}
	p.Installments = installments
	return nil
}

func (p *Plan) paidNumbers() []int {
	var paid []int
	for _, ins := range p.Installments {
		if ins.Status == StatusPaid {
			paid = append(paid, ins.Number)
		}
	}
	return paid
}

// =============================================================================
// OPERATOR OVERRIDES
// =============================================================================

// Override adjusts a single generated installment. Nil fields are left as
// generated.
type Override struct {
	Amount  *decimal.Decimal
	DueDate *time.Time
	Number  *int
}

// ApplyOverride mutates the installment with the given number. Paid
// installments are immutable.
func (p *Plan) ApplyOverride(number int, o Override) error {
	for i := range p.Installments {
		if p.Installments[i].Number != number {
			continue
		}
		if p.Installments[i].Status == StatusPaid {
			return ErrPaidImmutable
		}
		if o.Amount != nil {
			p.Installments[i].Amount = o.Amount.Round(2)
		}
		if o.DueDate != nil {
			p.Installments[i].DueDate = *o.DueDate
		}
		if o.Number != nil {
			p.Installments[i].Number = *o.Number
		}
		return nil
	}
	return fmt.Errorf("installment %d not found", number)
}

// SumDeviation returns how far the scheduled sum strays from the total.
// Advisory only: operator overrides legitimately unbalance the schedule,
// so callers surface this as a warning, never a blocking error.
func (p *Plan) SumDeviation() decimal.Decimal {
	return p.ScheduledSum().Sub(p.Total).Abs()
}

// RoundingTolerance is the acceptable deviation for an untouched schedule:
// one cent per installment.
func RoundingTolerance(count int) decimal.Decimal {
	return decimal.NewFromInt(int64(count)).Mul(decimal.NewFromFloat(0.01))
}
