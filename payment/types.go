/*
Package payment implements the payment-plan generator and the
commission/net-premium calculator for policy issuance.

PURPOSE:
  Turns a total premium, an optional down payment, an installment count and
  a cadence into a dated installment schedule, and applies a product's
  factor table plus the responsible agent's share to compute commissions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Mode: cash ("contado") vs. credit ("credito") payment
  - Cadence: how far apart installments fall (monthly/quarterly/semestral)
  - Installment: one scheduled payment, 1-based and gapless
  - Plan: the full payment arrangement attached to a draft

DESIGN PRINCIPLES:
  1. Purity: generation and commission math are pure functions
  2. Precision: decimal.Decimal everywhere, float64 only at the JSON edge
  3. Anchored dates: installment dates offset from the start date, never
     compounded from the previous installment (avoids month-length drift)

SEE ALSO:
  - plan.go: schedule generation, overrides, regeneration lock
  - commission.go: factor-table and legacy commission math
*/
package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT MODE
// =============================================================================

type Mode string

const (
	ModeCash   Mode = "contado"
	ModeCredit Mode = "credito"
)

func (m Mode) Valid() bool { return m == ModeCash || m == ModeCredit }

// =============================================================================
// CADENCE - Spacing between installments
// =============================================================================

type Cadence string

const (
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceSemestral Cadence = "semestral"
)

// Months returns the step size in months, or 0 for an unknown cadence.
func (c Cadence) Months() int {
	switch c {
	case CadenceMonthly:
		return 1
	case CadenceQuarterly:
		return 3
	case CadenceSemestral:
		return 6
	default:
		return 0
	}
}

// =============================================================================
// INSTALLMENT
// =============================================================================

type InstallmentStatus string

const (
	StatusPending InstallmentStatus = "pending"
	StatusPaid    InstallmentStatus = "paid"
)

// Installment is one scheduled payment. Numbers are 1-based and gapless.
// Once Status is paid, Amount and DueDate are immutable for that record.
type Installment struct {
	Number      int               `json:"number"`
	Amount      decimal.Decimal   `json:"amount"`
	DueDate     time.Time         `json:"due_date"`
	Status      InstallmentStatus `json:"status"`
	DownPayment bool              `json:"down_payment,omitempty"`
}

// =============================================================================
// PLAN - Cash or installment arrangement
// =============================================================================

// Plan is the payment arrangement for a draft. Mode discriminates the two
// shapes: cash plans use Amount/DueDate, credit plans use the schedule
// fields. NetPremium and the commissions are derived, never user-entered.
type Plan struct {
	Mode Mode `json:"mode"`

	// Cash
	Amount  decimal.Decimal `json:"amount,omitempty"`
	DueDate time.Time       `json:"due_date,omitempty"`

	// Credit
	Total        decimal.Decimal `json:"total,omitempty"`
	DownPayment  decimal.Decimal `json:"down_payment,omitempty"`
	Cadence      Cadence         `json:"cadence,omitempty"`
	StartDate    time.Time       `json:"start_date,omitempty"`
	Count        int             `json:"count,omitempty"`
	Installments []Installment   `json:"installments,omitempty"`

	// Derived
	Commission *CommissionResult `json:"commission,omitempty"`
}

// AnyPaid reports whether any installment (the down payment included) is
// already marked paid. Any paid entry triggers the full edit lock.
func (p *Plan) AnyPaid() bool {
	if p == nil {
		return false
	}
	for _, ins := range p.Installments {
		if ins.Status == StatusPaid {
			return true
		}
	}
	return false
}

// PaymentDates returns every date the plan commits to, for vigencia checks.
func (p *Plan) PaymentDates() []time.Time {
	if p == nil {
		return nil
	}
	if p.Mode == ModeCash {
		return []time.Time{p.DueDate}
	}
	dates := make([]time.Time, 0, len(p.Installments))
	for _, ins := range p.Installments {
		dates = append(dates, ins.DueDate)
	}
	return dates
}

// ScheduledSum adds up every installment amount, down payment included.
func (p *Plan) ScheduledSum() decimal.Decimal {
	sum := decimal.Zero
	for _, ins := range p.Installments {
		sum = sum.Add(ins.Amount)
	}
	return sum
}
