package payment_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/issuance-engine/payment"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGeneratePlan_DownPayment_WorkedExample(t *testing.T) {
	// GIVEN: total 10000, down payment 1000, 4 installments, monthly from 2025-01-15
	// WHEN: generating the plan
	// THEN: #1 = 1000 on the start date, #2..#4 = 3000 on the 15th of Feb/Mar/Apr

	installments, err := payment.GeneratePlan(d("10000"), d("1000"), 4, payment.CadenceMonthly, date(2025, time.January, 15))
	require.NoError(t, err)
	require.Len(t, installments, 4)

	assert.True(t, installments[0].DownPayment)
	assert.Equal(t, 1, installments[0].Number)
	assert.True(t, installments[0].Amount.Equal(d("1000")))
	assert.Equal(t, date(2025, time.January, 15), installments[0].DueDate)

	expectedDates := []time.Time{
		date(2025, time.February, 15),
		date(2025, time.March, 15),
		date(2025, time.April, 15),
	}
	for i, ins := range installments[1:] {
		assert.Equal(t, i+2, ins.Number)
		assert.True(t, ins.Amount.Equal(d("3000")), "installment %d amount %s", ins.Number, ins.Amount)
		assert.Equal(t, expectedDates[i], ins.DueDate)
		assert.False(t, ins.DownPayment)
	}
}

func TestGeneratePlan_NoDownPayment_FirstOnStartDate(t *testing.T) {
	// GIVEN: no down payment
	// WHEN: generating 3 quarterly installments from 2025-01-31
	// THEN: first installment falls exactly on the start date, numbering from 1

	installments, err := payment.GeneratePlan(d("9000"), decimal.Zero, 3, payment.CadenceQuarterly, date(2025, time.January, 31))
	require.NoError(t, err)
	require.Len(t, installments, 3)

	assert.Equal(t, 1, installments[0].Number)
	assert.Equal(t, date(2025, time.January, 31), installments[0].DueDate)
	assert.True(t, installments[0].Amount.Equal(d("3000")))
	// +3 months from Jan 31 normalizes per time.AddDate
	assert.Equal(t, date(2025, time.January, 31).AddDate(0, 3, 0), installments[1].DueDate)
	assert.Equal(t, date(2025, time.January, 31).AddDate(0, 6, 0), installments[2].DueDate)
}

func TestGeneratePlan_DatesAnchoredOnStart_NotCompounded(t *testing.T) {
	// GIVEN: a semestral cadence
	// WHEN: generating from 2025-03-10
	// THEN: every date is start + i*6 months, offsets from the start date

	installments, err := payment.GeneratePlan(d("1200"), decimal.Zero, 4, payment.CadenceSemestral, date(2025, time.March, 10))
	require.NoError(t, err)
	for i, ins := range installments {
		assert.Equal(t, date(2025, time.March, 10).AddDate(0, i*6, 0), ins.DueDate)
	}
}

func TestGeneratePlan_SumWithinRoundingTolerance(t *testing.T) {
	// GIVEN: an amount that does not divide evenly
	// WHEN: generating the schedule
	// THEN: the sum stays within count * 0.01 of the total (remainders are
	//       not redistributed)

	cases := []struct {
		total string
		down  string
		count int
	}{
		{"10000", "0", 3},
		{"10000", "1000", 4},
		{"99.99", "0", 7},
		{"1234.56", "100", 5},
		{"0", "0", 2},
	}

	for _, tc := range cases {
		installments, err := payment.GeneratePlan(d(tc.total), d(tc.down), tc.count, payment.CadenceMonthly, date(2025, time.June, 1))
		require.NoError(t, err)

		expected := tc.count
		assert.Len(t, installments, expected, "total=%s down=%s", tc.total, tc.down)

		sum := decimal.Zero
		for _, ins := range installments {
			sum = sum.Add(ins.Amount)
		}
		deviation := sum.Sub(d(tc.total)).Abs()
		assert.True(t, deviation.LessThanOrEqual(payment.RoundingTolerance(tc.count)),
			"total=%s sum=%s deviation=%s", tc.total, sum, deviation)
	}
}

func TestGeneratePlan_InputValidation(t *testing.T) {
	start := date(2025, time.January, 1)

	_, err := payment.GeneratePlan(d("100"), decimal.Zero, 1, payment.CadenceMonthly, start)
	assert.ErrorIs(t, err, payment.ErrTooFewInstallments)

	_, err = payment.GeneratePlan(d("100"), d("200"), 3, payment.CadenceMonthly, start)
	assert.ErrorIs(t, err, payment.ErrDownPaymentRange)

	_, err = payment.GeneratePlan(d("100"), d("-1"), 3, payment.CadenceMonthly, start)
	assert.ErrorIs(t, err, payment.ErrDownPaymentRange)

	_, err = payment.GeneratePlan(d("-5"), decimal.Zero, 3, payment.CadenceMonthly, start)
	assert.ErrorIs(t, err, payment.ErrNegativeTotal)

	_, err = payment.GeneratePlan(d("100"), decimal.Zero, 3, payment.Cadence("weekly"), start)
	assert.ErrorIs(t, err, payment.ErrUnknownCadence)
}

// =============================================================================
// REGENERATION
// =============================================================================

func creditPlan(t *testing.T) *payment.Plan {
	t.Helper()
	plan := &payment.Plan{
		Mode:        payment.ModeCredit,
		Total:       d("10000"),
		DownPayment: d("1000"),
		Cadence:     payment.CadenceMonthly,
		StartDate:   date(2025, time.January, 15),
		Count:       4,
	}
	require.NoError(t, plan.Regenerate())
	return plan
}

func TestPlan_Regenerate_IdempotentBeforeAnyPayment(t *testing.T) {
	// GIVEN: a generated schedule with nothing paid
	// WHEN: regenerating with unchanged inputs
	// THEN: amounts and dates are identical

	plan := creditPlan(t)
	first := append([]payment.Installment(nil), plan.Installments...)

	require.NoError(t, plan.Regenerate())

	require.Len(t, plan.Installments, len(first))
	for i := range first {
		assert.True(t, first[i].Amount.Equal(plan.Installments[i].Amount))
		assert.Equal(t, first[i].DueDate, plan.Installments[i].DueDate)
		assert.Equal(t, first[i].Number, plan.Installments[i].Number)
	}
}

func TestPlan_Regenerate_RefusedOncePaid(t *testing.T) {
	// GIVEN: installment #2 is already paid
	// WHEN: attempting to regenerate
	// THEN: the attempt is rejected and existing data is unchanged

	plan := creditPlan(t)
	plan.Installments[1].Status = payment.StatusPaid
	before := append([]payment.Installment(nil), plan.Installments...)

	err := plan.Regenerate()
	assert.ErrorIs(t, err, payment.ErrScheduleLocked)

	var locked *payment.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, []int{2}, locked.PaidNumbers)
	assert.Equal(t, before, plan.Installments)
}

func TestPlan_Regenerate_PaidDownPaymentAlsoLocks(t *testing.T) {
	// GIVEN: only the down payment is paid, regular installments pending
	// WHEN: attempting to regenerate
	// THEN: the full lock applies (any paid entry triggers it)

	plan := creditPlan(t)
	plan.Installments[0].Status = payment.StatusPaid

	assert.ErrorIs(t, plan.Regenerate(), payment.ErrScheduleLocked)
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestPlan_ApplyOverride_AdjustsPendingInstallment(t *testing.T) {
	plan := creditPlan(t)

	amount := d("2950.50")
	due := date(2025, time.February, 20)
	require.NoError(t, plan.ApplyOverride(2, payment.Override{Amount: &amount, DueDate: &due}))

	assert.True(t, plan.Installments[1].Amount.Equal(d("2950.50")))
	assert.Equal(t, due, plan.Installments[1].DueDate)
}

func TestPlan_ApplyOverride_PaidInstallmentImmutable(t *testing.T) {
	plan := creditPlan(t)
	plan.Installments[2].Status = payment.StatusPaid

	amount := d("1")
	err := plan.ApplyOverride(3, payment.Override{Amount: &amount})
	assert.ErrorIs(t, err, payment.ErrPaidImmutable)
	assert.True(t, plan.Installments[2].Amount.Equal(d("3000")))
}

func TestPlan_SumDeviation_AdvisoryAfterOverride(t *testing.T) {
	// GIVEN: an operator override that unbalances the schedule
	// WHEN: checking the deviation
	// THEN: the mismatch is reported but nothing errors

	plan := creditPlan(t)
	amount := d("2500")
	require.NoError(t, plan.ApplyOverride(4, payment.Override{Amount: &amount}))

	assert.True(t, plan.SumDeviation().Equal(d("500")))
}

// =============================================================================
// LOCKED FIELDS
// =============================================================================

func TestLockedFields_NothingPaid_AllEditable(t *testing.T) {
	plan := creditPlan(t)

	incoming := *plan
	incoming.Count = 6
	incoming.Cadence = payment.CadenceQuarterly

	assert.Empty(t, payment.LockedFields(plan, incoming))
}

func TestLockedFields_PaidEntry_FreezesParameters(t *testing.T) {
	plan := creditPlan(t)
	plan.Installments[0].Status = payment.StatusPaid

	incoming := *plan
	incoming.Mode = payment.ModeCash
	incoming.DownPayment = d("500")
	incoming.StartDate = date(2025, time.February, 1)
	incoming.Cadence = payment.CadenceSemestral
	incoming.Count = 2

	fields := payment.LockedFields(plan, incoming)
	assert.ElementsMatch(t, []string{"mode", "down_payment", "start_date", "cadence", "count"}, fields)
}
