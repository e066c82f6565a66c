/*
validate.go - Per-step validators and cross-cutting payment rules

PURPOSE:
  One validator per step, each producing a field->message map; Advance is
  blocked while the map for the current step is non-empty. Two
  network-wide rules live here too:

  Vigencia containment:
    Every payment date (cash due date, each installment due date) must
    fall within [PolicyStart, PolicyEnd]. Reported per offending date.
    This is the blocking warning category, unlike the summary's soft
    warnings.

  Paid-installment lock:
    Enforced where payment input is applied (orchestrator.go); the step-4
    validator only re-checks the structural plan invariants.

SEE ALSO:
  - branch package: supplies the step-3 payload validators via BranchData
  - orchestrator.go: runs these on Advance and again on Save
*/
package wizard

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/issuance-engine/payment"
)

// StepValidator checks one step of the draft.
type StepValidator func(*PolicyDraft) FieldErrors

// Validators returns the dispatch table from step to validator. The
// summary step has no field inputs of its own; Save re-runs every earlier
// validator instead.
func Validators() map[Step]StepValidator {
	return map[Step]StepValidator{
		StepInsuredSearch: validateInsured,
		StepBasicData:     validateBasicData,
		StepBranchData:    validateBranchData,
		StepPaymentPlan:   validatePaymentPlan,
		StepDocuments:     validateDocuments,
		StepSummary:       func(*PolicyDraft) FieldErrors { return nil },
	}
}

// =============================================================================
// STEP 1 - INSURED SEARCH
// =============================================================================

func validateInsured(d *PolicyDraft) FieldErrors {
	if d.Insured == nil || d.Insured.ClientID == "" {
		return FieldErrors{"insured": "select an insured party"}
	}
	return nil
}

// =============================================================================
// STEP 2 - BASIC DATA
// =============================================================================

var one = decimal.NewFromInt(1)

func validateBasicData(d *PolicyDraft) FieldErrors {
	errs := make(FieldErrors)
	b := d.Basic

	if b.PolicyNumber == "" {
		errs["policy_number"] = "policy number is required"
	}
	if b.InsurerID == "" {
		errs["insurer_id"] = "select an insurer"
	}
	if b.ProductID == "" {
		errs["product_id"] = "select a product"
	}
	if b.Branch == "" {
		errs["branch"] = "select a branch"
	}
	if b.PolicyStart.IsZero() || b.PolicyEnd.IsZero() {
		errs["policy_start"] = "policy effective range is required"
	} else if !b.PolicyStart.Before(b.PolicyEnd) {
		errs["policy_end"] = "policy end must be after policy start"
	}
	if b.TotalPremium.IsNegative() {
		errs["total_premium"] = "premium must not be negative"
	}
	if b.AgentShare.IsNegative() || b.AgentShare.GreaterThan(one) {
		errs["agent_share"] = "agent share must be within [0, 1]"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// =============================================================================
// STEP 3 - BRANCH DATA
// =============================================================================

func validateBranchData(d *PolicyDraft) FieldErrors {
	if d.Branch == nil {
		return FieldErrors{"branch_data": "branch data has not been captured"}
	}
	// Tagged-union invariant. A mismatch means an earlier step changed the
	// branch after this payload was captured.
	if d.Basic.Branch != "" && d.Branch.BranchKind() != d.Basic.Branch {
		return FieldErrors{"branch_data": fmt.Sprintf(
			"captured data is for branch %q, policy selects %q",
			d.Branch.BranchKind(), d.Basic.Branch)}
	}
	return FieldErrors(d.Branch.Validate())
}

// =============================================================================
// STEP 4 - PAYMENT PLAN
// =============================================================================

func validatePaymentPlan(d *PolicyDraft) FieldErrors {
	if d.Plan == nil {
		return FieldErrors{"plan": "payment plan has not been generated"}
	}
	errs := make(FieldErrors)
	p := d.Plan

	if !p.Mode.Valid() {
		errs["mode"] = "payment mode must be contado or credito"
	}

	switch p.Mode {
	case payment.ModeCash:
		if !p.Amount.IsPositive() && !p.Amount.IsZero() {
			errs["amount"] = "cash amount must not be negative"
		}
		if p.DueDate.IsZero() {
			errs["due_date"] = "cash due date is required"
		}
	case payment.ModeCredit:
		if p.Count < 2 {
			errs["count"] = "at least 2 installments are required"
		}
		if len(p.Installments) == 0 {
			errs["installments"] = "generate the installment schedule"
		}
	}

	errs = errs.Merge(vigenciaViolations(d))

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// vigenciaViolations reports every payment date outside the policy's
// effective range. These block advancement and save.
func vigenciaViolations(d *PolicyDraft) FieldErrors {
	if d.Plan == nil || d.Basic.PolicyStart.IsZero() || d.Basic.PolicyEnd.IsZero() {
		return nil
	}
	start, end := d.Basic.PolicyStart, d.Basic.PolicyEnd

	outside := func(at time.Time) bool {
		return !at.IsZero() && (at.Before(start) || at.After(end))
	}

	errs := make(FieldErrors)
	if d.Plan.Mode == payment.ModeCash {
		if outside(d.Plan.DueDate) {
			errs["due_date"] = fmt.Sprintf("due date outside policy range [%s, %s]",
				start.Format("2006-01-02"), end.Format("2006-01-02"))
		}
	} else {
		for _, ins := range d.Plan.Installments {
			if outside(ins.DueDate) {
				errs[fmt.Sprintf("installments.%d.due_date", ins.Number)] = fmt.Sprintf(
					"due date %s outside policy range [%s, %s]",
					ins.DueDate.Format("2006-01-02"),
					start.Format("2006-01-02"), end.Format("2006-01-02"))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// =============================================================================
// STEP 5 - DOCUMENTS
// =============================================================================

func validateDocuments(d *PolicyDraft) FieldErrors {
	errs := make(FieldErrors)
	for _, doc := range d.Documents {
		// In-flight uploads block advancement; failed uploads do not (the
		// failure stays attached to the entry and the operator decides).
		if doc.Status == DocUploading {
			errs[fmt.Sprintf("documents.%s", doc.ID)] = "upload still in progress"
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// =============================================================================
// SUMMARY WARNINGS - Soft, never blocking
// =============================================================================

// SummaryWarnings recomputes the informational notices shown on the
// summary step: cross-step drift is surfaced here instead of invalidating
// later steps when an earlier one is edited.
func SummaryWarnings(d *PolicyDraft) []Warning {
	var warnings []Warning
	warnings = append(warnings, d.Warnings...)

	if p := d.Plan; p != nil && p.Mode == payment.ModeCredit && len(p.Installments) > 0 {
		if p.SumDeviation().GreaterThan(payment.RoundingTolerance(p.Count)) {
			warnings = append(warnings, Warning{
				Code: WarnSumMismatch,
				Message: fmt.Sprintf("scheduled installments sum to %s, total premium is %s",
					p.ScheduledSum(), p.Total),
			})
		}
		if p.Commission != nil && p.Commission.Degraded {
			warnings = append(warnings, Warning{
				Code:    WarnDegradedCommission,
				Message: "no factor table for this product; legacy commission formula applied",
			})
		}
	}
	if p := d.Plan; p != nil && p.Mode == payment.ModeCash && p.Commission != nil && p.Commission.Degraded {
		warnings = append(warnings, Warning{
			Code:    WarnDegradedCommission,
			Message: "no factor table for this product; legacy commission formula applied",
		})
	}

	return dedupeWarnings(warnings)
}

func dedupeWarnings(in []Warning) []Warning {
	seen := make(map[string]bool, len(in))
	var out []Warning
	for _, w := range in {
		if seen[w.Code] {
			continue
		}
		seen[w.Code] = true
		out = append(out, w)
	}
	return out
}
