/*
Package wizard contains the policy-configuration state machine that walks
an operator through assembling an insurance policy.

PURPOSE:
  Owns the PolicyDraft aggregate and the six-step sequence: insured search,
  basic data, branch-specific data, payment plan, documents, summary.
  Advancement is gated on per-step validity; an in-progress draft is
  autosaved (debounced) so work is not lost; at the end the assembled
  record is handed to the external save action.

KEY CONCEPTS IN THIS FILE (types.go):
  - Step: the 1..6 position in the wizard
  - PolicyDraft: the aggregate root mutated step by step
  - BranchData: the closed tagged union of branch payloads, implemented by
    the branch package (the wizard never string-matches branch names)
  - Document: a tracked upload with uploading/uploaded/error status
  - Warning: summary-step soft notices, distinct from blocking field errors

DESIGN PRINCIPLES:
  1. Cumulative rendering: steps <= current stay visible; retreating never
     discards later data
  2. Eventual cross-step consistency: editing an earlier step does not
     invalidate later steps; the summary surfaces drift as warnings
  3. Single logical thread: handlers serialize access per draft; the
     orchestrator still carries a mutex because HTTP requests may race

SEE ALSO:
  - orchestrator.go: the state machine itself
  - validate.go: per-step validators and vigencia containment
  - store.go: draft persistence contract
  - autosave.go: debounced snapshot scheduling
*/
package wizard

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/issuance-engine/payment"
)

// =============================================================================
// STEPS
// =============================================================================

type Step int

const (
	StepInsuredSearch Step = iota + 1
	StepBasicData
	StepBranchData
	StepPaymentPlan
	StepDocuments
	StepSummary
)

const (
	FirstStep = StepInsuredSearch
	LastStep  = StepSummary
)

func (s Step) Valid() bool { return s >= FirstStep && s <= LastStep }

func (s Step) String() string {
	switch s {
	case StepInsuredSearch:
		return "insured_search"
	case StepBasicData:
		return "basic_data"
	case StepBranchData:
		return "branch_data"
	case StepPaymentPlan:
		return "payment_plan"
	case StepDocuments:
		return "documents"
	case StepSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// =============================================================================
// MODE
// =============================================================================

// Mode distinguishes creating a new policy from editing an existing one.
// Autosave and draft restore only apply in create mode; the
// paid-installment lock only applies in edit mode.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// =============================================================================
// VALIDATION RESULTS
// =============================================================================

// FieldErrors maps a field path to a user-facing message. A non-empty map
// blocks advancement out of the offending step.
type FieldErrors map[string]string

func (fe FieldErrors) Merge(other FieldErrors) FieldErrors {
	if len(other) == 0 {
		return fe
	}
	if fe == nil {
		fe = make(FieldErrors, len(other))
	}
	for k, v := range other {
		fe[k] = v
	}
	return fe
}

// Warning is a summary-step soft notice. Warnings inform, they never block.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WarnSumMismatch        = "installment_sum_mismatch"
	WarnDegradedCommission = "degraded_commission"
	WarnDocumentsDropped   = "documents_must_be_reuploaded"
)

// =============================================================================
// DRAFT AGGREGATE
// =============================================================================

// InsuredParty references the external client record selected in step 1.
type InsuredParty struct {
	ClientID   string `json:"client_id"`
	Name       string `json:"name"`
	IDDocument string `json:"id_document,omitempty"`
}

// BasicData is the step-2 payload. Branch selects the tag the step-3
// payload must carry; PolicyStart/PolicyEnd bound every payment date
// (vigencia containment).
type BasicData struct {
	PolicyNumber string          `json:"policy_number"`
	InsurerID    string          `json:"insurer_id"`
	ProductID    string          `json:"product_id"`
	RegionID     string          `json:"region_id,omitempty"`
	Branch       string          `json:"branch"`
	PolicyStart  time.Time       `json:"policy_start"`
	PolicyEnd    time.Time       `json:"policy_end"`
	TotalPremium decimal.Decimal `json:"total_premium"`

	// AgentShare is the session user's commission fraction in [0, 1],
	// retrieved with the user, not operator-entered.
	AgentShare decimal.Decimal `json:"agent_share"`
}

// BranchData is the closed tagged union of branch payloads. The branch
// package supplies the concrete types and the dispatch table; an unmatched
// tag is a hard validation error, never a silent fallthrough.
type BranchData interface {
	// BranchKind returns the tag. Must equal BasicData.Branch.
	BranchKind() string

	// Validate returns the step-3 field errors for this payload.
	Validate() map[string]string
}

// DocumentStatus tracks one upload.
type DocumentStatus string

const (
	DocUploading DocumentStatus = "uploading"
	DocUploaded  DocumentStatus = "uploaded"
	DocError     DocumentStatus = "error"
)

// Document is one attached file. StoragePath is set once uploaded;
// Persisted marks documents already attached to a saved policy, which
// exempts them from best-effort cleanup on cancel.
type Document struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      DocumentStatus `json:"status"`
	StoragePath string         `json:"storage_path,omitempty"`
	PublicURL   string         `json:"public_url,omitempty"`
	Error       string         `json:"error,omitempty"`
	Persisted   bool           `json:"persisted,omitempty"`
}

// PolicyDraft is the aggregate root for one wizard session.
//
// Invariant: when Branch is set, Branch.BranchKind() == Basic.Branch.
type PolicyDraft struct {
	Key         string          `json:"key"`
	PolicyID    string          `json:"policy_id,omitempty"`
	Mode        Mode            `json:"mode"`
	CurrentStep Step            `json:"current_step"`
	Insured     *InsuredParty   `json:"insured,omitempty"`
	Basic       BasicData       `json:"basic"`
	Branch      BranchData      `json:"-"`
	Plan        *payment.Plan   `json:"plan,omitempty"`
	Documents   []Document      `json:"documents"`
	Warnings    []Warning       `json:"warnings,omitempty"`
}

// VisibleSteps returns 1..CurrentStep. Rendering is cumulative: earlier
// steps stay mounted so the operator can scroll back.
func (d *PolicyDraft) VisibleSteps() []Step {
	steps := make([]Step, 0, int(d.CurrentStep))
	for s := FirstStep; s <= d.CurrentStep; s++ {
		steps = append(steps, s)
	}
	return steps
}

// AddWarning records a warning once per code.
func (d *PolicyDraft) AddWarning(code, message string) {
	for _, w := range d.Warnings {
		if w.Code == code {
			return
		}
	}
	d.Warnings = append(d.Warnings, Warning{Code: code, Message: message})
}

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

// StoredObject is what the blob collaborator returns for an upload.
type StoredObject struct {
	StoragePath string `json:"storage_path"`
	PublicURL   string `json:"public_url"`
}

// Uploader is the document-upload collaborator. The wizard only tracks
// per-file status and never interprets the storage medium.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (StoredObject, error)
	Delete(ctx context.Context, storagePath string) error
}

// SaveAction is the external persistence action. The wizard's only
// obligation is to hand over a fully validated draft and map structured
// failures to user-facing categories (see api package).
type SaveAction interface {
	Save(ctx context.Context, draft *PolicyDraft) error
}

// DraftCodec serializes drafts for the DraftStore. Implemented by the
// branch package, which knows how to round-trip the tagged union.
type DraftCodec interface {
	Encode(d *PolicyDraft) ([]byte, error)
	Decode(data []byte) (*PolicyDraft, error)
}
