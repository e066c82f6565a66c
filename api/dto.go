/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in the domain packages, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - wizard/types.go: Domain model these types project
*/
package api

import (
	json "github.com/goccy/go-json"

	"github.com/warp/issuance-engine/wizard"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// StartDraftRequest opens a wizard session.
type StartDraftRequest struct {
	// Key identifies the session. Generated when empty.
	Key string `json:"key,omitempty"`

	// Mode is "create" or "edit". Defaults to create.
	Mode string `json:"mode,omitempty"`

	// Restore resumes from the autosaved snapshot (create mode). The
	// client is expected to ask the operator first; see the
	// restorable_saved_at field of DraftDTO.
	Restore bool `json:"restore,omitempty"`

	// Existing hydrates an edit session. Encoded snapshot as produced
	// by the draft codec.
	Existing json.RawMessage `json:"existing,omitempty"`
}

// StepSubmitRequest carries one step's payload. Which field is read
// depends on the step number in the URL.
type StepSubmitRequest struct {
	Insured *wizard.InsuredParty `json:"insured,omitempty"`
	Basic   *wizard.BasicData    `json:"basic,omitempty"`

	// Branch payload for step 3. Decoded against the branch selected
	// in step 2.
	Branch json.RawMessage `json:"branch,omitempty"`

	Plan json.RawMessage `json:"plan,omitempty"`
}

// OverrideRequest adjusts one installment of a generated schedule.
type OverrideRequest struct {
	Number  int     `json:"number"`
	Amount  *string `json:"amount,omitempty"`
	DueDate *string `json:"due_date,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// DraftDTO is the wizard session state returned to clients.
type DraftDTO struct {
	Key          string              `json:"key"`
	Mode         wizard.Mode         `json:"mode"`
	CurrentStep  wizard.Step         `json:"current_step"`
	StepName     string              `json:"step_name"`
	VisibleSteps []wizard.Step       `json:"visible_steps"`
	Draft        *wizard.PolicyDraft `json:"draft"`

	// Branch payload, tagged. PolicyDraft itself excludes it from JSON.
	BranchKind string          `json:"branch_kind,omitempty"`
	Branch     json.RawMessage `json:"branch,omitempty"`

	Warnings []wizard.Warning `json:"warnings,omitempty"`

	// Set on session start when an autosaved snapshot exists and restore
	// was not requested. RFC3339.
	RestorableSavedAt string `json:"restorable_saved_at,omitempty"`
}

// StepResultDTO reports the outcome of an advance attempt.
type StepResultDTO struct {
	CurrentStep wizard.Step        `json:"current_step"`
	StepName    string             `json:"step_name"`
	Blocked     bool               `json:"blocked"`
	Errors      wizard.FieldErrors `json:"errors,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string             `json:"error"`
	Details string             `json:"details,omitempty"`
	Fields  wizard.FieldErrors `json:"fields,omitempty"`
}
