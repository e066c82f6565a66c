/*
save.go - Mapping save-action failures to user-facing responses

PURPOSE:
  The save action is an external system (policy core, broker backend).
  Its failures arrive as structured messages, not typed errors, so the
  handler matches known substrings into a small taxonomy of user-facing
  titles. Anything unrecognized falls through to a generic failure.

TAXONOMY:
  duplicate policy number -> 409
  invalid reference       -> 400
  permission denied       -> 403
  sub-entity failure      -> 422 (names the entity that failed)
  generic                 -> 502

SEE ALSO:
  - wizard/types.go: SaveAction contract
  - handlers.go: SaveDraft handler
*/
package api

import (
	"net/http"
	"strings"
)

// SaveFailure is the classified form of a save-action error.
type SaveFailure struct {
	Status int    `json:"-"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// subEntities are the draft parts the policy core persists individually.
// A failure message naming one maps to a targeted title so the operator
// knows which rows to fix.
var subEntities = []string{
	"vehicle",
	"beneficiary",
	"coverage",
	"assignment",
	"installment",
	"document",
	"member",
}

// ClassifySaveError maps a raw save-action error to a user-facing failure.
func ClassifySaveError(err error) SaveFailure {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "duplicate") && strings.Contains(msg, "policy"),
		strings.Contains(msg, "unique") && strings.Contains(msg, "policy"):
		return SaveFailure{
			Status: http.StatusConflict,
			Title:  "Duplicate policy number",
			Detail: err.Error(),
		}
	case strings.Contains(msg, "invalid reference"),
		strings.Contains(msg, "foreign key"),
		strings.Contains(msg, "unknown insurer"),
		strings.Contains(msg, "unknown product"):
		return SaveFailure{
			Status: http.StatusBadRequest,
			Title:  "Invalid reference",
			Detail: err.Error(),
		}
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "not authorized"):
		return SaveFailure{
			Status: http.StatusForbidden,
			Title:  "Permission denied",
			Detail: err.Error(),
		}
	}

	for _, entity := range subEntities {
		if strings.Contains(msg, entity) {
			return SaveFailure{
				Status: http.StatusUnprocessableEntity,
				Title:  "Could not save " + entity + " details",
				Detail: err.Error(),
			}
		}
	}

	return SaveFailure{
		Status: http.StatusBadGateway,
		Title:  "Policy could not be saved",
		Detail: err.Error(),
	}
}
