package branch

import (
	"fmt"
	"time"
)

// =============================================================================
// HEALTH - Member rows with plan selection
// =============================================================================

// Member is one insured person under a health policy.
type Member struct {
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	BirthDate time.Time `json:"birth_date,omitempty"`
	PlanID    string    `json:"plan_id"`
	Position  string    `json:"position,omitempty"`
}

// HealthData is the health branch payload.
type HealthData struct {
	Members []Member `json:"members"`
}

func (*HealthData) BranchKind() string { return string(KindHealth) }

func (d *HealthData) Validate() map[string]string {
	errs := make(map[string]string)
	if len(d.Members) == 0 {
		errs["members"] = "at least one member is required"
	}

	seen := make(map[string]bool, len(d.Members))
	for i, m := range d.Members {
		if m.ClientID == "" {
			errs[fmt.Sprintf("members.%d.client_id", i)] = "select a client"
		} else if seen[m.ClientID] {
			errs[fmt.Sprintf("members.%d.client_id", i)] = "member already listed"
		} else {
			seen[m.ClientID] = true
		}
		if m.PlanID == "" {
			errs[fmt.Sprintf("members.%d.plan_id", i)] = "select a plan"
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
