/*
Package coverage implements the reusable coverage-level sub-workflow shared
by the tiered branches (accident, life, funeral, transport).

PURPOSE:
  Branches with tiered benefits collect data in two phases:
  - Phase A: the operator authors named coverage levels (tiers), each
    enabling a subset of benefit kinds with an insured amount per benefit.
  - Phase B: insured parties found through the client-search collaborator
    are bound to exactly one tier.

KEY CONCEPTS:
  Level:
    A named tier. To be saved it needs at least one enabled benefit, and
    every enabled benefit needs an amount > 0.

  Assignment:
    Binds one client to one tier. Assignments reference tiers, they never
    own them: editing a tier after assignments exist does NOT revalidate
    those assignments.

  Set:
    The per-branch collection of levels and assignments with the
    referential rules: a tier cannot be deleted while assignments point at
    it (rejected with the blocking count), a client cannot be assigned
    twice, and an assignment must point at an existing tier.

EXAMPLE:
  set := coverage.NewSet()
  level, err := set.SaveLevel(coverage.Level{
      Name: "Plan A",
      Coverages: map[coverage.BenefitKind]coverage.Benefit{
          coverage.BenefitDeath: {Enabled: true, Amount: decimal.NewFromInt(50000)},
      },
  })
  err = set.Assign(coverage.Assignment{ClientID: "cli-1", Name: "Ana", LevelID: level.ID})

SEE ALSO:
  - branch/tiered.go: embeds Set into the tiered branch payloads
*/
package coverage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// BENEFITS AND LEVELS
// =============================================================================

// BenefitKind identifies one insurable benefit within a tier.
type BenefitKind string

const (
	BenefitDeath           BenefitKind = "death"
	BenefitDisability      BenefitKind = "disability"
	BenefitMedicalExpenses BenefitKind = "medical_expenses"
	BenefitFuneralExpenses BenefitKind = "funeral_expenses"
	BenefitRepatriation    BenefitKind = "repatriation"
	BenefitHullDamage      BenefitKind = "hull_damage"
	BenefitCargoLoss       BenefitKind = "cargo_loss"
)

// Benefit is one entry inside a tier: switched on or off, with the insured
// amount when enabled.
type Benefit struct {
	Enabled bool            `json:"enabled"`
	Amount  decimal.Decimal `json:"amount"`
}

// Level is a named coverage tier.
type Level struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Coverages    map[BenefitKind]Benefit `json:"coverages"`
	LevelPremium decimal.Decimal         `json:"level_premium,omitempty"`
}

// Validate enforces the save invariant: at least one enabled benefit, and
// every enabled benefit with a positive amount. Violations surface under
// the general "level" key so the UI can show them at the top of the form.
func (l Level) Validate() map[string]string {
	errs := make(map[string]string)
	if l.Name == "" {
		errs["name"] = "a level name is required"
	}

	enabled := 0
	for kind, b := range l.Coverages {
		if !b.Enabled {
			continue
		}
		enabled++
		if !b.Amount.IsPositive() {
			errs[fmt.Sprintf("coverages.%s.amount", kind)] = "enabled coverage needs an amount greater than zero"
		}
	}
	if enabled == 0 {
		errs["level"] = "at least one coverage must be enabled"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// Assignment binds an insured party to exactly one tier.
type Assignment struct {
	ClientID   string `json:"client_id"`
	Name       string `json:"name"`
	IDDocument string `json:"id_document,omitempty"`
	LevelID    string `json:"level_id"`
	Role       string `json:"role,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidLevel is returned when a level fails its save invariant.
	ErrInvalidLevel = errors.New("invalid coverage level")

	// ErrLevelNotFound is returned when a level id does not exist in the set.
	ErrLevelNotFound = errors.New("coverage level not found")

	// ErrLevelInUse is returned when deleting a level that assignments
	// still reference.
	ErrLevelInUse = errors.New("coverage level referenced by assignments")

	// ErrDuplicateClient is returned when a client is assigned twice within
	// one policy.
	ErrDuplicateClient = errors.New("client already assigned to a level")

	// ErrNoLevels is returned when assignment starts before any tier exists.
	ErrNoLevels = errors.New("define at least one coverage level first")

	// ErrAssignmentNotFound is returned when unassigning an unknown client.
	ErrAssignmentNotFound = errors.New("assignment not found")
)

// InvalidLevelError carries the field-level violations of a rejected save.
type InvalidLevelError struct {
	Fields map[string]string
}

func (e *InvalidLevelError) Error() string {
	return fmt.Sprintf("invalid coverage level: %d field(s)", len(e.Fields))
}

func (e *InvalidLevelError) Unwrap() error { return ErrInvalidLevel }

// LevelInUseError reports how many assignments block a deletion.
type LevelInUseError struct {
	LevelID string
	Count   int
}

func (e *LevelInUseError) Error() string {
	return fmt.Sprintf("level %s referenced by %d assignment(s)", e.LevelID, e.Count)
}

func (e *LevelInUseError) Unwrap() error { return ErrLevelInUse }

// =============================================================================
// SET - Per-branch levels + assignments
// =============================================================================

// Set holds the tiers and assignments of one branch payload. It is plain
// data mutated from the wizard's single logical thread; no locking here.
type Set struct {
	Levels      []Level      `json:"levels"`
	Assignments []Assignment `json:"assignments"`
}

func NewSet() *Set { return &Set{} }

// SaveLevel creates or updates a tier. New tiers get a generated id.
// The save invariant is enforced here; editing a tier never revalidates
// assignments already made against it.
func (s *Set) SaveLevel(l Level) (Level, error) {
	if fields := l.Validate(); fields != nil {
		return Level{}, &InvalidLevelError{Fields: fields}
	}

	if l.ID == "" {
		l.ID = uuid.NewString()
		s.Levels = append(s.Levels, l)
		return l, nil
	}

	for i := range s.Levels {
		if s.Levels[i].ID == l.ID {
			s.Levels[i] = l
			return l, nil
		}
	}
	return Level{}, fmt.Errorf("%w: %s", ErrLevelNotFound, l.ID)
}

// DeleteLevel removes a tier. Rejected with the blocking count while any
// assignment still references it.
func (s *Set) DeleteLevel(id string) error {
	count := 0
	for _, a := range s.Assignments {
		if a.LevelID == id {
			count++
		}
	}
	if count > 0 {
		return &LevelInUseError{LevelID: id, Count: count}
	}

	for i := range s.Levels {
		if s.Levels[i].ID == id {
			s.Levels = append(s.Levels[:i], s.Levels[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrLevelNotFound, id)
}

// Level returns the tier with the given id.
func (s *Set) Level(id string) (Level, bool) {
	for _, l := range s.Levels {
		if l.ID == id {
			return l, true
		}
	}
	return Level{}, false
}

// CanAssign gates Phase B: at least one tier must exist.
func (s *Set) CanAssign() bool { return len(s.Levels) > 0 }

// Assign binds a client to a tier.
func (s *Set) Assign(a Assignment) error {
	if !s.CanAssign() {
		return ErrNoLevels
	}
	if _, ok := s.Level(a.LevelID); !ok {
		return fmt.Errorf("%w: %s", ErrLevelNotFound, a.LevelID)
	}
	for _, existing := range s.Assignments {
		if existing.ClientID == a.ClientID {
			return fmt.Errorf("%w: %s", ErrDuplicateClient, a.ClientID)
		}
	}
	s.Assignments = append(s.Assignments, a)
	return nil
}

// Unassign removes a client's binding.
func (s *Set) Unassign(clientID string) error {
	for i := range s.Assignments {
		if s.Assignments[i].ClientID == clientID {
			s.Assignments = append(s.Assignments[:i], s.Assignments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrAssignmentNotFound, clientID)
}

// Validate checks the whole set for the step validator: every assignment
// must reference an existing tier (a tier deleted through other means
// would otherwise dangle).
func (s *Set) Validate() map[string]string {
	errs := make(map[string]string)
	if len(s.Levels) == 0 {
		errs["levels"] = "at least one coverage level is required"
	}
	for _, a := range s.Assignments {
		if _, ok := s.Level(a.LevelID); !ok {
			errs[fmt.Sprintf("assignments.%s", a.ClientID)] = "assigned level no longer exists"
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
