/*
Package branch defines the closed set of insurance branches ("ramos") and
their step-3 payloads.

PURPOSE:
  Each branch collects different data: auto carries vehicle rows, health
  carries member rows, and the tiered branches (accident, life, funeral,
  transport) embed the coverage-level sub-workflow. The wizard sees all of
  them through the BranchData interface.

DISPATCH:
  Branch payloads are selected through an explicit dispatch table keyed by
  the branch tag, never by string pattern-matching on branch names. An
  unknown tag is a hard error, so there is no silent "no branch matched"
  fallthrough.

USAGE:
  data, err := branch.New("accident")        // fresh payload
  data, err := branch.Decode("auto", raw)    // from JSON

SEE ALSO:
  - tiered.go: the coverage-level branches
  - auto.go, health.go: the row-based branches
  - codec.go: draft snapshot serialization for the stores
*/
package branch

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/warp/issuance-engine/wizard"
)

// =============================================================================
// KINDS
// =============================================================================

type Kind string

const (
	KindAuto      Kind = "auto"
	KindAccident  Kind = "accident"
	KindLife      Kind = "life"
	KindHealth    Kind = "health"
	KindFuneral   Kind = "funeral"
	KindTransport Kind = "transport"
)

// ErrUnknownBranch is returned for a tag outside the closed set.
var ErrUnknownBranch = errors.New("unknown branch")

// registry is the dispatch table: tag -> empty payload constructor.
var registry = map[Kind]func() wizard.BranchData{
	KindAuto:      func() wizard.BranchData { return &AutoData{} },
	KindAccident:  func() wizard.BranchData { return &AccidentData{} },
	KindLife:      func() wizard.BranchData { return &LifeData{} },
	KindHealth:    func() wizard.BranchData { return &HealthData{} },
	KindFuneral:   func() wizard.BranchData { return &FuneralData{} },
	KindTransport: func() wizard.BranchData { return &TransportData{} },
}

// Kinds returns the closed set of branch tags.
func Kinds() []Kind {
	return []Kind{KindAuto, KindAccident, KindLife, KindHealth, KindFuneral, KindTransport}
}

// Known reports whether the tag is in the closed set.
func Known(kind string) bool {
	_, ok := registry[Kind(kind)]
	return ok
}

// New returns a fresh payload for the tag.
func New(kind string) (wizard.BranchData, error) {
	ctor, ok := registry[Kind(kind)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBranch, kind)
	}
	return ctor(), nil
}

// Decode unmarshals a payload for the tag.
func Decode(kind string, raw []byte) (wizard.BranchData, error) {
	data, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return data, nil
}
