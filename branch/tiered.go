/*
tiered.go - Branches built on the coverage-level sub-workflow

PURPOSE:
  Accident, life, funeral and transport all collect the same two-phase
  structure: author coverage tiers, then assign insured parties to them.
  Tiered embeds coverage.Set; each branch adds its own fields on top.
*/
package branch

import (
	"fmt"

	"github.com/warp/issuance-engine/coverage"
)

// Tiered is the shared core of the coverage-level branches.
type Tiered struct {
	coverage.Set
}

// =============================================================================
// ACCIDENT
// =============================================================================

// AccidentData is the personal-accident branch payload.
type AccidentData struct {
	Tiered
}

func (*AccidentData) BranchKind() string { return string(KindAccident) }

func (d *AccidentData) Validate() map[string]string { return d.Set.Validate() }

// =============================================================================
// LIFE
// =============================================================================

// Beneficiary receives a share of the life benefit.
type Beneficiary struct {
	Name       string  `json:"name"`
	IDDocument string  `json:"id_document,omitempty"`
	Percentage float64 `json:"percentage"`
}

// LifeData is the life branch payload: tiers plus benefit beneficiaries.
type LifeData struct {
	Tiered
	Beneficiaries []Beneficiary `json:"beneficiaries,omitempty"`
}

func (*LifeData) BranchKind() string { return string(KindLife) }

func (d *LifeData) Validate() map[string]string {
	errs := d.Set.Validate()
	if errs == nil {
		errs = make(map[string]string)
	}

	total := 0.0
	for i, b := range d.Beneficiaries {
		if b.Name == "" {
			errs[fmt.Sprintf("beneficiaries.%d.name", i)] = "beneficiary name is required"
		}
		if b.Percentage <= 0 {
			errs[fmt.Sprintf("beneficiaries.%d.percentage", i)] = "percentage must be greater than zero"
		}
		total += b.Percentage
	}
	if len(d.Beneficiaries) > 0 && total != 100 {
		errs["beneficiaries"] = fmt.Sprintf("beneficiary percentages sum to %.2f, expected 100", total)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// =============================================================================
// FUNERAL
// =============================================================================

type FuneralData struct {
	Tiered
}

func (*FuneralData) BranchKind() string { return string(KindFuneral) }

func (d *FuneralData) Validate() map[string]string { return d.Set.Validate() }

// =============================================================================
// TRANSPORT - Cargo, aviation and marine coverage
// =============================================================================

type Conveyance string

const (
	ConveyanceCargo    Conveyance = "cargo"
	ConveyanceAviation Conveyance = "aviation"
	ConveyanceMarine   Conveyance = "marine"
)

// TransportData covers goods or craft in transit.
type TransportData struct {
	Tiered
	Conveyance           Conveyance `json:"conveyance"`
	OriginCountryID      string     `json:"origin_country_id,omitempty"`
	DestinationCountryID string     `json:"destination_country_id,omitempty"`
}

func (*TransportData) BranchKind() string { return string(KindTransport) }

func (d *TransportData) Validate() map[string]string {
	errs := d.Set.Validate()
	if errs == nil {
		errs = make(map[string]string)
	}

	switch d.Conveyance {
	case ConveyanceCargo, ConveyanceAviation, ConveyanceMarine:
	case "":
		errs["conveyance"] = "select a conveyance"
	default:
		errs["conveyance"] = fmt.Sprintf("unknown conveyance %q", d.Conveyance)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
