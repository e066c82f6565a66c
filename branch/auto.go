package branch

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AUTO - Vehicle rows
// =============================================================================

// Vehicle is one insured vehicle row.
type Vehicle struct {
	Plate         string          `json:"plate"`
	BrandID       string          `json:"brand_id,omitempty"`
	Model         string          `json:"model,omitempty"`
	Year          int             `json:"year,omitempty"`
	VehicleTypeID string          `json:"vehicle_type_id"`
	SumInsured    decimal.Decimal `json:"sum_insured"`
}

// AutoData is the auto branch payload.
type AutoData struct {
	Vehicles []Vehicle `json:"vehicles"`
}

func (*AutoData) BranchKind() string { return string(KindAuto) }

func (d *AutoData) Validate() map[string]string {
	errs := make(map[string]string)
	if len(d.Vehicles) == 0 {
		errs["vehicles"] = "at least one vehicle is required"
	}

	plates := make(map[string]bool, len(d.Vehicles))
	for i, v := range d.Vehicles {
		if v.Plate == "" {
			errs[fmt.Sprintf("vehicles.%d.plate", i)] = "plate is required"
		} else if plates[v.Plate] {
			errs[fmt.Sprintf("vehicles.%d.plate", i)] = "duplicate plate"
		} else {
			plates[v.Plate] = true
		}
		if v.VehicleTypeID == "" {
			errs[fmt.Sprintf("vehicles.%d.vehicle_type_id", i)] = "select a vehicle type"
		}
		if !v.SumInsured.IsPositive() {
			errs[fmt.Sprintf("vehicles.%d.sum_insured", i)] = "sum insured must be greater than zero"
		}
		if v.Year != 0 && (v.Year < 1950 || v.Year > time.Now().Year()+1) {
			errs[fmt.Sprintf("vehicles.%d.year", i)] = "implausible vehicle year"
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
