/*
commission.go - Net premium and commission math

PURPOSE:
  ComputeCommission applies a product's factor table and the responsible
  agent's commission share to a premium amount. Pure and side-effect free:
  callers re-invoke it (never cache) whenever amount, mode, factors or
  share change.

LEGACY FALLBACK:
  When no product factor table is available the calculator falls back to
  the fixed legacy formula (87% net-premium factor, 2% commission). The
  result is flagged Degraded so the caller can surface a degraded
  calculation notice. Deprecated: kept only for products whose factor
  tables have not been migrated.
*/
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FACTOR TABLE - Per-product, read-only, owned by the catalog
// =============================================================================

// FactorTable holds a product's commission factors. Cash/credit factors
// are percentages (90 means 90%); CommissionRate is a fraction (0.03).
type FactorTable struct {
	CashFactor     decimal.Decimal `json:"cash_factor"`
	CreditFactor   decimal.Decimal `json:"credit_factor"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// FactorFor selects the factor matching the payment mode.
func (t FactorTable) FactorFor(mode Mode) decimal.Decimal {
	if mode == ModeCredit {
		return t.CreditFactor
	}
	return t.CashFactor
}

// FactorSource looks up the factor table for a product. A miss is not an
// error: (nil, nil) means the product has no table and the legacy formula
// applies.
type FactorSource interface {
	FactorsFor(ctx context.Context, productID string) (*FactorTable, error)
}

// =============================================================================
// COMMISSION CALCULATION
// =============================================================================

// Legacy formula constants. Deprecated: compatibility shim for products
// without a factor table.
var (
	legacyNetFactor      = decimal.NewFromInt(87)
	legacyCommissionRate = decimal.NewFromFloat(0.02)
)

var oneHundred = decimal.NewFromInt(100)

// CommissionResult is the derived money triple. Degraded marks results
// produced by the legacy fallback.
type CommissionResult struct {
	NetPremium       decimal.Decimal `json:"net_premium"`
	BrokerCommission decimal.Decimal `json:"broker_commission"`
	AgentCommission  decimal.Decimal `json:"agent_commission"`
	Degraded         bool            `json:"degraded,omitempty"`
}

// ComputeCommission derives net premium and commissions.
//
//	netPremium       = amount * factorFor(mode) / 100
//	brokerCommission = amount * commissionRate
//	agentCommission  = brokerCommission * userShare
//
// userShare is a fraction in [0, 1], so agentCommission never exceeds
// brokerCommission.
func ComputeCommission(amount decimal.Decimal, mode Mode, factors *FactorTable, userShare decimal.Decimal) CommissionResult {
	netFactor := legacyNetFactor
	rate := legacyCommissionRate
	degraded := true

	if factors != nil {
		netFactor = factors.FactorFor(mode)
		rate = factors.CommissionRate
		degraded = false
	}

	broker := amount.Mul(rate).Round(2)
	return CommissionResult{
		NetPremium:       amount.Mul(netFactor).Div(oneHundred).Round(2),
		BrokerCommission: broker,
		AgentCommission:  broker.Mul(userShare).Round(2),
		Degraded:         degraded,
	}
}
