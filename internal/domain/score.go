package domain

import "math"

// ScoreRejected is the sentinel total for a short-circuit rejection.
const ScoreRejected = -1.0

// Dimension names a scoring component.
type Dimension string

const (
	DimensionLiquidity Dimension = "liquidity"
	DimensionMarketCap Dimension = "market_cap"
	DimensionSecurity  Dimension = "security"
	DimensionHolders   Dimension = "holders"
	DimensionContract  Dimension = "contract"
)

// Dimensions lists scoring dimensions in evaluation order.
var Dimensions = []Dimension{
	DimensionLiquidity,
	DimensionMarketCap,
	DimensionSecurity,
	DimensionHolders,
	DimensionContract,
}

// ComponentScore is the points awarded for one dimension.
type ComponentScore struct {
	Dimension Dimension `json:"dimension"`
	Points    float64   `json:"points"`
	MaxPoints float64   `json:"max_points"` // dimension weight
	Available bool      `json:"available"`  // false when the metric was missing
	Note      string    `json:"note,omitempty"`
}

// ScoreBreakdown is the derived result of scoring one candidate.
type ScoreBreakdown struct {
	TokenAddress string           `json:"token_address"`
	Components   []ComponentScore `json:"components"`
	Total        float64          `json:"total"`      // 0..100, or ScoreRejected
	WeightSum    float64          `json:"weight_sum"` // ceiling implied by configured weights
	Rejected     bool             `json:"rejected"`
	RejectReason string           `json:"reject_reason,omitempty"`
	Reasons      []string         `json:"reasons,omitempty"`
}

// Points returns points awarded for a dimension, 0 if absent.
func (b ScoreBreakdown) Points(d Dimension) float64 {
	for _, c := range b.Components {
		if c.Dimension == d {
			return c.Points
		}
	}
	return 0
}

// Passes reports whether the breakdown clears threshold.
// A rejected breakdown never passes.
func (b ScoreBreakdown) Passes(threshold float64) bool {
	if b.Rejected {
		return false
	}
	return b.Total >= threshold
}

// Valid reports whether Total is within [0, 100] or the reject sentinel.
func (b ScoreBreakdown) Valid() bool {
	if math.IsNaN(b.Total) {
		return false
	}
	if b.Rejected {
		return b.Total == ScoreRejected
	}
	return b.Total >= 0 && b.Total <= 100
}
