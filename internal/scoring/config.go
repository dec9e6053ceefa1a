package scoring

import (
	"errors"
	"fmt"

	"dex-pair-sentinel/internal/domain"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid scoring config")

// Weights are the points allotted to each dimension. They should sum to 100;
// the calculator does not enforce it and reports WeightSum in the breakdown.
type Weights struct {
	Liquidity float64
	MarketCap float64
	Security  float64
	Holders   float64
	Contract  float64
}

// DefaultWeights returns liquidity 25, market cap 20, security 30, holders 15, contract 10.
func DefaultWeights() Weights {
	return Weights{Liquidity: 25, MarketCap: 20, Security: 30, Holders: 15, Contract: 10}
}

// Of returns the weight of dimension d.
func (w Weights) Of(d domain.Dimension) float64 {
	switch d {
	case domain.DimensionLiquidity:
		return w.Liquidity
	case domain.DimensionMarketCap:
		return w.MarketCap
	case domain.DimensionSecurity:
		return w.Security
	case domain.DimensionHolders:
		return w.Holders
	case domain.DimensionContract:
		return w.Contract
	}
	return 0
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Liquidity + w.MarketCap + w.Security + w.Holders + w.Contract
}

// Config holds ranges and hard limits used by the calculator and quick filter.
// Liquidity is in native units, market cap in quote units, taxes in percent,
// MaxTopHolder as a fraction.
type Config struct {
	MinLiquidity        float64
	MaxLiquidity        float64
	OptimalLiquidityMin float64
	OptimalLiquidityMax float64

	MarketCapMin        float64
	MarketCapMax        float64
	MarketCapUpperLimit float64

	MaxTopHolder float64

	MaxBuyTax        float64
	MaxSellTax       float64
	RequireRenounced bool

	FilterScamFactories bool
	Denylist            Denylist
}

// DefaultConfig returns the balanced defaults.
func DefaultConfig() Config {
	return Config{
		MinLiquidity:        5,
		MaxLiquidity:        500,
		OptimalLiquidityMin: 15,
		OptimalLiquidityMax: 100,
		MarketCapMin:        5_000,
		MarketCapMax:        300_000,
		MarketCapUpperLimit: 500_000,
		MaxTopHolder:        0.70,
		MaxBuyTax:           10,
		MaxSellTax:          15,
		FilterScamFactories: true,
		Denylist:            DefaultDenylist(),
	}
}

// Validate checks that ranges are ordered and limits are sane.
func (c Config) Validate() error {
	switch {
	case c.MinLiquidity < 0:
		return fmt.Errorf("%w: min liquidity %.2f < 0", ErrInvalidConfig, c.MinLiquidity)
	case c.MinLiquidity > c.OptimalLiquidityMin:
		return fmt.Errorf("%w: min liquidity %.2f above optimal min %.2f", ErrInvalidConfig, c.MinLiquidity, c.OptimalLiquidityMin)
	case c.OptimalLiquidityMin > c.OptimalLiquidityMax:
		return fmt.Errorf("%w: optimal liquidity range [%.2f, %.2f] inverted", ErrInvalidConfig, c.OptimalLiquidityMin, c.OptimalLiquidityMax)
	case c.OptimalLiquidityMax > c.MaxLiquidity:
		return fmt.Errorf("%w: optimal liquidity max %.2f above max %.2f", ErrInvalidConfig, c.OptimalLiquidityMax, c.MaxLiquidity)
	case c.MarketCapMin < 0 || c.MarketCapMin > c.MarketCapMax:
		return fmt.Errorf("%w: market cap range [%.0f, %.0f] invalid", ErrInvalidConfig, c.MarketCapMin, c.MarketCapMax)
	case c.MarketCapMax > c.MarketCapUpperLimit:
		return fmt.Errorf("%w: market cap max %.0f above upper limit %.0f", ErrInvalidConfig, c.MarketCapMax, c.MarketCapUpperLimit)
	case c.MaxTopHolder <= 0 || c.MaxTopHolder > 1:
		return fmt.Errorf("%w: max top holder %.2f not in (0, 1]", ErrInvalidConfig, c.MaxTopHolder)
	case c.MaxBuyTax < 0 || c.MaxSellTax < 0:
		return fmt.Errorf("%w: negative tax ceiling", ErrInvalidConfig)
	}
	return nil
}
