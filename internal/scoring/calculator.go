package scoring

import (
	"fmt"
	"math"

	"dex-pair-sentinel/internal/domain"
)

// rejectRule is a hard disqualifier checked before any points are summed.
type rejectRule struct {
	name  string
	check func(c domain.Candidate) (string, bool)
}

// flagRule awards a fraction of the security weight when the flag is true.
type flagRule struct {
	label    string
	fraction float64
	get      func(f domain.SecurityFlags) *bool
}

var securityRules = []flagRule{
	{label: "mint authority revoked", fraction: 0.5, get: func(f domain.SecurityFlags) *bool { return f.OwnershipRenounced }},
	{label: "freeze authority revoked", fraction: 0.5, get: func(f domain.SecurityFlags) *bool { return f.FreezeRevoked }},
}

// Calculator scores candidates. It holds no mutable state; build a new one to
// swap ranges at runtime.
type Calculator struct {
	cfg       Config
	liquidity Table
	marketCap Table
	holders   Table
	rejects   []rejectRule
}

// NewCalculator builds range tables and reject rules from cfg.
func NewCalculator(cfg Config) *Calculator {
	c := &Calculator{
		cfg:       cfg,
		liquidity: LiquidityTable(cfg),
		marketCap: MarketCapTable(cfg),
		holders:   HolderTable(cfg),
	}
	c.rejects = c.buildRejectRules()
	return c
}

// Config returns the configuration the calculator was built from.
func (c *Calculator) Config() Config {
	return c.cfg
}

// buildRejectRules returns the ordered hard checks. First failing rule sets the reason.
func (c *Calculator) buildRejectRules() []rejectRule {
	cfg := c.cfg
	rules := []rejectRule{
		{name: "honeypot", check: func(cd domain.Candidate) (string, bool) {
			if cd.IsHoneypot() {
				return "honeypot: sell simulation failed", true
			}
			return "", false
		}},
		{name: "buy_tax", check: func(cd domain.Candidate) (string, bool) {
			if t := cd.Security.BuyTax; t != nil && *t > cfg.MaxBuyTax {
				return fmt.Sprintf("buy tax %.1f%% above %.1f%%", *t, cfg.MaxBuyTax), true
			}
			return "", false
		}},
		{name: "sell_tax", check: func(cd domain.Candidate) (string, bool) {
			if t := cd.Security.SellTax; t != nil && *t > cfg.MaxSellTax {
				return fmt.Sprintf("sell tax %.1f%% above %.1f%%", *t, cfg.MaxSellTax), true
			}
			return "", false
		}},
		{name: "top_holder", check: func(cd domain.Candidate) (string, bool) {
			if h := cd.TopHolderPct; h != nil && *h > cfg.MaxTopHolder {
				return fmt.Sprintf("top holder %.1f%% above %.1f%%", *h*100, cfg.MaxTopHolder*100), true
			}
			return "", false
		}},
		{name: "liquidity", check: func(cd domain.Candidate) (string, bool) {
			if l := cd.LiquidityNative; l != nil {
				if b, ok := c.liquidity.Lookup(*l); ok && b.Reject {
					return fmt.Sprintf("%s (%.2f)", b.Label, *l), true
				}
			}
			return "", false
		}},
	}
	if cfg.RequireRenounced {
		rules = append(rules, rejectRule{name: "renounced", check: func(cd domain.Candidate) (string, bool) {
			if r := cd.Security.OwnershipRenounced; r == nil || !*r {
				return "ownership not renounced", true
			}
			return "", false
		}})
	}
	if cfg.FilterScamFactories {
		rules = append(rules, rejectRule{name: "denylist", check: cfg.Denylist.Match})
	}
	return rules
}

// Score maps candidate metrics to a weighted quality score. It never fails:
// missing metrics earn zero points for their dimension.
func (c *Calculator) Score(cd domain.Candidate, w Weights) domain.ScoreBreakdown {
	b := domain.ScoreBreakdown{
		TokenAddress: cd.TokenAddress,
		WeightSum:    w.Sum(),
	}

	b.Components = []domain.ComponentScore{
		scoreTable(domain.DimensionLiquidity, c.liquidity, cd.LiquidityNative, w.Liquidity),
		scoreTable(domain.DimensionMarketCap, c.marketCap, cd.MarketCap, w.MarketCap),
		scoreSecurity(cd.Security, w.Security),
		scoreTable(domain.DimensionHolders, c.holders, cd.TopHolderPct, w.Holders),
		scoreContract(cd.Security.Verified, w.Contract),
	}

	var total float64
	for _, comp := range b.Components {
		total += comp.Points
		if comp.Note != "" {
			b.Reasons = append(b.Reasons, comp.Note)
		}
	}
	b.Total = clamp(round2(total), 0, 100)

	for _, r := range c.rejects {
		if reason, hit := r.check(cd); hit {
			b.Rejected = true
			b.RejectReason = reason
			b.Total = domain.ScoreRejected
			break
		}
	}
	return b
}

func scoreTable(d domain.Dimension, t Table, v *float64, weight float64) domain.ComponentScore {
	cs := domain.ComponentScore{Dimension: d, MaxPoints: weight}
	if v == nil {
		cs.Note = string(d) + " unavailable"
		return cs
	}
	cs.Available = true
	band, ok := t.Lookup(*v)
	if !ok {
		cs.Note = fmt.Sprintf("%s out of range (%g)", d, *v)
		return cs
	}
	if !band.Reject {
		cs.Points = round2(weight * band.Fraction)
	}
	cs.Note = band.Label
	return cs
}

func scoreSecurity(f domain.SecurityFlags, weight float64) domain.ComponentScore {
	cs := domain.ComponentScore{Dimension: domain.DimensionSecurity, MaxPoints: weight}
	var frac float64
	for _, r := range securityRules {
		v := r.get(f)
		if v == nil {
			continue
		}
		cs.Available = true
		if *v {
			frac += r.fraction
		}
	}
	if !cs.Available {
		cs.Note = "security flags unavailable"
	}
	cs.Points = round2(weight * frac)
	return cs
}

func scoreContract(verified *bool, weight float64) domain.ComponentScore {
	cs := domain.ComponentScore{Dimension: domain.DimensionContract, MaxPoints: weight}
	switch {
	case verified == nil:
		cs.Note = "verification unavailable"
	case *verified:
		cs.Available = true
		cs.Points = weight
	default:
		cs.Available = true
		cs.Points = round2(weight * 0.5)
		cs.Note = "contract not verified"
	}
	return cs
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
