package scoring

import (
	"fmt"

	"dex-pair-sentinel/internal/domain"
)

// QuickFilter is a cheap pre-screen over metrics already present on the
// candidate. It only rejects what the Calculator built from the same Config
// would also reject, so it never costs an opportunity under that config.
type QuickFilter struct {
	cfg Config
}

// NewQuickFilter creates a QuickFilter.
func NewQuickFilter(cfg Config) *QuickFilter {
	return &QuickFilter{cfg: cfg}
}

// Admits reports whether the candidate is worth expensive checks.
func (f *QuickFilter) Admits(c domain.Candidate) bool {
	ok, _ := f.Check(c)
	return ok
}

// Check is Admits with the rejection reason.
// Missing liquidity is admitted; enrichment may still fill it in.
func (f *QuickFilter) Check(c domain.Candidate) (bool, string) {
	if l := c.LiquidityNative; l != nil {
		if *l < f.cfg.MinLiquidity {
			return false, fmt.Sprintf("liquidity %.2f below minimum %.2f", *l, f.cfg.MinLiquidity)
		}
		if *l > f.cfg.MaxLiquidity {
			return false, fmt.Sprintf("liquidity %.2f above maximum %.2f", *l, f.cfg.MaxLiquidity)
		}
	}
	if f.cfg.FilterScamFactories {
		if reason, hit := f.cfg.Denylist.Match(c); hit {
			return false, reason
		}
	}
	return true, ""
}
