package engine

import (
	"strings"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/scoring"
)

// ScorerStats counts pipeline outcomes for the session.
type ScorerStats struct {
	Filtered  int     `json:"filtered"`
	Analyzed  int     `json:"analyzed"`
	Passed    int     `json:"passed"`
	Failed    int     `json:"failed"`
	Honeypots int     `json:"honeypots"`
	HighTax   int     `json:"high_tax"`
	PassRate  float64 `json:"pass_rate"` // percent of analyzed
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() ScorerStats {
	p.statsMu.Lock()
	s := p.stats
	p.statsMu.Unlock()
	if s.Analyzed > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Analyzed) * 100
	}
	return s
}

func (p *Pipeline) count(fn func(*ScorerStats)) {
	p.statsMu.Lock()
	fn(&p.stats)
	p.statsMu.Unlock()
}

func highTax(cfg scoring.Config, c domain.Candidate) bool {
	if t := c.Security.BuyTax; t != nil && *t > cfg.MaxBuyTax {
		return true
	}
	if t := c.Security.SellTax; t != nil && *t > cfg.MaxSellTax {
		return true
	}
	return false
}

// filterLabel turns a quick filter reason into a low-cardinality metric label.
func filterLabel(reason string) string {
	switch {
	case strings.HasPrefix(reason, "liquidity"):
		return "liquidity"
	case strings.HasPrefix(reason, "denylisted"):
		return "denylist"
	}
	return "other"
}
