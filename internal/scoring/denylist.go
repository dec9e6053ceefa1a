package scoring

import (
	"strings"

	"dex-pair-sentinel/internal/domain"
)

// PumpFunProgram is the pump.fun bonding-curve program id.
const PumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// Denylist identifies pairs created by known scam factories.
type Denylist struct {
	TokenSuffixes []string            // vanity mint suffixes, e.g. "pump"
	Factories     map[string]struct{} // factory / program addresses
}

// DefaultDenylist rejects pump.fun launches.
func DefaultDenylist() Denylist {
	return Denylist{
		TokenSuffixes: []string{"pump"},
		Factories:     map[string]struct{}{PumpFunProgram: {}},
	}
}

// Match returns a reason when the candidate comes from a denylisted source.
func (d Denylist) Match(c domain.Candidate) (string, bool) {
	if c.Factory != "" {
		if _, ok := d.Factories[c.Factory]; ok {
			return "denylisted factory " + c.Factory, true
		}
	}
	for _, s := range d.TokenSuffixes {
		if s != "" && strings.HasSuffix(c.TokenAddress, s) {
			return "denylisted token suffix " + s, true
		}
	}
	return "", false
}
