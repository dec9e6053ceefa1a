package scoring

import (
	"math/rand"
	"testing"

	"dex-pair-sentinel/internal/domain"
)

func TestQuickFilter_Check(t *testing.T) {
	f := NewQuickFilter(DefaultConfig())

	tests := []struct {
		name string
		c    domain.Candidate
		want bool
	}{
		{"good", goodCandidate(), true},
		{"missing liquidity admitted", domain.Candidate{TokenAddress: "abc"}, true},
		{"low liquidity", domain.Candidate{TokenAddress: "abc", LiquidityNative: domain.Ptr(0.5)}, false},
		{"high liquidity", domain.Candidate{TokenAddress: "abc", LiquidityNative: domain.Ptr(10_000.0)}, false},
		{"pump suffix", domain.Candidate{TokenAddress: "Abcpump", LiquidityNative: domain.Ptr(20.0)}, false},
		{"pump factory", domain.Candidate{TokenAddress: "abc", Factory: PumpFunProgram, LiquidityNative: domain.Ptr(20.0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := f.Check(tt.c)
			if ok != tt.want {
				t.Errorf("expected admit=%v, got %v (%s)", tt.want, ok, reason)
			}
			if !ok && reason == "" {
				t.Error("expected reason on rejection")
			}
		})
	}
}

func TestQuickFilter_DenylistDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilterScamFactories = false
	f := NewQuickFilter(cfg)

	if !f.Admits(domain.Candidate{TokenAddress: "Abcpump"}) {
		t.Error("denylist should be inactive when disabled")
	}
}

// Everything the filter rejects must also be rejected by the calculator.
func TestQuickFilter_SubsetOfCalculator(t *testing.T) {
	cfg := DefaultConfig()
	f := NewQuickFilter(cfg)
	calc := NewCalculator(cfg)
	rng := rand.New(rand.NewSource(7))
	addrs := []string{"goodaddr", "Xpump", "another"}
	factories := []string{"", PumpFunProgram, "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"}

	for i := 0; i < 2000; i++ {
		c := goodCandidate()
		c.TokenAddress = addrs[rng.Intn(len(addrs))]
		c.Factory = factories[rng.Intn(len(factories))]
		c.LiquidityNative = domain.Ptr(rng.Float64() * 800)

		if f.Admits(c) {
			continue
		}
		if b := calc.Score(c, DefaultWeights()); !b.Rejected {
			t.Fatalf("filter rejected %+v but calculator accepted with %.2f", c, b.Total)
		}
	}
}
