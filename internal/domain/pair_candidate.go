package domain

import "time"

// Candidate is an immutable snapshot of a newly observed token/pair under evaluation.
// Every metric is optional: nil means the collaborator could not supply it.
// Re-evaluation produces a new snapshot; a Candidate is never mutated after scoring.
type Candidate struct {
	TokenAddress string // token mint address
	PairAddress  string // pool / pair address
	Symbol       string // ticker, informational
	DEX          string // dex identifier (raydium, pumpswap, ...)
	Factory      string // pool factory / program that created the pair

	LiquidityNative *float64 // pool liquidity in native currency units (SOL)
	MarketCap       *float64 // market capitalization in quote units (USD)
	PriceNative     *float64 // token price in native units
	TopHolderPct    *float64 // largest holder share of supply, fraction 0..1

	Security SecurityFlags

	PairCreatedAt time.Time // zero if unknown
	ObservedAt    time.Time // snapshot time, monotonic per token
}

// SecurityFlags are boolean and tax checks supplied by an external collaborator.
type SecurityFlags struct {
	OwnershipRenounced *bool    // mint authority revoked
	FreezeRevoked      *bool    // freeze authority revoked
	Verified           *bool    // contract/metadata verified
	Sellable           *bool    // sell simulation succeeded; false means honeypot
	BuyTax             *float64 // percent
	SellTax            *float64 // percent
}

// IsHoneypot reports whether sell simulation proved the token cannot be resold.
// Unknown sellability is not a honeypot.
func (c Candidate) IsHoneypot() bool {
	return c.Security.Sellable != nil && !*c.Security.Sellable
}

// Age returns time since pair creation, or 0 if creation time is unknown.
func (c Candidate) Age(now time.Time) time.Duration {
	if c.PairCreatedAt.IsZero() || now.Before(c.PairCreatedAt) {
		return 0
	}
	return now.Sub(c.PairCreatedAt)
}

// Ptr returns a pointer to v. Handy for building candidates with optional metrics.
func Ptr[T any](v T) *T {
	return &v
}
