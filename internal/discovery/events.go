package discovery

import (
	"math"
	"time"

	"dex-pair-sentinel/internal/solana"
)

// PoolEvent is a newly initialized AMM pool.
type PoolEvent struct {
	Signature string
	Slot      int64
	BlockTime time.Time
	Program   string

	Pool      string
	BaseMint  string // the new token
	QuoteMint string

	BaseAmount    uint64 // initial reserves, raw units
	QuoteAmount   uint64
	BaseDecimals  int // -1 when unknown
	QuoteDecimals int
	OpenTime      time.Time
}

// SOLQuoted reports whether the pool is quoted in wrapped SOL.
func (e *PoolEvent) SOLQuoted() bool {
	return e.QuoteMint == solana.WrappedSOL
}

// QuoteLiquidity returns the quote-side reserve in whole units.
func (e *PoolEvent) QuoteLiquidity() float64 {
	return scale(e.QuoteAmount, e.QuoteDecimals)
}

// Price returns quote units per base token. ok is false when decimals are
// unknown or a reserve is empty.
func (e *PoolEvent) Price() (float64, bool) {
	if e.BaseDecimals < 0 || e.QuoteDecimals < 0 || e.BaseAmount == 0 || e.QuoteAmount == 0 {
		return 0, false
	}
	return scale(e.QuoteAmount, e.QuoteDecimals) / scale(e.BaseAmount, e.BaseDecimals), true
}

func scale(raw uint64, decimals int) float64 {
	if decimals < 0 {
		return 0
	}
	return float64(raw) / math.Pow10(decimals)
}
