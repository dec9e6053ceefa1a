package executor

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
)

// Execution errors.
var (
	// ErrNoPrice is returned when no price is available to fill an order.
	ErrNoPrice = errors.New("no price available")

	// ErrInvalidAmount is returned for a non-positive order size.
	ErrInvalidAmount = errors.New("invalid order amount")
)

// BuyResult is a confirmed buy fill.
type BuyResult struct {
	TxID     string
	Cost     decimal.Decimal // native units spent incl. fees
	Quantity float64         // tokens received
	Price    float64         // effective native price per token
	At       time.Time
}

// SellResult is a confirmed sell fill.
type SellResult struct {
	TxID     string
	Proceeds decimal.Decimal // native units received after fees
	Price    float64
	At       time.Time
}

// Executor signs and broadcasts trades. Both calls must be safe to retry:
// a repeated Sell for an already-sold position may report success again.
type Executor interface {
	Buy(ctx context.Context, c domain.Candidate, amount decimal.Decimal) (*BuyResult, error)
	Sell(ctx context.Context, p *domain.Position) (*SellResult, error)
}

// PriceSource returns the current native price of a token.
type PriceSource interface {
	Price(ctx context.Context, tokenAddress string) (float64, error)
}
