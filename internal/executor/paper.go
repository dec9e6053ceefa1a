package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
)

// PaperOptions configures a PaperExecutor.
type PaperOptions struct {
	Prices       PriceSource   // optional; candidate price is used for buys when nil
	FeeFraction  float64       // applied on both legs, e.g. 0.0025
	ExitMultiple float64       // fallback sell price = entry * ExitMultiple when no quote (default 1.5)
	Latency      time.Duration // simulated confirmation delay
	Clock        func() time.Time
	Logger       *log.Logger
}

// PaperExecutor fills orders against quoted prices without touching the chain.
type PaperExecutor struct {
	opts PaperOptions
}

// NewPaperExecutor creates a dry-run executor.
func NewPaperExecutor(opts PaperOptions) *PaperExecutor {
	if opts.ExitMultiple <= 0 {
		opts.ExitMultiple = 1.5
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &PaperExecutor{opts: opts}
}

// Buy simulates a market buy of amount native units.
func (e *PaperExecutor) Buy(ctx context.Context, c domain.Candidate, amount decimal.Decimal) (*BuyResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if err := e.wait(ctx); err != nil {
		return nil, err
	}

	price, err := e.buyPrice(ctx, c)
	if err != nil {
		return nil, err
	}

	spend, _ := amount.Float64()
	qty := spend * (1 - e.opts.FeeFraction) / price
	e.opts.Logger.Printf("paper buy %s: %s SOL @ %.10f -> %.2f tokens", c.TokenAddress, amount, price, qty)

	return &BuyResult{
		TxID:     "paper-" + uuid.NewString(),
		Cost:     amount,
		Quantity: qty,
		Price:    price,
		At:       e.opts.Clock(),
	}, nil
}

// Sell simulates selling the whole position.
func (e *PaperExecutor) Sell(ctx context.Context, p *domain.Position) (*SellResult, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}

	price := 0.0
	if e.opts.Prices != nil {
		if q, err := e.opts.Prices.Price(ctx, p.TokenAddress); err == nil && q > 0 {
			price = q
		}
	}
	if price <= 0 && p.LastPrice > 0 {
		price = p.LastPrice
	}
	if price <= 0 {
		price = p.EntryPrice * e.opts.ExitMultiple
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, p.TokenAddress)
	}

	proceeds := decimal.NewFromFloat(p.TokenQuantity * price * (1 - e.opts.FeeFraction)).Round(9)
	e.opts.Logger.Printf("paper sell %s: %.2f tokens @ %.10f -> %s SOL", p.TokenAddress, p.TokenQuantity, price, proceeds)

	return &SellResult{
		TxID:     "paper-" + uuid.NewString(),
		Proceeds: proceeds,
		Price:    price,
		At:       e.opts.Clock(),
	}, nil
}

func (e *PaperExecutor) buyPrice(ctx context.Context, c domain.Candidate) (float64, error) {
	if e.opts.Prices != nil {
		if q, err := e.opts.Prices.Price(ctx, c.TokenAddress); err == nil && q > 0 {
			return q, nil
		}
	}
	if c.PriceNative != nil && *c.PriceNative > 0 {
		return *c.PriceNative, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrNoPrice, c.TokenAddress)
}

func (e *PaperExecutor) wait(ctx context.Context) error {
	if e.opts.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.opts.Latency):
		return nil
	}
}

var _ Executor = (*PaperExecutor)(nil)
