package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/executor"
)

// ErrScripted is the default failure returned when a call is scripted to fail.
var ErrScripted = errors.New("scripted failure")

// Executor implements executor.Executor for testing.
// Buys fill at BuyPrice; sells fill at SellPrice.
type Executor struct {
	mu sync.Mutex

	BuyPrice  float64
	SellPrice float64

	// BuyCost, when positive, is reported as the fill cost instead of the
	// requested amount.
	BuyCost decimal.Decimal

	BuyErr   error
	SellErrs []error // consumed in order; nil entries succeed

	// Block, when non-nil, makes Sell wait on it or on ctx.
	Block chan struct{}

	buys  int
	sells map[string]int
}

// NewExecutor creates a stub that fills at the given prices.
func NewExecutor(buyPrice, sellPrice float64) *Executor {
	return &Executor{
		BuyPrice:  buyPrice,
		SellPrice: sellPrice,
		sells:     make(map[string]int),
	}
}

// Buy fills amount at BuyPrice.
func (e *Executor) Buy(ctx context.Context, c domain.Candidate, amount decimal.Decimal) (*executor.BuyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buys++
	if e.BuyErr != nil {
		return nil, e.BuyErr
	}
	cost := amount
	if e.BuyCost.IsPositive() {
		cost = e.BuyCost
	}
	spend, _ := amount.Float64()
	return &executor.BuyResult{
		TxID:     fmt.Sprintf("buy-%d", e.buys),
		Cost:     cost,
		Quantity: spend / e.BuyPrice,
		Price:    e.BuyPrice,
		At:       time.Now(),
	}, nil
}

// Sell fills the whole position at SellPrice.
func (e *Executor) Sell(ctx context.Context, p *domain.Position) (*executor.SellResult, error) {
	e.mu.Lock()
	e.sells[p.ID]++
	var err error
	if len(e.SellErrs) > 0 {
		err = e.SellErrs[0]
		e.SellErrs = e.SellErrs[1:]
	}
	block := e.Block
	price := e.SellPrice
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &executor.SellResult{
		TxID:     "sell-" + p.ID,
		Proceeds: decimal.NewFromFloat(p.TokenQuantity * price).Round(9),
		Price:    price,
		At:       time.Now(),
	}, nil
}

// SetBlock replaces the channel Sell waits on. nil stops blocking.
func (e *Executor) SetBlock(ch chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Block = ch
}

// FailNextSells scripts the next Sell calls to return the given errors.
func (e *Executor) FailNextSells(errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SellErrs = append(e.SellErrs, errs...)
}

// Buys returns the number of Buy calls.
func (e *Executor) Buys() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buys
}

// Sells returns the number of Sell calls for a position.
func (e *Executor) Sells(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sells[id]
}

// SetBuyCost changes the reported cost of the next buys.
func (e *Executor) SetBuyCost(c decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.BuyCost = c
}

// SetSellPrice changes the sell fill price.
func (e *Executor) SetSellPrice(p float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SellPrice = p
}

var _ executor.Executor = (*Executor)(nil)
