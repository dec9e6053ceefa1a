package executor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
)

type fixedPrices map[string]float64

func (f fixedPrices) Price(_ context.Context, token string) (float64, error) {
	p, ok := f[token]
	if !ok {
		return 0, errors.New("no quote")
	}
	return p, nil
}

func TestPaperExecutor_BuyUsesCandidatePrice(t *testing.T) {
	e := NewPaperExecutor(PaperOptions{})

	res, err := e.Buy(context.Background(), domain.Candidate{TokenAddress: "tok", PriceNative: domain.Ptr(0.001)}, decimal.RequireFromString("0.1"))
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if math.Abs(res.Quantity-100) > 1e-6 {
		t.Errorf("expected 100 tokens, got %.4f", res.Quantity)
	}
	if !res.Cost.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("expected cost 0.1, got %s", res.Cost)
	}
}

func TestPaperExecutor_BuyWithoutPrice(t *testing.T) {
	e := NewPaperExecutor(PaperOptions{})

	_, err := e.Buy(context.Background(), domain.Candidate{TokenAddress: "tok"}, decimal.RequireFromString("0.1"))
	if !errors.Is(err, ErrNoPrice) {
		t.Errorf("expected ErrNoPrice, got %v", err)
	}
}

func TestPaperExecutor_SellPriceFallbacks(t *testing.T) {
	p := &domain.Position{TokenAddress: "tok", EntryPrice: 0.001, TokenQuantity: 100}

	quoted := NewPaperExecutor(PaperOptions{Prices: fixedPrices{"tok": 0.002}})
	res, err := quoted.Sell(context.Background(), p)
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if !res.Proceeds.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("expected proceeds 0.2, got %s", res.Proceeds)
	}

	fallback := NewPaperExecutor(PaperOptions{Prices: fixedPrices{}})
	res, err = fallback.Sell(context.Background(), p)
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if !res.Proceeds.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("expected mock exit at 1.5x, got %s", res.Proceeds)
	}
}

func TestPaperExecutor_LatencyHonorsContext(t *testing.T) {
	e := NewPaperExecutor(PaperOptions{Latency: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := e.Sell(ctx, &domain.Position{TokenAddress: "tok", EntryPrice: 1, TokenQuantity: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
