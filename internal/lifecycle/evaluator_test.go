package lifecycle

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func monitoring(entry float64) *domain.Position {
	return &domain.Position{
		ID:         "p1",
		EntryPrice: entry,
		EntryCost:  decimal.NewFromFloat(1),
		PeakPrice:  entry,
		OpenedAt:   t0,
		Status:     domain.StatusMonitoring,
	}
}

func TestEvaluate_StopLoss(t *testing.T) {
	cfg := DefaultExitConfig()

	p := monitoring(100)
	reason, ok := Evaluate(p, 69, t0.Add(time.Minute), cfg)
	if !ok || reason != domain.ExitStopLoss {
		t.Errorf("price 69: expected STOP_LOSS, got %q %v", reason, ok)
	}

	p = monitoring(100)
	if reason, ok := Evaluate(p, 71, t0.Add(time.Minute), cfg); ok {
		t.Errorf("price 71: expected no exit, got %q", reason)
	}
}

func TestEvaluate_TrailingStop(t *testing.T) {
	cfg := DefaultExitConfig()
	cfg.MinProfitFraction = 0.50

	p := monitoring(100)
	if _, ok := Evaluate(p, 300, t0.Add(time.Minute), cfg); ok {
		t.Fatal("rising price should not exit")
	}
	if p.PeakPrice != 300 {
		t.Errorf("expected peak 300, got %.2f", p.PeakPrice)
	}
	if p.TrailingStop != 240 {
		t.Errorf("expected trail 240, got %.2f", p.TrailingStop)
	}

	reason, ok := Evaluate(p, 235, t0.Add(2*time.Minute), cfg)
	if !ok || reason != domain.ExitTrailingStop {
		t.Errorf("expected TRAILING_STOP, got %q %v", reason, ok)
	}
}

func TestEvaluate_TrailingStopNeedsMinProfit(t *testing.T) {
	cfg := DefaultExitConfig()

	p := monitoring(100)
	Evaluate(p, 105, t0.Add(time.Minute), cfg) // trail 84
	// 83 is under the trail but below entry.
	if reason, ok := Evaluate(p, 83, t0.Add(2*time.Minute), cfg); ok {
		t.Errorf("expected no exit below min profit, got %q", reason)
	}
}

func TestEvaluate_StopLossBeatsTrailing(t *testing.T) {
	cfg := DefaultExitConfig()
	cfg.MinProfitFraction = -1 // gate off so both conditions hold

	p := monitoring(100)
	reason, ok := Evaluate(p, 60, t0.Add(time.Minute), cfg)
	if !ok || reason != domain.ExitStopLoss {
		t.Errorf("expected STOP_LOSS to win, got %q", reason)
	}
}

func TestEvaluate_Timeout(t *testing.T) {
	cfg := DefaultExitConfig()
	cfg.MaxHold = 24 * time.Hour

	p := monitoring(100)
	reason, ok := Evaluate(p, 101, t0.Add(25*time.Hour), cfg)
	if !ok || reason != domain.ExitTimeout {
		t.Errorf("expected TIMEOUT, got %q %v", reason, ok)
	}

	p = monitoring(100)
	if _, ok := Evaluate(p, 101, t0.Add(23*time.Hour), cfg); ok {
		t.Error("expected no exit before max hold")
	}
}

func TestEvaluate_TakeProfit(t *testing.T) {
	cfg := DefaultExitConfig()

	p := monitoring(100)
	if _, ok := Evaluate(p, 250, t0.Add(time.Minute), cfg); ok {
		t.Error("take profit is advisory unless enabled")
	}

	cfg.TakeProfitExit = true
	p = monitoring(100)
	reason, ok := Evaluate(p, 250, t0.Add(time.Minute), cfg)
	if !ok || reason != domain.ExitTakeProfit {
		t.Errorf("expected TAKE_PROFIT, got %q %v", reason, ok)
	}
}

func TestEvaluate_NonMonitoringIsNoop(t *testing.T) {
	cfg := DefaultExitConfig()
	for _, s := range []domain.PositionStatus{domain.StatusOpen, domain.StatusClosing, domain.StatusClosed} {
		p := monitoring(100)
		p.Status = s
		if _, ok := Evaluate(p, 10, t0.Add(48*time.Hour), cfg); ok {
			t.Errorf("%s: expected no-op", s)
		}
		if p.PeakPrice != 100 || p.LastPrice != 0 {
			t.Errorf("%s: position mutated", s)
		}
	}
}

func TestEvaluate_PeakAndTrailMonotonic(t *testing.T) {
	cfg := DefaultExitConfig()
	cfg.StopLossFraction = 0.99
	cfg.MinProfitFraction = 100 // never exit on trail
	cfg.MaxHold = 0
	rng := rand.New(rand.NewSource(1))

	p := monitoring(100)
	prevPeak, prevTrail := p.PeakPrice, p.TrailingStop
	for i := 0; i < 10_000; i++ {
		price := 2 + rng.Float64()*400
		if _, ok := Evaluate(p, price, t0.Add(time.Duration(i)*time.Second), cfg); ok {
			t.Fatalf("unexpected exit at %.2f", price)
		}
		if p.PeakPrice < prevPeak || p.PeakPrice < p.EntryPrice {
			t.Fatalf("peak decreased: %.4f -> %.4f", prevPeak, p.PeakPrice)
		}
		if p.TrailingStop < prevTrail {
			t.Fatalf("trail decreased: %.4f -> %.4f", prevTrail, p.TrailingStop)
		}
		prevPeak, prevTrail = p.PeakPrice, p.TrailingStop
	}
}

func TestEvaluate_InvalidPriceOnlyChecksTime(t *testing.T) {
	cfg := DefaultExitConfig()
	p := monitoring(100)

	if _, ok := Evaluate(p, 0, t0.Add(time.Minute), cfg); ok {
		t.Error("zero price should not trigger stop loss")
	}
	if reason, ok := Evaluate(p, 0, t0.Add(7*time.Hour), cfg); !ok || reason != domain.ExitTimeout {
		t.Errorf("expected TIMEOUT, got %q", reason)
	}
}

func TestExitConfig_Validate(t *testing.T) {
	if err := DefaultExitConfig().Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
	cfg := DefaultExitConfig()
	cfg.StopLossFraction = 1.2
	if err := cfg.Validate(); err == nil {
		t.Error("expected error")
	}
}
