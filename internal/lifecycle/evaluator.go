package lifecycle

import (
	"errors"
	"fmt"
	"math"
	"time"

	"dex-pair-sentinel/internal/domain"
)

// ErrInvalidExitConfig is returned by ExitConfig.Validate.
var ErrInvalidExitConfig = errors.New("invalid exit config")

// ExitConfig holds the exit thresholds. Fractions are in 0..1.
type ExitConfig struct {
	StopLossFraction     float64       // e.g. 0.30 = exit at -30%
	TrailingStopFraction float64       // e.g. 0.20 = trail 20% under peak
	MinProfitFraction    float64       // trailing/take-profit exits need at least this gain
	TakeProfitFraction   float64       // e.g. 1.00 = +100%
	TakeProfitExit       bool          // when false TakeProfitFraction is informational only
	MaxHold              time.Duration // 0 disables the time limit
}

// DefaultExitConfig returns SL 30%, trail 20%, min profit 10%, TP 100% (advisory), 6h hold.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		StopLossFraction:     0.30,
		TrailingStopFraction: 0.20,
		MinProfitFraction:    0.10,
		TakeProfitFraction:   1.00,
		MaxHold:              6 * time.Hour,
	}
}

// Validate checks fraction ranges.
func (c ExitConfig) Validate() error {
	switch {
	case c.StopLossFraction <= 0 || c.StopLossFraction >= 1:
		return fmt.Errorf("%w: stop loss fraction %.2f not in (0, 1)", ErrInvalidExitConfig, c.StopLossFraction)
	case c.TrailingStopFraction <= 0 || c.TrailingStopFraction >= 1:
		return fmt.Errorf("%w: trailing stop fraction %.2f not in (0, 1)", ErrInvalidExitConfig, c.TrailingStopFraction)
	case c.MinProfitFraction < 0:
		return fmt.Errorf("%w: min profit fraction %.2f < 0", ErrInvalidExitConfig, c.MinProfitFraction)
	case c.TakeProfitFraction < 0:
		return fmt.Errorf("%w: take profit fraction %.2f < 0", ErrInvalidExitConfig, c.TakeProfitFraction)
	case c.MaxHold < 0:
		return fmt.Errorf("%w: negative max hold", ErrInvalidExitConfig)
	}
	return nil
}

// TrailLevel returns peak * (1 - trailing fraction).
func (c ExitConfig) TrailLevel(peak float64) float64 {
	return peak * (1 - c.TrailingStopFraction)
}

// StopLevel returns the fixed stop-loss price for an entry.
func (c ExitConfig) StopLevel(entry float64) float64 {
	return entry * (1 - c.StopLossFraction)
}

// Evaluate applies one price update to p and returns the exit reason, if any.
// It mutates p.PeakPrice, p.TrailingStop and p.LastPrice; neither peak nor
// trail is ever lowered. Only MONITORING positions are evaluated: any other
// status is a no-op returning false.
//
// Order, first match wins:
//  1. STOP_LOSS
//  2. TRAILING_STOP (gated by min profit)
//  3. TAKE_PROFIT (only if enabled, gated by min profit)
//  4. TIMEOUT
func Evaluate(p *domain.Position, price float64, now time.Time, cfg ExitConfig) (domain.ExitReason, bool) {
	if p == nil || p.Status != domain.StatusMonitoring {
		return "", false
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return timeoutOnly(p, now, cfg)
	}

	p.LastPrice = price
	if p.PeakPrice < p.EntryPrice {
		p.PeakPrice = p.EntryPrice
	}
	if price > p.PeakPrice {
		p.PeakPrice = price
	}
	if trail := cfg.TrailLevel(p.PeakPrice); trail > p.TrailingStop {
		p.TrailingStop = trail
	}

	if price <= cfg.StopLevel(p.EntryPrice) {
		return domain.ExitStopLoss, true
	}

	gain := p.UnrealizedReturn(price)
	if price <= p.TrailingStop && gain >= cfg.MinProfitFraction {
		return domain.ExitTrailingStop, true
	}

	if cfg.TakeProfitExit && price >= p.EntryPrice*(1+cfg.TakeProfitFraction) && gain >= cfg.MinProfitFraction {
		return domain.ExitTakeProfit, true
	}

	return timeoutOnly(p, now, cfg)
}

func timeoutOnly(p *domain.Position, now time.Time, cfg ExitConfig) (domain.ExitReason, bool) {
	if cfg.MaxHold > 0 && now.Sub(p.OpenedAt) >= cfg.MaxHold {
		return domain.ExitTimeout, true
	}
	return "", false
}
