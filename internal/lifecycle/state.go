package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
)

// ErrInvalidTransition is returned for an edge the state machine does not allow.
var ErrInvalidTransition = errors.New("invalid position transition")

// Transition moves p to next if the edge is legal.
func Transition(p *domain.Position, next domain.PositionStatus, now time.Time) error {
	if !p.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = now
	return nil
}

// BeginClosing records the decided exit and moves MONITORING -> CLOSING.
func BeginClosing(p *domain.Position, reason domain.ExitReason, now time.Time) error {
	if !reason.Valid() {
		return fmt.Errorf("%w: unknown exit reason %q", ErrInvalidTransition, reason)
	}
	if err := Transition(p, domain.StatusClosing, now); err != nil {
		return err
	}
	p.PendingExit = reason
	p.SellAttempts++
	return nil
}

// RevertToMonitoring moves CLOSING -> MONITORING after a failed sell.
// The pending reason is cleared; the next tick re-evaluates from scratch.
func RevertToMonitoring(p *domain.Position, now time.Time) error {
	if err := Transition(p, domain.StatusMonitoring, now); err != nil {
		return err
	}
	p.PendingExit = ""
	return nil
}

// Finalize moves CLOSING -> CLOSED, fixing the exit reason and realized P/L
// as proceeds - entry cost.
func Finalize(p *domain.Position, proceeds decimal.Decimal, exitPrice float64, txID string, now time.Time) error {
	if err := Transition(p, domain.StatusClosed, now); err != nil {
		return err
	}
	closedAt := now
	p.ClosedAt = &closedAt
	p.ExitReason = p.PendingExit
	p.PendingExit = ""
	p.ExitPrice = exitPrice
	p.ExitProceeds = proceeds
	p.RealizedPnL = proceeds.Sub(p.EntryCost)
	p.ExitTx = txID
	return nil
}
