package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	StatusOpen       PositionStatus = "OPEN"
	StatusMonitoring PositionStatus = "MONITORING"
	StatusClosing    PositionStatus = "CLOSING"
	StatusClosed     PositionStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s PositionStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusMonitoring, StatusClosing, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s PositionStatus) Terminal() bool {
	return s == StatusClosed
}

// CanTransition reports whether s -> next is a legal lifecycle edge.
//
//	OPEN -> MONITORING
//	MONITORING -> CLOSING
//	CLOSING -> MONITORING (sell failed)
//	CLOSING -> CLOSED
func (s PositionStatus) CanTransition(next PositionStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusMonitoring
	case StatusMonitoring:
		return next == StatusClosing
	case StatusClosing:
		return next == StatusMonitoring || next == StatusClosed
	}
	return false
}

// ExitReason is the closed set of reasons a position can be closed for.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitTimeout      ExitReason = "TIMEOUT"
	ExitManual       ExitReason = "MANUAL"
)

// Valid reports whether r is one of the known exit reasons.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitStopLoss, ExitTrailingStop, ExitTakeProfit, ExitTimeout, ExitManual:
		return true
	}
	return false
}

// ParseExitReason converts a stored string back into an ExitReason.
// The empty string yields the zero reason without error.
func ParseExitReason(s string) (ExitReason, error) {
	if s == "" {
		return "", nil
	}
	r := ExitReason(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown exit reason %q", s)
	}
	return r, nil
}

// Position is a live or archived trade.
type Position struct {
	ID           string
	TokenAddress string
	PairAddress  string
	Symbol       string
	Score        float64 // quality score at entry

	EntryPrice    float64         // native units per token
	EntryAmount   decimal.Decimal // native units committed (reserved in the ledger)
	EntryCost     decimal.Decimal // native units actually spent incl. fees
	TokenQuantity float64
	EntryTx       string
	OpenedAt      time.Time

	PeakPrice    float64 // non-decreasing, >= EntryPrice
	TrailingStop float64 // PeakPrice * (1 - trailing fraction), non-decreasing
	LastPrice    float64

	Status       PositionStatus
	PendingExit  ExitReason // reason decided while CLOSING
	SellAttempts int

	ClosedAt     *time.Time
	ExitReason   ExitReason
	ExitPrice    float64
	ExitProceeds decimal.Decimal
	RealizedPnL  decimal.Decimal
	ExitTx       string

	UpdatedAt time.Time
	Version   int64 // incremented on every persisted transition
}

// Clone returns a deep copy of p.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}

// UnrealizedReturn returns (price - entry) / entry.
func (p *Position) UnrealizedReturn(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// HoldDuration returns time held as of now, or until close for closed positions.
func (p *Position) HoldDuration(now time.Time) time.Duration {
	end := now
	if p.ClosedAt != nil {
		end = *p.ClosedAt
	}
	if end.Before(p.OpenedAt) {
		return 0
	}
	return end.Sub(p.OpenedAt)
}

// IsWin reports whether a closed position realized a positive P/L.
func (p *Position) IsWin() bool {
	return p.RealizedPnL.IsPositive()
}
