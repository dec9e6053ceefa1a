package position

import "errors"

// Open rejections. These are normal outcomes, surfaced to the caller.
var (
	ErrMaxPositions        = errors.New("max concurrent positions reached")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrAlreadyHolding      = errors.New("already holding token")
	ErrRecoveryPending     = errors.New("positions not recovered yet")
	ErrRejectedCandidate   = errors.New("candidate rejected by scoring")
)

// Execution and state errors.
var (
	ErrBuyFailed         = errors.New("buy failed")
	ErrSellFailed        = errors.New("sell failed")
	ErrPersistence       = errors.New("persist position")
	ErrPositionNotFound  = errors.New("position not found")
	ErrClosingInProgress = errors.New("position is closing")
	ErrPositionClosed    = errors.New("position already closed")
	ErrNotClosing        = errors.New("position is not closing")
	ErrInvalidProceeds   = errors.New("invalid exit proceeds")
	ErrAlreadyRecovered  = errors.New("positions already recovered")
)
