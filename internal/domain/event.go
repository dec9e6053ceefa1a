package domain

import "time"

// EventType identifies a structured event emitted to notifiers.
type EventType string

const (
	EventCandidateScored EventType = "candidate_scored"
	EventPositionOpened  EventType = "position_opened"
	EventPositionClosed  EventType = "position_closed"
	EventSellFailed      EventType = "sell_failed"
)

// Event carries a full snapshot; rendering is left to the notifier.
type Event struct {
	Type      EventType
	At        time.Time
	Candidate *Candidate
	Score     *ScoreBreakdown
	Position  *Position
	Action    string // "alert", "trade" or "skip" for candidate_scored
	Error     string
}

// ScoreEvent is the persisted record of one scoring decision.
type ScoreEvent struct {
	ID           string
	TokenAddress string
	PairAddress  string
	Total        float64
	Rejected     bool
	RejectReason string
	Components   []ComponentScore
	Action       string
	ScoredAt     time.Time
}
