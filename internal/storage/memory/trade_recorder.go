package memory

import (
	"context"
	"sync"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/storage"
)

// TradeRecorder is an in-memory implementation of storage.TradeRecorder.
type TradeRecorder struct {
	mu     sync.RWMutex
	closed []*domain.Position
	scores []*domain.ScoreEvent
}

// NewTradeRecorder creates a new in-memory trade recorder.
func NewTradeRecorder() *TradeRecorder {
	return &TradeRecorder{}
}

// RecordClosed appends a closed position.
func (r *TradeRecorder) RecordClosed(_ context.Context, p *domain.Position) error {
	if p == nil || p.Status != domain.StatusClosed {
		return storage.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, p.Clone())
	return nil
}

// RecordScores appends score events.
func (r *TradeRecorder) RecordScores(_ context.Context, events []*domain.ScoreEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		if e == nil {
			return storage.ErrInvalidInput
		}
		r.scores = append(r.scores, copyScoreEvent(e))
	}
	return nil
}

// Closed returns recorded closed positions.
func (r *TradeRecorder) Closed() []*domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Position, len(r.closed))
	for i, p := range r.closed {
		out[i] = p.Clone()
	}
	return out
}

// Scores returns the number of recorded score events.
func (r *TradeRecorder) Scores() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scores)
}

var _ storage.TradeRecorder = (*TradeRecorder)(nil)
