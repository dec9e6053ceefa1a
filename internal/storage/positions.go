package storage

import (
	"context"

	"dex-pair-sentinel/internal/domain"
)

// PositionStore persists position state. Save is called on every transition.
type PositionStore interface {
	// Save upserts p. Saving the same version twice is allowed so a retried
	// write is idempotent; an older version returns ErrStaleVersion.
	Save(ctx context.Context, p *domain.Position) error

	// Load returns all positions that are not CLOSED.
	Load(ctx context.Context) ([]*domain.Position, error)

	// LoadClosed returns up to limit most recently closed positions, newest first.
	LoadClosed(ctx context.Context, limit int) ([]*domain.Position, error)

	// GetByID returns one position. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Position, error)
}

// ScoreEventStore keeps the append-only scoring history.
type ScoreEventStore interface {
	// Insert adds an event. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, e *domain.ScoreEvent) error

	// GetByToken returns events for a token ordered by scored_at ASC.
	GetByToken(ctx context.Context, tokenAddress string) ([]*domain.ScoreEvent, error)

	// Recent returns up to limit newest events, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.ScoreEvent, error)
}

// TradeRecorder receives closed trades and score events for analytics.
type TradeRecorder interface {
	RecordClosed(ctx context.Context, p *domain.Position) error
	RecordScores(ctx context.Context, events []*domain.ScoreEvent) error
}
