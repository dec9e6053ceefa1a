package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/storage"
)

// ScoreEventStore implements storage.ScoreEventStore using PostgreSQL.
type ScoreEventStore struct {
	pool *Pool
}

// NewScoreEventStore creates a new ScoreEventStore.
func NewScoreEventStore(pool *Pool) *ScoreEventStore {
	return &ScoreEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScoreEventStore = (*ScoreEventStore)(nil)

// Insert adds an event. Returns ErrDuplicateKey if id exists.
func (s *ScoreEventStore) Insert(ctx context.Context, e *domain.ScoreEvent) (err error) {
	if e == nil || e.ID == "" || e.TokenAddress == "" {
		return storage.ErrInvalidInput
	}
	defer observe("score_insert", time.Now(), &err)

	components, err := json.Marshal(nonNil(e.Components))
	if err != nil {
		return fmt.Errorf("encode components: %w", err)
	}

	query := `
		INSERT INTO score_events (
			id, token_address, pair_address, total, rejected, reject_reason,
			components, action, scored_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)
	`
	_, err = s.pool.Exec(ctx, query,
		e.ID, e.TokenAddress, e.PairAddress, e.Total, e.Rejected, e.RejectReason,
		string(components), e.Action, e.ScoredAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert score event: %w", err)
	}
	return nil
}

// GetByToken returns events for a token ordered by scored_at ASC.
func (s *ScoreEventStore) GetByToken(ctx context.Context, tokenAddress string) ([]*domain.ScoreEvent, error) {
	query := `
		SELECT id, token_address, pair_address, total, rejected, reject_reason,
			components, action, scored_at
		FROM score_events
		WHERE token_address = $1
		ORDER BY scored_at ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("get score events by token: %w", err)
	}
	defer rows.Close()

	return scanScoreEvents(rows)
}

// Recent returns up to limit newest events, newest first.
func (s *ScoreEventStore) Recent(ctx context.Context, limit int) ([]*domain.ScoreEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, token_address, pair_address, total, rejected, reject_reason,
			components, action, scored_at
		FROM score_events
		ORDER BY scored_at DESC, id ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent score events: %w", err)
	}
	defer rows.Close()

	return scanScoreEvents(rows)
}

func scanScoreEvents(rows pgx.Rows) ([]*domain.ScoreEvent, error) {
	var events []*domain.ScoreEvent
	for rows.Next() {
		var (
			e          domain.ScoreEvent
			components []byte
		)
		err := rows.Scan(
			&e.ID, &e.TokenAddress, &e.PairAddress, &e.Total, &e.Rejected, &e.RejectReason,
			&components, &e.Action, &e.ScoredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan score event row: %w", err)
		}
		if err := json.Unmarshal(components, &e.Components); err != nil {
			return nil, fmt.Errorf("decode components of %s: %w", e.ID, err)
		}
		e.ScoredAt = e.ScoredAt.UTC()
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score event rows: %w", err)
	}
	return events, nil
}

func nonNil(c []domain.ComponentScore) []domain.ComponentScore {
	if c == nil {
		return []domain.ComponentScore{}
	}
	return c
}
