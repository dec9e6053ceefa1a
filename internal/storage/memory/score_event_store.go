package memory

import (
	"context"
	"sort"
	"sync"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/storage"
)

// ScoreEventStore is an in-memory implementation of storage.ScoreEventStore.
type ScoreEventStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.ScoreEvent
	byTime []*domain.ScoreEvent
}

// NewScoreEventStore creates a new in-memory score event store.
func NewScoreEventStore() *ScoreEventStore {
	return &ScoreEventStore{
		data: make(map[string]*domain.ScoreEvent),
	}
}

// Insert adds an event. Returns ErrDuplicateKey if id exists.
func (s *ScoreEventStore) Insert(_ context.Context, e *domain.ScoreEvent) error {
	if e == nil || e.ID == "" || e.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := copyScoreEvent(e)
	s.data[e.ID] = cp
	s.byTime = append(s.byTime, cp)
	return nil
}

// GetByToken returns events for a token ordered by scored_at ASC.
func (s *ScoreEventStore) GetByToken(_ context.Context, tokenAddress string) ([]*domain.ScoreEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScoreEvent
	for _, e := range s.byTime {
		if e.TokenAddress == tokenAddress {
			result = append(result, copyScoreEvent(e))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ScoredAt.Before(result[j].ScoredAt)
	})
	return result, nil
}

// Recent returns up to limit newest events, newest first.
func (s *ScoreEventStore) Recent(_ context.Context, limit int) ([]*domain.ScoreEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ScoreEvent, 0, len(s.byTime))
	for _, e := range s.byTime {
		result = append(result, copyScoreEvent(e))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ScoredAt.After(result[j].ScoredAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func copyScoreEvent(e *domain.ScoreEvent) *domain.ScoreEvent {
	cp := *e
	cp.Components = append([]domain.ComponentScore(nil), e.Components...)
	return &cp
}

var _ storage.ScoreEventStore = (*ScoreEventStore)(nil)
