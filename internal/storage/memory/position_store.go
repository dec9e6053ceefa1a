package memory

import (
	"context"
	"sort"
	"sync"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by position id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Save upserts a position copy. Older versions are refused.
func (s *PositionStore) Save(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" || !p.Status.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.data[p.ID]; ok && cur.Version > p.Version {
		return storage.ErrStaleVersion
	}
	s.data[p.ID] = p.Clone()
	return nil
}

// Load returns all non-CLOSED positions ordered by opened_at ASC.
func (s *PositionStore) Load(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.Status != domain.StatusClosed {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenedAt.Before(result[j].OpenedAt)
	})
	return result, nil
}

// LoadClosed returns up to limit newest closed positions.
func (s *PositionStore) LoadClosed(_ context.Context, limit int) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.Status == domain.StatusClosed && p.ClosedAt != nil {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ClosedAt.After(*result[j].ClosedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetByID retrieves a position by id.
func (s *PositionStore) GetByID(_ context.Context, id string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

var _ storage.PositionStore = (*PositionStore)(nil)
