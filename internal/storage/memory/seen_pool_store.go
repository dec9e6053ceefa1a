package memory

import (
	"context"
	"sync"

	"dex-pair-sentinel/internal/storage"
)

// SeenPoolStore is an in-memory implementation of storage.SeenPoolStore.
type SeenPoolStore struct {
	mu    sync.RWMutex
	pools map[string]string // pool -> token
}

// NewSeenPoolStore creates a new in-memory seen pool store.
func NewSeenPoolStore() *SeenPoolStore {
	return &SeenPoolStore{pools: make(map[string]string)}
}

// MarkSeen records a pool and reports whether it was new.
func (s *SeenPoolStore) MarkSeen(_ context.Context, p storage.SeenPool) (bool, error) {
	if p.PoolAddress == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[p.PoolAddress]; ok {
		return false, nil
	}
	s.pools[p.PoolAddress] = p.TokenAddress
	return true, nil
}

// LoadSeen returns all seen pool addresses.
func (s *SeenPoolStore) LoadSeen(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.pools))
	for pool := range s.pools {
		out = append(out, pool)
	}
	return out, nil
}

var _ storage.SeenPoolStore = (*SeenPoolStore)(nil)
