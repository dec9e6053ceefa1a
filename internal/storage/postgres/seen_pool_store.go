package postgres

import (
	"context"
	"fmt"
	"time"

	"dex-pair-sentinel/internal/storage"
)

// SeenPoolStore is a PostgreSQL implementation of storage.SeenPoolStore.
type SeenPoolStore struct {
	pool *Pool
}

// NewSeenPoolStore creates a new PostgreSQL seen pool store.
func NewSeenPoolStore(pool *Pool) *SeenPoolStore {
	return &SeenPoolStore{pool: pool}
}

var _ storage.SeenPoolStore = (*SeenPoolStore)(nil)

// MarkSeen records a pool and reports whether it was new.
func (s *SeenPoolStore) MarkSeen(ctx context.Context, p storage.SeenPool) (first bool, err error) {
	if p.PoolAddress == "" {
		return false, storage.ErrInvalidInput
	}
	defer observe("mark_pool_seen", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO seen_pools (pool_address, token_address, seen_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (pool_address) DO NOTHING
	`, p.PoolAddress, p.TokenAddress)
	if err != nil {
		return false, fmt.Errorf("mark pool %s seen: %w", p.PoolAddress, err)
	}
	return tag.RowsAffected() == 1, nil
}

// LoadSeen returns all seen pool addresses.
func (s *SeenPoolStore) LoadSeen(ctx context.Context) (_ []string, err error) {
	defer observe("load_seen_pools", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `SELECT pool_address FROM seen_pools`)
	if err != nil {
		return nil, fmt.Errorf("query seen pools: %w", err)
	}
	defer rows.Close()

	var pools []string
	for rows.Next() {
		var pool string
		if err := rows.Scan(&pool); err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}
