package storage

import "context"

// SeenPool is a pool the detector has already emitted.
type SeenPool struct {
	PoolAddress  string
	TokenAddress string
}

// SeenPoolStore remembers detected pools across restarts so a reconnecting
// detector does not re-emit them.
type SeenPoolStore interface {
	// MarkSeen records a pool. Returns true if the pool was not seen before.
	MarkSeen(ctx context.Context, p SeenPool) (bool, error)

	// LoadSeen returns all seen pool addresses.
	LoadSeen(ctx context.Context) ([]string, error)
}
