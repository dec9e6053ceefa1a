package discovery

import (
	"context"
	"sync"
	"time"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/observability"
)

// MonotonicGuard drops candidate snapshots that are not newer than the last
// admitted snapshot for the same token.
type MonotonicGuard struct {
	mu   sync.Mutex
	last map[string]time.Time
	ttl  time.Duration
	max  int
}

// NewMonotonicGuard creates a guard. Tokens not seen for ttl are forgotten
// once more than max tokens are tracked.
func NewMonotonicGuard(ttl time.Duration, max int) *MonotonicGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if max <= 0 {
		max = 50_000
	}
	return &MonotonicGuard{last: make(map[string]time.Time), ttl: ttl, max: max}
}

// Admit records c and reports whether it is the newest snapshot of its token.
func (g *MonotonicGuard) Admit(c domain.Candidate) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.last[c.TokenAddress]; ok && !c.ObservedAt.After(prev) {
		return false
	}
	g.last[c.TokenAddress] = c.ObservedAt
	if len(g.last) > g.max {
		g.pruneLocked(c.ObservedAt.Add(-g.ttl))
	}
	return true
}

func (g *MonotonicGuard) pruneLocked(before time.Time) {
	for token, at := range g.last {
		if at.Before(before) {
			delete(g.last, token)
		}
	}
}

// Len returns the number of tracked tokens.
func (g *MonotonicGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}

// Filter forwards admitted candidates from in.
func (g *MonotonicGuard) Filter(ctx context.Context, in <-chan domain.Candidate) <-chan domain.Candidate {
	out := make(chan domain.Candidate, cap(in))
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-in:
				if !ok {
					return
				}
				if !g.Admit(c) {
					observability.RecordCandidateDropped("stale_snapshot")
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Merge fans in every source into one channel, closed when all sources end.
func Merge(ctx context.Context, sources ...CandidateSource) (<-chan domain.Candidate, error) {
	chans := make([]<-chan domain.Candidate, 0, len(sources))
	for _, s := range sources {
		ch, err := s.Candidates(ctx)
		if err != nil {
			return nil, err
		}
		chans = append(chans, ch)
	}

	out := make(chan domain.Candidate, 256)
	var wg sync.WaitGroup
	for _, ch := range chans {
		wg.Add(1)
		go func(ch <-chan domain.Candidate) {
			defer wg.Done()
			for c := range ch {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// Merged is a CandidateSource fanning in several sources.
type Merged []CandidateSource

// Candidates starts every source and merges their output.
func (m Merged) Candidates(ctx context.Context) (<-chan domain.Candidate, error) {
	return Merge(ctx, m...)
}
