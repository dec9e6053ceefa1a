package position

import (
	"sort"

	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/ledger"
)

// Stats summarizes the session.
type Stats struct {
	Total        int             `json:"total"`
	Open         int             `json:"open"`
	Closed       int             `json:"closed"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	WinRate      float64         `json:"win_rate"` // percent
	TotalProfit  decimal.Decimal `json:"total_profit"`
	TotalLoss    decimal.Decimal `json:"total_loss"`
	NetPnL       decimal.Decimal `json:"net_pnl"`
	SellFailures int             `json:"sell_failures"`
	ByReason     map[string]int  `json:"by_reason"`
	Ledger       ledger.Snapshot `json:"ledger"`
}

// Stats returns counters for positions opened and closed this session.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	s := Stats{
		Total:        m.stats.opened,
		Open:         len(m.entries),
		Closed:       m.stats.wins + m.stats.losses,
		Wins:         m.stats.wins,
		Losses:       m.stats.losses,
		TotalProfit:  m.stats.profit,
		TotalLoss:    m.stats.loss,
		NetPnL:       m.stats.profit.Sub(m.stats.loss),
		SellFailures: m.stats.sellFailures,
		ByReason:     make(map[string]int, len(m.stats.byReason)),
	}
	for r, n := range m.stats.byReason {
		s.ByReason[string(r)] = n
	}
	m.mu.Unlock()

	if s.Closed > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Closed) * 100
	}
	s.Ledger = m.opts.Ledger.Snapshot()
	return s
}

// Get returns a copy of a tracked or recently closed position.
func (m *Manager) Get(id string) (*domain.Position, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		for i := len(m.closed) - 1; i >= 0; i-- {
			if m.closed[i].ID == id {
				p := m.closed[i].Clone()
				m.mu.Unlock()
				return p, nil
			}
		}
		m.mu.Unlock()
		return nil, ErrPositionNotFound
	}
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos.Clone(), nil
}

// OpenPositions returns copies of all non-CLOSED positions, oldest first.
func (m *Manager) OpenPositions() []*domain.Position {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]*domain.Position, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.pos.Status != domain.StatusClosed {
			out = append(out, e.pos.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// ClosedPositions returns the retained closed positions, newest first.
func (m *Manager) ClosedPositions() []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Position, 0, len(m.closed))
	for i := len(m.closed) - 1; i >= 0; i-- {
		out = append(out, m.closed[i].Clone())
	}
	return out
}

// Count returns the number of non-CLOSED positions plus buys in flight.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries) + len(m.opening)
}

// Recovered reports whether Recover has completed.
func (m *Manager) Recovered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recovered
}

// MaxPositions returns the configured position limit.
func (m *Manager) MaxPositions() int {
	return m.opts.MaxPositions
}
