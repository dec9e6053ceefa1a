package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInvalidBalance is returned by New for an impossible starting state.
var ErrInvalidBalance = errors.New("invalid ledger balance")

// Ledger tracks total balance and per-position reservations.
//
// Invariant: sum(reserved) + minReserve <= total.
//
// The ledger is safe for concurrent use on its own, but callers that pair a
// reservation with other bookkeeping (position count, position set) must
// serialize both under their own lock so check-and-reserve stays atomic.
type Ledger struct {
	mu         sync.Mutex
	total      decimal.Decimal
	minReserve decimal.Decimal
	reserved   map[string]decimal.Decimal
}

// New creates a ledger with the given total balance and minimum reserve floor.
func New(total, minReserve decimal.Decimal) (*Ledger, error) {
	if total.IsNegative() || minReserve.IsNegative() {
		return nil, fmt.Errorf("%w: total %s, min reserve %s", ErrInvalidBalance, total, minReserve)
	}
	if minReserve.GreaterThan(total) {
		return nil, fmt.Errorf("%w: min reserve %s exceeds total %s", ErrInvalidBalance, minReserve, total)
	}
	return &Ledger{
		total:      total,
		minReserve: minReserve,
		reserved:   make(map[string]decimal.Decimal),
	}, nil
}

// Reserve sets aside amount for id. Returns false if amount is not positive,
// id already holds a reservation, or the invariant would break.
func (l *Ledger) Reserve(id string, amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !amount.IsPositive() {
		return false
	}
	if _, exists := l.reserved[id]; exists {
		return false
	}
	if amount.GreaterThan(l.availableLocked()) {
		return false
	}
	l.reserved[id] = amount
	return true
}

// Adjust replaces the reservation for id with amount, e.g. when a fill cost
// differs from the requested size. Returns false if id is unknown or the new
// amount would break the invariant.
func (l *Ledger) Adjust(id string, amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.reserved[id]
	if !ok || !amount.IsPositive() {
		return false
	}
	if amount.Sub(cur).GreaterThan(l.availableLocked()) {
		return false
	}
	l.reserved[id] = amount
	return true
}

// Release drops the reservation for id. Releasing twice is a no-op.
func (l *Ledger) Release(id string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	amt := l.reserved[id]
	delete(l.reserved, id)
	return amt
}

// Settle releases id and applies realized profit or loss to the total.
// A loss is capped at the released reservation, so one position can never
// eat capital held for others. Settling an unknown id is a no-op and returns
// false, so a duplicate close confirmation cannot change the balance twice.
func (l *Ledger) Settle(id string, pnl decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	amt, ok := l.reserved[id]
	if !ok {
		return false
	}
	delete(l.reserved, id)
	if floor := amt.Neg(); pnl.LessThan(floor) {
		pnl = floor
	}
	l.total = l.total.Add(pnl)
	if l.total.IsNegative() {
		l.total = decimal.Zero
	}
	return true
}

// Available returns total - reserved - minReserve, floored at zero.
func (l *Ledger) Available() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.availableLocked()
}

func (l *Ledger) availableLocked() decimal.Decimal {
	avail := l.total.Sub(l.minReserve).Sub(l.reservedLocked())
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

func (l *Ledger) reservedLocked() decimal.Decimal {
	sum := decimal.Zero
	for _, amt := range l.reserved {
		sum = sum.Add(amt)
	}
	return sum
}

// Reserved returns the sum of all reservations.
func (l *Ledger) Reserved() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reservedLocked()
}

// ReservedFor returns the reservation held by id.
func (l *Ledger) ReservedFor(id string) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amt, ok := l.reserved[id]
	return amt, ok
}

// Total returns the current total balance.
func (l *Ledger) Total() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// MinReserve returns the reserve floor.
func (l *Ledger) MinReserve() decimal.Decimal {
	return l.minReserve
}

// Count returns the number of live reservations.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reserved)
}

// Snapshot is a point-in-time view of the ledger.
type Snapshot struct {
	Total        decimal.Decimal `json:"total"`
	Reserved     decimal.Decimal `json:"reserved"`
	MinReserve   decimal.Decimal `json:"min_reserve"`
	Available    decimal.Decimal `json:"available"`
	Reservations int             `json:"reservations"`
}

// Snapshot returns a consistent view of all balances.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Total:        l.total,
		Reserved:     l.reservedLocked(),
		MinReserve:   l.minReserve,
		Available:    l.availableLocked(),
		Reservations: len(l.reserved),
	}
}

// Holds reports whether the balance invariant holds for s.
func (s Snapshot) Holds() bool {
	return s.Reserved.Add(s.MinReserve).LessThanOrEqual(s.Total)
}
