package position

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/executor"
	"dex-pair-sentinel/internal/ledger"
	"dex-pair-sentinel/internal/lifecycle"
	"dex-pair-sentinel/internal/notify"
	"dex-pair-sentinel/internal/observability"
	"dex-pair-sentinel/internal/storage"
)

// Options configures a Manager.
type Options struct {
	Ledger   *ledger.Ledger        // required
	Executor executor.Executor     // required
	Store    storage.PositionStore // required
	Recorder storage.TradeRecorder // optional analytics sink
	Notifier notify.Notifier       // optional

	Exit         lifecycle.ExitConfig
	MaxPositions int             // default 3
	TradeAmount  decimal.Decimal // native units per position, default 0.1
	SellTimeout  time.Duration   // default 30s; timeout counts as a failed sell
	Retention    int             // closed positions kept in memory, default 100
	SaveRetries  int             // extra Save attempts per transition, default 3, negative disables
	RetryDelay   time.Duration   // between Save attempts, default 200ms

	Clock  func() time.Time
	NewID  func() string
	Logger *log.Logger
}

// entry wraps one tracked position. mu serializes every evaluation and
// transition of that position. Lock order is entry.mu before Manager.mu.
type entry struct {
	mu       sync.Mutex
	pos      *domain.Position
	manual   bool                 // operator close requested
	inflight bool                 // a Sell call is outstanding
	sold     *executor.SellResult // confirmed sell not yet persisted as CLOSED
}

// sellCall is one sell running on a manager goroutine. err is set before
// done is closed.
type sellCall struct {
	done chan struct{}
	err  error
}

func (c *sellCall) wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager owns the open-position set and the capital ledger for one session.
// Open, close and every ledger mutation run under mu, which is held only for
// in-memory steps.
type Manager struct {
	opts Options

	mu        sync.Mutex
	entries   map[string]*entry   // non-closed positions by id
	byToken   map[string]string   // token -> position id
	opening   map[string]string   // token -> reserved id while a buy is in flight
	closed    []*domain.Position  // newest last, bounded by Retention
	closedIDs map[string]struct{} // ids in closed
	calls     map[string]*sellCall // latest sell per tracked or retained id
	recovered bool
	stats     counters

	sells sync.WaitGroup // sell goroutines started by evaluations
}

type counters struct {
	opened       int
	wins         int
	losses       int
	sellFailures int
	profit       decimal.Decimal
	loss         decimal.Decimal
	byReason     map[domain.ExitReason]int
}

// New creates a Manager. Open is refused until Recover has run once.
func New(opts Options) (*Manager, error) {
	if opts.Ledger == nil || opts.Executor == nil || opts.Store == nil {
		return nil, errors.New("position manager requires ledger, executor and store")
	}
	if opts.Exit == (lifecycle.ExitConfig{}) {
		opts.Exit = lifecycle.DefaultExitConfig()
	}
	if err := opts.Exit.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxPositions <= 0 {
		opts.MaxPositions = 3
	}
	if !opts.TradeAmount.IsPositive() {
		opts.TradeAmount = decimal.RequireFromString("0.1")
	}
	if opts.SellTimeout <= 0 {
		opts.SellTimeout = 30 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = 100
	}
	if opts.SaveRetries < 0 {
		opts.SaveRetries = 0
	} else if opts.SaveRetries == 0 {
		opts.SaveRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Manager{
		opts:      opts,
		entries:   make(map[string]*entry),
		byToken:   make(map[string]string),
		opening:   make(map[string]string),
		closedIDs: make(map[string]struct{}),
		calls:     make(map[string]*sellCall),
		stats:     counters{byReason: make(map[domain.ExitReason]int)},
	}, nil
}

// Open buys trade_amount of the candidate and starts monitoring it.
// Count and capital checks and the reservation happen atomically; the buy
// runs outside the lock and a failed buy releases the reservation.
// If the position was bought but could not be persisted, the position is
// returned together with an ErrPersistence error and stays tracked.
func (m *Manager) Open(ctx context.Context, c domain.Candidate, score domain.ScoreBreakdown) (*domain.Position, error) {
	if score.Rejected {
		observability.RecordOpenRejected("rejected")
		return nil, fmt.Errorf("%w: %s", ErrRejectedCandidate, score.RejectReason)
	}

	id, err := m.reserve(c.TokenAddress)
	if err != nil {
		observability.RecordOpenRejected(rejectLabel(err))
		return nil, err
	}

	res, err := m.opts.Executor.Buy(ctx, c, m.opts.TradeAmount)
	if err == nil && (res == nil || res.Price <= 0 || res.Quantity <= 0) {
		err = errors.New("empty fill")
	}
	if err != nil {
		m.unreserve(c.TokenAddress, id)
		observability.RecordOpenRejected("buy_failed")
		m.opts.Logger.Printf("buy %s failed, released reservation: %v", c.TokenAddress, err)
		return nil, fmt.Errorf("%w: %w", ErrBuyFailed, err)
	}

	now := m.opts.Clock()
	cost := res.Cost
	if !cost.IsPositive() {
		cost = m.opts.TradeAmount
	}
	p := &domain.Position{
		ID:            id,
		TokenAddress:  c.TokenAddress,
		PairAddress:   c.PairAddress,
		Symbol:        c.Symbol,
		Score:         score.Total,
		EntryPrice:    res.Price,
		EntryAmount:   m.opts.TradeAmount,
		EntryCost:     cost,
		TokenQuantity: res.Quantity,
		EntryTx:       res.TxID,
		OpenedAt:      now,
		PeakPrice:     res.Price,
		TrailingStop:  m.opts.Exit.TrailLevel(res.Price),
		LastPrice:     res.Price,
		Status:        domain.StatusOpen,
		UpdatedAt:     now,
		Version:       1,
	}

	e := &entry{pos: p}
	e.mu.Lock()
	m.mu.Lock()
	if !cost.Equal(m.opts.TradeAmount) && !m.opts.Ledger.Adjust(id, cost) {
		// Losses are bounded by the reservation, so the position is booked
		// at what the ledger actually holds for it.
		m.opts.Logger.Printf("position %s: fill cost %s exceeds available capital, booking reservation %s", id, cost, m.opts.TradeAmount)
		p.EntryCost = m.opts.TradeAmount
	}
	delete(m.opening, c.TokenAddress)
	m.entries[id] = e
	m.byToken[c.TokenAddress] = id
	m.stats.opened++
	m.mu.Unlock()

	err = m.save(ctx, p)
	if err == nil {
		err = m.promote(ctx, e, now)
	}
	snap := e.pos.Clone()
	e.mu.Unlock()

	observability.RecordPositionOpened()
	m.updateGauges()
	m.opts.Logger.Printf("opened %s %s: %s SOL @ %.10f (score %.1f)", id, c.TokenAddress, snap.EntryCost, res.Price, score.Total)
	m.notify(ctx, domain.Event{Type: domain.EventPositionOpened, At: now, Candidate: &c, Score: &score, Position: snap})

	if err != nil {
		m.opts.Logger.Printf("position %s bought but not persisted, will retry on next tick: %v", id, err)
		return snap, err
	}
	return snap, nil
}

// reserve is the atomic check-and-reserve step of Open.
func (m *Manager) reserve(token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.recovered {
		return "", ErrRecoveryPending
	}
	if _, ok := m.byToken[token]; ok {
		return "", fmt.Errorf("%w: %s", ErrAlreadyHolding, token)
	}
	if _, ok := m.opening[token]; ok {
		return "", fmt.Errorf("%w: %s (buy in flight)", ErrAlreadyHolding, token)
	}
	if n := len(m.entries) + len(m.opening); n >= m.opts.MaxPositions {
		return "", fmt.Errorf("%w: %d/%d", ErrMaxPositions, n, m.opts.MaxPositions)
	}
	id := m.opts.NewID()
	if !m.opts.Ledger.Reserve(id, m.opts.TradeAmount) {
		return "", fmt.Errorf("%w: need %s, available %s", ErrInsufficientCapital, m.opts.TradeAmount, m.opts.Ledger.Available())
	}
	m.opening[token] = id
	return id, nil
}

func (m *Manager) unreserve(token, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Ledger.Release(id)
	delete(m.opening, token)
}

// tick is the outcome of evaluating one position under its lock.
type tick struct {
	reason domain.ExitReason
	sell   *domain.Position // snapshot to sell; CLOSING was persisted
	call   *sellCall
	closed *domain.Position // a pending close was finalized
}

// OnPriceUpdate evaluates one price for one position. When an exit fires the
// position is persisted as CLOSING and exactly one sell is started on a
// manager goroutine; the call returns without waiting for it. Use AwaitSell
// for the outcome. Updates for a CLOSED position are no-ops.
func (m *Manager) OnPriceUpdate(ctx context.Context, id string, price float64, now time.Time) (domain.ExitReason, error) {
	reason, _, err := m.update(ctx, id, price, now)
	return reason, err
}

func (m *Manager) update(ctx context.Context, id string, price float64, now time.Time) (domain.ExitReason, *sellCall, error) {
	start := time.Now()
	defer func() { observability.RecordPriceUpdate(time.Since(start).Seconds()) }()

	e, err := m.lookup(ctx, id)
	if errors.Is(err, ErrPositionClosed) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	e.mu.Lock()
	t, err := m.evaluateLocked(ctx, e, price, now)
	e.mu.Unlock()

	if t.closed != nil {
		m.afterClose(ctx, t.closed)
	}
	if err != nil {
		return "", nil, err
	}
	if t.sell == nil {
		return t.reason, nil, nil
	}

	// The sell outlives the caller's context; SellTimeout bounds it.
	sctx := context.WithoutCancel(ctx)
	m.sells.Add(1)
	go func() {
		defer m.sells.Done()
		t.call.err = m.executeSell(sctx, e, t.sell)
		close(t.call.done)
	}()
	return t.reason, t.call, nil
}

// AwaitSell blocks until the most recent sell started for id resolves and
// returns its result: nil once sold and recorded, ErrSellFailed after a
// revert. It returns nil right away when no sell was started for id.
func (m *Manager) AwaitSell(ctx context.Context, id string) error {
	m.mu.Lock()
	call := m.calls[id]
	m.mu.Unlock()
	if call == nil {
		return nil
	}
	return call.wait(ctx)
}

// Wait blocks until every sell started so far has resolved.
func (m *Manager) Wait() {
	m.sells.Wait()
}

func (m *Manager) evaluateLocked(ctx context.Context, e *entry, price float64, now time.Time) (tick, error) {
	switch e.pos.Status {
	case domain.StatusClosed:
		return tick{}, nil

	case domain.StatusOpen:
		if err := m.promote(ctx, e, now); err != nil {
			return tick{}, err
		}

	case domain.StatusClosing:
		if e.inflight {
			return tick{}, nil
		}
		if e.sold != nil {
			closed, err := m.finalizeLocked(ctx, e, now)
			return tick{closed: closed}, err
		}
		// The previous sell failed but the revert was not persisted, or the
		// position came back from a restart. Retry the revert first.
		next := e.pos.Clone()
		if err := lifecycle.RevertToMonitoring(next, now); err != nil {
			return tick{}, err
		}
		if err := m.commit(ctx, e, next); err != nil {
			return tick{}, err
		}
	}

	next := e.pos.Clone()
	reason, exit := lifecycle.Evaluate(next, price, now, m.opts.Exit)
	if e.manual {
		reason, exit = domain.ExitManual, true
	}

	if !exit {
		if next.PeakPrice != e.pos.PeakPrice || next.TrailingStop != e.pos.TrailingStop {
			next.UpdatedAt = now
			if err := m.commit(ctx, e, next); err != nil {
				return tick{}, err
			}
		} else {
			e.pos.LastPrice = next.LastPrice
		}
		return tick{}, nil
	}

	if err := lifecycle.BeginClosing(next, reason, now); err != nil {
		return tick{}, err
	}
	if err := m.commit(ctx, e, next); err != nil {
		return tick{}, err
	}
	e.manual = false
	e.inflight = true
	call := &sellCall{done: make(chan struct{})}
	m.mu.Lock()
	m.calls[e.pos.ID] = call
	m.mu.Unlock()
	m.opts.Logger.Printf("position %s exit %s at %.10f (entry %.10f, peak %.10f)", e.pos.ID, reason, price, e.pos.EntryPrice, e.pos.PeakPrice)
	return tick{reason: reason, sell: e.pos.Clone(), call: call}, nil
}

// executeSell issues the single sell for a CLOSING position. No lock is held
// while the executor runs.
func (m *Manager) executeSell(ctx context.Context, e *entry, snap *domain.Position) error {
	sctx, cancel := context.WithTimeout(ctx, m.opts.SellTimeout)
	res, sellErr := m.opts.Executor.Sell(sctx, snap)
	cancel()
	if sellErr == nil && res == nil {
		sellErr = errors.New("empty sell result")
	}
	if sellErr == nil && res.Proceeds.IsNegative() {
		sellErr = fmt.Errorf("%w: %s", ErrInvalidProceeds, res.Proceeds)
	}

	// A confirmed sell must be recorded even if the caller is shutting down.
	pctx := context.WithoutCancel(ctx)
	now := m.opts.Clock()

	e.mu.Lock()
	e.inflight = false
	if e.pos.Status != domain.StatusClosing {
		// Closed through Close while the sell was in flight.
		e.mu.Unlock()
		return nil
	}

	if sellErr != nil {
		next := e.pos.Clone()
		var perr error
		if err := lifecycle.RevertToMonitoring(next, now); err == nil {
			perr = m.commit(pctx, e, next)
		}
		failed := e.pos.Clone()
		e.mu.Unlock()

		m.mu.Lock()
		m.stats.sellFailures++
		m.mu.Unlock()
		observability.RecordSellFailure()
		m.opts.Logger.Printf("sell %s failed (attempt %d), back to monitoring: %v", snap.ID, snap.SellAttempts, sellErr)
		m.notify(ctx, domain.Event{Type: domain.EventSellFailed, At: now, Position: failed, Error: sellErr.Error()})

		err := fmt.Errorf("%w: %w", ErrSellFailed, sellErr)
		if perr != nil {
			err = errors.Join(err, perr)
		}
		return err
	}

	e.sold = res
	closed, err := m.finalizeLocked(pctx, e, now)
	e.mu.Unlock()
	if err != nil {
		m.opts.Logger.Printf("sell %s confirmed but close not persisted, will retry: %v", snap.ID, err)
		return err
	}
	m.afterClose(ctx, closed)
	return nil
}

// Close finalizes a CLOSING position with the given exit proceeds, releasing
// its capital. Closing an already CLOSED position is a no-op, so duplicate
// confirmations are harmless. Negative proceeds are refused.
func (m *Manager) Close(ctx context.Context, id string, proceeds decimal.Decimal) error {
	if proceeds.IsNegative() {
		return fmt.Errorf("%w: %s for %s", ErrInvalidProceeds, proceeds, id)
	}
	e, err := m.lookup(ctx, id)
	if errors.Is(err, ErrPositionClosed) {
		return nil
	}
	if err != nil {
		return err
	}

	now := m.opts.Clock()
	e.mu.Lock()
	switch e.pos.Status {
	case domain.StatusClosed:
		e.mu.Unlock()
		return nil
	case domain.StatusClosing:
	default:
		status := e.pos.Status
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotClosing, id, status)
	}
	if e.sold == nil {
		e.sold = &executor.SellResult{Proceeds: proceeds, Price: e.pos.LastPrice, At: now}
	}
	closed, err := m.finalizeLocked(ctx, e, now)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	m.afterClose(ctx, closed)
	return nil
}

// finalizeLocked persists CLOSED and settles the ledger. Caller holds e.mu.
func (m *Manager) finalizeLocked(ctx context.Context, e *entry, now time.Time) (*domain.Position, error) {
	res := e.sold
	next := e.pos.Clone()
	if err := lifecycle.Finalize(next, res.Proceeds, res.Price, res.TxID, now); err != nil {
		return nil, err
	}
	if err := m.commit(ctx, e, next); err != nil {
		return nil, err
	}
	e.sold = nil
	closed := e.pos.Clone()

	m.mu.Lock()
	m.opts.Ledger.Settle(closed.ID, closed.RealizedPnL)
	delete(m.entries, closed.ID)
	if m.byToken[closed.TokenAddress] == closed.ID {
		delete(m.byToken, closed.TokenAddress)
	}
	m.archiveLocked(closed)
	m.stats.byReason[closed.ExitReason]++
	if closed.IsWin() {
		m.stats.wins++
		m.stats.profit = m.stats.profit.Add(closed.RealizedPnL)
	} else {
		m.stats.losses++
		m.stats.loss = m.stats.loss.Add(closed.RealizedPnL.Abs())
	}
	m.mu.Unlock()
	return closed, nil
}

func (m *Manager) afterClose(ctx context.Context, closed *domain.Position) {
	observability.RecordPositionClosed(string(closed.ExitReason))
	m.updateGauges()
	m.opts.Logger.Printf("closed %s %s: %s, pnl %s SOL", closed.ID, closed.TokenAddress, closed.ExitReason, closed.RealizedPnL.StringFixed(6))

	if m.opts.Recorder != nil {
		if err := m.opts.Recorder.RecordClosed(ctx, closed); err != nil {
			m.opts.Logger.Printf("record closed trade %s: %v", closed.ID, err)
		}
	}
	m.notify(ctx, domain.Event{Type: domain.EventPositionClosed, At: m.opts.Clock(), Position: closed})
}

// RequestClose is the manual override. It is accepted while OPEN or
// MONITORING, marks the position so the next evaluation exits with MANUAL,
// runs that evaluation immediately at the last known price and waits for
// the resulting sell.
func (m *Manager) RequestClose(ctx context.Context, id string) (domain.ExitReason, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	switch e.pos.Status {
	case domain.StatusClosed:
		e.mu.Unlock()
		return "", ErrPositionClosed
	case domain.StatusClosing:
		pending := e.pos.PendingExit
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s (%s)", ErrClosingInProgress, id, pending)
	}
	e.manual = true
	price := e.pos.LastPrice
	if price <= 0 {
		price = e.pos.EntryPrice
	}
	e.mu.Unlock()

	m.opts.Logger.Printf("manual close requested for %s", id)
	reason, call, err := m.update(ctx, id, price, m.opts.Clock())
	if err != nil || call == nil {
		return reason, err
	}
	return reason, call.wait(ctx)
}

// Recover restores persisted positions on startup. Every non-CLOSED position
// gets its ledger reservation back before Open is allowed. OPEN and CLOSING
// positions are normalized to MONITORING: a lost sell confirmation is retried
// on the next tick. If capital cannot cover all positions nothing is restored.
func (m *Manager) Recover(ctx context.Context, positions []*domain.Position) error {
	m.mu.Lock()
	done := m.recovered
	m.mu.Unlock()
	if done {
		return ErrAlreadyRecovered
	}

	seen := make(map[string]struct{}, len(positions))
	var live, history []*domain.Position
	for _, p := range positions {
		if p == nil || p.ID == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			m.opts.Logger.Printf("recover: duplicate position %s ignored", p.ID)
			continue
		}
		seen[p.ID] = struct{}{}
		if !p.Status.Valid() {
			return fmt.Errorf("recover %s: unknown status %q", p.ID, p.Status)
		}
		if p.Status == domain.StatusClosed {
			history = append(history, p.Clone())
			continue
		}
		live = append(live, p.Clone())
	}

	now := m.opts.Clock()
	for _, p := range live {
		if p.PeakPrice < p.EntryPrice {
			p.PeakPrice = p.EntryPrice
		}
		if trail := m.opts.Exit.TrailLevel(p.PeakPrice); trail > p.TrailingStop {
			p.TrailingStop = trail
		}
		if p.Status == domain.StatusMonitoring {
			continue
		}
		from := p.Status
		p.Status = domain.StatusMonitoring
		p.PendingExit = ""
		p.UpdatedAt = now
		p.Version++
		if err := m.save(ctx, p); err != nil {
			return fmt.Errorf("recover %s: %w", p.ID, err)
		}
		m.opts.Logger.Printf("recover: %s %s -> MONITORING", p.ID, from)
	}

	if err := m.restore(live, history); err != nil {
		return err
	}
	m.updateGauges()
	return nil
}

// restore installs recovered positions and their reservations atomically.
func (m *Manager) restore(live, history []*domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recovered {
		return ErrAlreadyRecovered
	}

	reserved := make([]string, 0, len(live))
	for _, p := range live {
		amt := p.EntryCost
		if !amt.IsPositive() {
			amt = p.EntryAmount
		}
		if !m.opts.Ledger.Reserve(p.ID, amt) {
			for _, id := range reserved {
				m.opts.Ledger.Release(id)
			}
			return fmt.Errorf("%w: cannot restore %s reservation for %s (available %s)",
				ErrInsufficientCapital, amt, p.ID, m.opts.Ledger.Available())
		}
		reserved = append(reserved, p.ID)
	}
	for _, p := range live {
		m.entries[p.ID] = &entry{pos: p}
		m.byToken[p.TokenAddress] = p.ID
	}
	m.stats.opened += len(live)
	if len(live) > m.opts.MaxPositions {
		m.opts.Logger.Printf("recover: %d positions exceed max %d, new opens blocked until some close", len(live), m.opts.MaxPositions)
	}

	sort.Slice(history, func(i, j int) bool {
		return closedAt(history[i]).Before(closedAt(history[j]))
	})
	for _, p := range history {
		m.archiveLocked(p)
	}

	m.recovered = true
	m.opts.Logger.Printf("recovered %d open and %d closed positions, reserved %s", len(live), len(history), m.opts.Ledger.Reserved())
	return nil
}

// LoadAndRecover reads positions from the store and recovers them.
func (m *Manager) LoadAndRecover(ctx context.Context) error {
	live, err := m.opts.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	history, err := m.opts.Store.LoadClosed(ctx, m.opts.Retention)
	if err != nil {
		return fmt.Errorf("load closed positions: %w", err)
	}
	return m.Recover(ctx, append(live, history...))
}

// promote moves OPEN -> MONITORING and persists it. Caller holds e.mu.
func (m *Manager) promote(ctx context.Context, e *entry, now time.Time) error {
	next := e.pos.Clone()
	if err := lifecycle.Transition(next, domain.StatusMonitoring, now); err != nil {
		return err
	}
	return m.commit(ctx, e, next)
}

// commit persists next as the new version of e.pos and swaps it in only on
// success, so a failed save leaves the in-memory state untouched.
func (m *Manager) commit(ctx context.Context, e *entry, next *domain.Position) error {
	next.Version = e.pos.Version + 1
	if err := m.save(ctx, next); err != nil {
		return err
	}
	e.pos = next
	return nil
}

func (m *Manager) save(ctx context.Context, p *domain.Position) error {
	var err error
	for attempt := 0; attempt <= m.opts.SaveRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w %s: %w", ErrPersistence, p.ID, ctx.Err())
			case <-time.After(m.opts.RetryDelay):
			}
		}
		if err = m.opts.Store.Save(ctx, p); err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrStaleVersion) || errors.Is(err, storage.ErrInvalidInput) {
			break
		}
	}
	return fmt.Errorf("%w %s: %w", ErrPersistence, p.ID, err)
}

// lookup finds a tracked position. Ids that have left memory are checked
// against the store, so a position closed long ago stays terminal.
func (m *Manager) lookup(ctx context.Context, id string) (*entry, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	_, closed := m.closedIDs[id]
	m.mu.Unlock()
	if ok {
		return e, nil
	}
	if closed {
		return nil, ErrPositionClosed
	}

	p, err := m.opts.Store.GetByID(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	case err != nil:
		return nil, fmt.Errorf("look up %s: %w", id, err)
	case p.Status == domain.StatusClosed:
		return nil, ErrPositionClosed
	}
	// Persisted but not tracked: Recover refused it or it belongs to
	// another session.
	return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
}

func (m *Manager) archiveLocked(p *domain.Position) {
	m.closedIDs[p.ID] = struct{}{}
	m.closed = append(m.closed, p)
	if over := len(m.closed) - m.opts.Retention; over > 0 {
		for _, old := range m.closed[:over] {
			delete(m.closedIDs, old.ID)
			delete(m.calls, old.ID)
		}
		m.closed = append([]*domain.Position(nil), m.closed[over:]...)
	}
}

func (m *Manager) notify(ctx context.Context, ev domain.Event) {
	if m.opts.Notifier == nil {
		return
	}
	if err := m.opts.Notifier.Notify(ctx, ev); err != nil {
		m.opts.Logger.Printf("notify %s: %v", ev.Type, err)
	}
}

func (m *Manager) updateGauges() {
	m.mu.Lock()
	open := len(m.entries)
	net := m.stats.profit.Sub(m.stats.loss)
	m.mu.Unlock()

	snap := m.opts.Ledger.Snapshot()
	avail, _ := snap.Available.Float64()
	reserved, _ := snap.Reserved.Float64()
	realized, _ := net.Float64()
	observability.UpdatePositions(open, avail, reserved, realized)
}

func closedAt(p *domain.Position) time.Time {
	if p.ClosedAt != nil {
		return *p.ClosedAt
	}
	return p.UpdatedAt
}

func rejectLabel(err error) string {
	switch {
	case errors.Is(err, ErrMaxPositions):
		return "max_positions"
	case errors.Is(err, ErrInsufficientCapital):
		return "insufficient_capital"
	case errors.Is(err, ErrAlreadyHolding):
		return "already_holding"
	case errors.Is(err, ErrRecoveryPending):
		return "recovery_pending"
	}
	return "other"
}
