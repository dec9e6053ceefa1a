package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/executor"
	"dex-pair-sentinel/internal/observability"
)

// Tracker is the part of position.Manager the monitor drives.
type Tracker interface {
	OpenPositions() []*domain.Position
	OnPriceUpdate(ctx context.Context, id string, price float64, now time.Time) (domain.ExitReason, error)
}

// BatchPriceSource quotes many tokens in one call.
type BatchPriceSource interface {
	Prices(ctx context.Context, tokens []string) (map[string]float64, error)
}

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	Positions Tracker              // required
	Prices    executor.PriceSource // required; batched when it implements BatchPriceSource

	Interval time.Duration // default 30s
	Workers  int           // positions evaluated concurrently, default 4

	Clock  func() time.Time
	Logger *log.Logger
}

// TickResult summarizes one monitor pass.
type TickResult struct {
	Checked int
	Stale   int // evaluated at the last known price
	Exits   map[domain.ExitReason]int
	Errors  int
}

// Monitor periodically prices every open position and feeds the manager.
type Monitor struct {
	opts MonitorOptions
}

// NewMonitor creates a Monitor.
func NewMonitor(opts MonitorOptions) (*Monitor, error) {
	if opts.Positions == nil || opts.Prices == nil {
		return nil, errors.New("monitor requires positions and a price source")
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Monitor{opts: opts}, nil
}

// Run ticks until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.opts.Logger.Printf("monitor started, interval %s", m.opts.Interval)
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.opts.Logger.Printf("monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			res := m.Tick(ctx)
			if res.Checked > 0 {
				m.opts.Logger.Printf("monitor: checked %d, stale %d, exits %v, errors %d", res.Checked, res.Stale, res.Exits, res.Errors)
			}
		}
	}
}

// Tick prices every open position once. A position without a fresh quote is
// evaluated at its last known price so time limits still fire.
func (m *Monitor) Tick(ctx context.Context) TickResult {
	now := m.opts.Clock()
	observability.RecordMonitorTick(now.Unix())

	positions := m.opts.Positions.OpenPositions()
	res := TickResult{Exits: make(map[domain.ExitReason]int)}
	if len(positions) == 0 {
		return res
	}
	prices := m.prices(ctx, positions)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, m.opts.Workers)
	)
	for _, p := range positions {
		if p.Status == domain.StatusClosing {
			continue
		}
		price, fresh := prices[p.TokenAddress]
		if !fresh {
			price = p.LastPrice
		}
		if price <= 0 {
			price = p.EntryPrice
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return res
		}
		wg.Add(1)
		go func(p *domain.Position, price float64, fresh bool) {
			defer wg.Done()
			defer func() { <-sem }()

			reason, err := m.update(ctx, p.ID, price, now)

			mu.Lock()
			defer mu.Unlock()
			res.Checked++
			if !fresh {
				res.Stale++
			}
			if reason != "" {
				res.Exits[reason]++
			}
			if err != nil {
				res.Errors++
				m.opts.Logger.Printf("position %s update: %v", p.ID, err)
			}
		}(p, price, fresh)
	}
	wg.Wait()
	return res
}

// update feeds one price to the tracker. A panic is reported as an error
// for that position only.
func (m *Monitor) update(ctx context.Context, id string, price float64, now time.Time) (reason domain.ExitReason, err error) {
	defer func() {
		if r := recover(); r != nil {
			reason, err = "", fmt.Errorf("panic: %v", r)
		}
	}()
	return m.opts.Positions.OnPriceUpdate(ctx, id, price, now)
}

// prices quotes the distinct tokens of positions. Failures leave tokens out.
func (m *Monitor) prices(ctx context.Context, positions []*domain.Position) map[string]float64 {
	seen := make(map[string]struct{}, len(positions))
	tokens := make([]string, 0, len(positions))
	for _, p := range positions {
		if _, ok := seen[p.TokenAddress]; ok {
			continue
		}
		seen[p.TokenAddress] = struct{}{}
		tokens = append(tokens, p.TokenAddress)
	}

	if batch, ok := m.opts.Prices.(BatchPriceSource); ok {
		out, err := batch.Prices(ctx, tokens)
		if err != nil {
			m.opts.Logger.Printf("monitor: batch price fetch for %d tokens: %v", len(tokens), err)
			return map[string]float64{}
		}
		return out
	}

	out := make(map[string]float64, len(tokens))
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, m.opts.Workers)
	)
	for _, token := range tokens {
		wg.Add(1)
		sem <- struct{}{}
		go func(token string) {
			defer wg.Done()
			defer func() { <-sem }()
			price, err := m.opts.Prices.Price(ctx, token)
			if err != nil || price <= 0 {
				if err != nil {
					m.opts.Logger.Printf("monitor: price %s: %v", token, err)
				}
				return
			}
			mu.Lock()
			out[token] = price
			mu.Unlock()
		}(token)
	}
	wg.Wait()
	return out
}
