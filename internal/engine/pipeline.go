// Package engine runs the two long-lived loops of the sentinel: the decision
// pipeline that scores new pairs and the monitor that feeds prices to open
// positions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"dex-pair-sentinel/internal/discovery"
	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/notify"
	"dex-pair-sentinel/internal/observability"
	"dex-pair-sentinel/internal/position"
	"dex-pair-sentinel/internal/scoring"
	"dex-pair-sentinel/internal/storage"
)

// Candidate actions.
const (
	ActionSkip   = "skip"
	ActionAlert  = "alert"
	ActionTrade  = "trade"
	ActionFilter = "filtered"
)

// Enricher fills in metrics a feed did not supply.
type Enricher interface {
	Enrich(ctx context.Context, c domain.Candidate) domain.Candidate
}

// Opener opens positions. Implemented by position.Manager.
type Opener interface {
	Open(ctx context.Context, c domain.Candidate, score domain.ScoreBreakdown) (*domain.Position, error)
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Source  discovery.CandidateSource // required
	Scoring *scoring.Config // default scoring.DefaultConfig()
	Weights scoring.Weights

	Guard     *discovery.MonotonicGuard // default: 1h TTL, 100k tokens
	Enricher  Enricher                  // optional
	Positions Opener                    // required when AutoTrade
	Scores    storage.ScoreEventStore   // optional
	Recorder  storage.TradeRecorder     // optional analytics sink
	Notifier  notify.Notifier           // optional

	AutoTrade      bool
	AlertThreshold float64       // default 70
	Workers        int           // candidates scored concurrently, default 4
	BatchSize      int           // score events per recorder flush, default 100
	FlushInterval  time.Duration // default 5s

	Clock  func() time.Time
	NewID  func() string
	Logger *log.Logger
}

// Decision is the outcome of handling one candidate.
type Decision struct {
	Candidate domain.Candidate
	Score     *domain.ScoreBreakdown // nil when filtered
	Action    string
	Reason    string
	Position  *domain.Position
	Err       error
}

// Pipeline scores candidates and acts on the ones that clear the threshold.
type Pipeline struct {
	opts PipelineOptions

	mu      sync.RWMutex
	filter  *scoring.QuickFilter
	calc    *scoring.Calculator
	weights scoring.Weights

	statsMu sync.Mutex
	stats   ScorerStats

	batchMu sync.Mutex
	batch   []*domain.ScoreEvent
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, errors.New("pipeline requires a candidate source")
	}
	if opts.AutoTrade && opts.Positions == nil {
		return nil, errors.New("auto-trade requires a position manager")
	}
	cfg := scoring.DefaultConfig()
	if opts.Scoring != nil {
		cfg = *opts.Scoring
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Weights == (scoring.Weights{}) {
		opts.Weights = scoring.DefaultWeights()
	}
	if opts.Guard == nil {
		opts.Guard = discovery.NewMonotonicGuard(time.Hour, 100_000)
	}
	if opts.AlertThreshold <= 0 {
		opts.AlertThreshold = 70
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
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

	p := &Pipeline{opts: opts}
	p.SetScoring(cfg, opts.Weights)
	return p, nil
}

// SetScoring swaps ranges and weights. Candidates already being scored keep
// the previous calculator.
func (p *Pipeline) SetScoring(cfg scoring.Config, w scoring.Weights) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = scoring.NewQuickFilter(cfg)
	p.calc = scoring.NewCalculator(cfg)
	p.weights = w
}

func (p *Pipeline) scorer() (*scoring.QuickFilter, *scoring.Calculator, scoring.Weights) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filter, p.calc, p.weights
}

// Run consumes the source until ctx is done or the source closes.
func (p *Pipeline) Run(ctx context.Context) error {
	raw, err := p.opts.Source.Candidates(ctx)
	if err != nil {
		return fmt.Errorf("start candidate source: %w", err)
	}
	in := p.opts.Guard.Filter(ctx, raw)

	mode := "signal-only"
	if p.opts.AutoTrade {
		mode = "auto-trade"
	}
	p.opts.Logger.Printf("pipeline started (%s, threshold %.0f, %d workers)", mode, p.opts.AlertThreshold, p.opts.Workers)

	flushDone := make(chan struct{})
	flushCtx, stopFlush := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		defer close(flushDone)
		p.flushLoop(flushCtx)
	}()

	sem := make(chan struct{}, p.opts.Workers)
	var wg sync.WaitGroup
	for c := range in {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(c domain.Candidate) {
			defer wg.Done()
			defer func() { <-sem }()
			p.safeHandle(ctx, c)
		}(c)
	}
	wg.Wait()

	stopFlush()
	<-flushDone
	p.flush(context.WithoutCancel(ctx))
	p.opts.Logger.Printf("pipeline stopped")
	return ctx.Err()
}

// safeHandle keeps a panic in one candidate's enrichment or scoring from
// taking down the worker pool.
func (p *Pipeline) safeHandle(ctx context.Context, c domain.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordCandidateDropped("panic")
			p.opts.Logger.Printf("candidate %s panicked: %v", c.TokenAddress, r)
		}
	}()
	p.Handle(ctx, c)
}

// Handle runs one candidate through filter, enrichment, scoring and action.
// A failure for one candidate is reported in the decision and never stops
// the pipeline.
func (p *Pipeline) Handle(ctx context.Context, c domain.Candidate) Decision {
	filter, calc, weights := p.scorer()

	if ok, reason := filter.Check(c); !ok {
		observability.RecordFiltered(filterLabel(reason))
		p.count(func(s *ScorerStats) { s.Filtered++ })
		return Decision{Candidate: c, Action: ActionFilter, Reason: reason}
	}

	if p.opts.Enricher != nil {
		c = p.opts.Enricher.Enrich(ctx, c)
	}

	score := calc.Score(c, weights)
	d := Decision{Candidate: c, Score: &score, Action: ActionSkip, Reason: score.RejectReason}
	passes := score.Passes(p.opts.AlertThreshold)

	switch {
	case !passes:
	case p.opts.AutoTrade:
		pos, err := p.opts.Positions.Open(ctx, c, score)
		d.Position = pos
		if pos != nil {
			d.Action = ActionTrade
		} else {
			d.Action = ActionAlert
		}
		if err != nil {
			d.Err = err
			d.Reason = err.Error()
			if !isOpenRejection(err) {
				p.opts.Logger.Printf("open %s failed: %v", c.TokenAddress, err)
			}
		}
	default:
		d.Action = ActionAlert
	}

	p.record(ctx, calc.Config(), c, score, d.Action)
	if d.Action != ActionSkip {
		p.notify(ctx, domain.Event{
			Type:      domain.EventCandidateScored,
			At:        p.opts.Clock(),
			Candidate: &d.Candidate,
			Score:     &score,
			Position:  d.Position,
			Action:    d.Action,
		})
	}
	return d
}

// record updates stats and metrics and persists the score event.
func (p *Pipeline) record(ctx context.Context, cfg scoring.Config, c domain.Candidate, score domain.ScoreBreakdown, action string) {
	observability.RecordScore(action, score.Total, score.Rejected)
	p.count(func(s *ScorerStats) {
		s.Analyzed++
		if score.Passes(p.opts.AlertThreshold) {
			s.Passed++
		} else {
			s.Failed++
		}
		if c.IsHoneypot() {
			s.Honeypots++
		}
		if highTax(cfg, c) {
			s.HighTax++
		}
	})

	ev := &domain.ScoreEvent{
		ID:           p.opts.NewID(),
		TokenAddress: c.TokenAddress,
		PairAddress:  c.PairAddress,
		Total:        score.Total,
		Rejected:     score.Rejected,
		RejectReason: score.RejectReason,
		Components:   score.Components,
		Action:       action,
		ScoredAt:     p.opts.Clock(),
	}
	if p.opts.Scores != nil {
		if err := p.opts.Scores.Insert(ctx, ev); err != nil {
			p.opts.Logger.Printf("store score event %s: %v", c.TokenAddress, err)
		}
	}
	if p.opts.Recorder != nil {
		p.batchMu.Lock()
		p.batch = append(p.batch, ev)
		full := len(p.batch) >= p.opts.BatchSize
		p.batchMu.Unlock()
		if full {
			p.flush(ctx)
		}
	}
}

func (p *Pipeline) flushLoop(ctx context.Context) {
	if p.opts.Recorder == nil {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(p.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

// flush sends buffered score events to the recorder. A failed batch is dropped.
func (p *Pipeline) flush(ctx context.Context) {
	if p.opts.Recorder == nil {
		return
	}
	p.batchMu.Lock()
	events := p.batch
	p.batch = nil
	p.batchMu.Unlock()
	if len(events) == 0 {
		return
	}
	if err := p.opts.Recorder.RecordScores(ctx, events); err != nil {
		p.opts.Logger.Printf("record %d score events: %v", len(events), err)
	}
}

func (p *Pipeline) notify(ctx context.Context, ev domain.Event) {
	if p.opts.Notifier == nil {
		return
	}
	if err := p.opts.Notifier.Notify(ctx, ev); err != nil {
		p.opts.Logger.Printf("notify %s: %v", ev.Type, err)
	}
}

func isOpenRejection(err error) bool {
	return errors.Is(err, position.ErrMaxPositions) ||
		errors.Is(err, position.ErrInsufficientCapital) ||
		errors.Is(err, position.ErrAlreadyHolding) ||
		errors.Is(err, position.ErrRecoveryPending)
}
