package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/observability"
	"dex-pair-sentinel/internal/solana"
	"dex-pair-sentinel/internal/storage"
)

// CandidateSource streams candidate snapshots until ctx is done or the
// underlying feed ends, then closes the channel.
type CandidateSource interface {
	Candidates(ctx context.Context) (<-chan domain.Candidate, error)
}

// Drop reasons reported by the detector.
var (
	ErrNotPoolInit   = errors.New("not a pool initialization")
	ErrTxUnavailable = errors.New("transaction unavailable")
	ErrNonSOLQuote   = errors.New("pool not quoted in SOL")
	ErrDuplicatePool = errors.New("pool already seen")
)

// DetectorOptions configures a Detector.
type DetectorOptions struct {
	Logs solana.LogSubscriber // required
	RPC  solana.RPCClient     // required

	// Seen persists emitted pools across restarts. Optional.
	Seen storage.SeenPoolStore

	Program      string        // AMM program, default Raydium AMM v4
	DEX          string        // dex label, default "raydium"
	Workers      int           // concurrent transaction fetches, default 4
	Buffer       int           // output channel size, default 256
	TxAttempts   int           // getTransaction attempts per signature, default 5
	TxRetryDelay time.Duration // default 400ms

	Clock  func() time.Time
	Logger *log.Logger
}

// Detector turns AMM pool initializations into candidates. It subscribes to
// program logs, fetches each init transaction and decodes the initial
// reserves.
type Detector struct {
	opts DetectorOptions

	mu   sync.Mutex
	seen map[string]struct{} // pool addresses
}

// NewDetector creates a pool detector.
func NewDetector(opts DetectorOptions) *Detector {
	if opts.Program == "" {
		opts.Program = solana.RaydiumAMMV4
	}
	if opts.DEX == "" {
		opts.DEX = "raydium"
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.TxAttempts <= 0 {
		opts.TxAttempts = 5
	}
	if opts.TxRetryDelay <= 0 {
		opts.TxRetryDelay = 400 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Detector{opts: opts, seen: make(map[string]struct{})}
}

// Candidates subscribes to the program's logs and emits one candidate per new pool.
func (d *Detector) Candidates(ctx context.Context) (<-chan domain.Candidate, error) {
	if err := d.warm(ctx); err != nil {
		return nil, err
	}
	notes, err := d.opts.Logs.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{d.opts.Program}})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s logs: %w", d.opts.DEX, err)
	}

	out := make(chan domain.Candidate, d.opts.Buffer)
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case n, ok := <-notes:
					if !ok {
						return
					}
					c, err := d.Process(ctx, n)
					if err != nil {
						d.drop(n.Signature, err)
						continue
					}
					select {
					case out <- *c:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (d *Detector) drop(sig string, err error) {
	switch {
	case errors.Is(err, ErrNotPoolInit):
		return
	case errors.Is(err, ErrDuplicatePool):
		observability.RecordCandidateDropped("duplicate_pool")
	case errors.Is(err, ErrNonSOLQuote):
		observability.RecordCandidateDropped("non_sol_quote")
	case errors.Is(err, context.Canceled):
		return
	default:
		observability.RecordCandidateDropped("decode_failed")
		d.opts.Logger.Printf("pool %s skipped: %v", sig, err)
	}
}

// Process decodes one log notification into a candidate.
func (d *Detector) Process(ctx context.Context, n solana.LogNotification) (*domain.Candidate, error) {
	if n.Failed || !IsPoolInit(n.Logs) {
		return nil, ErrNotPoolInit
	}

	tx, err := d.fetch(ctx, n.Signature)
	if err != nil {
		return nil, err
	}
	ix, ok := ParseInitialize2(tx, d.opts.Program)
	if !ok {
		return nil, ErrNotPoolInit
	}
	logs := tx.Logs
	if len(logs) == 0 {
		logs = n.Logs
	}
	rl, _ := ParseInitLog(logs)
	ev := NewPoolEvent(tx, d.opts.Program, ix, rl)
	if ev.Slot == 0 {
		ev.Slot = n.Slot
	}

	if !ev.SOLQuoted() {
		return nil, fmt.Errorf("%w: %s/%s", ErrNonSOLQuote, ev.BaseMint, ev.QuoteMint)
	}
	if !d.markSeen(ctx, ev.Pool, ev.BaseMint) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePool, ev.Pool)
	}
	if ev.BaseDecimals < 0 {
		// No init log in this transaction: read decimals from the mint.
		if dec, err := d.decimals(ctx, ev.BaseMint); err == nil {
			ev.BaseDecimals = dec
		} else {
			d.opts.Logger.Printf("pool %s: mint decimals unavailable: %v", ev.Pool, err)
		}
	}

	observability.RecordPoolDetected(d.opts.DEX)
	c := d.candidate(ev)
	return &c, nil
}

func (d *Detector) fetch(ctx context.Context, sig string) (*solana.Transaction, error) {
	for attempt := 1; ; attempt++ {
		tx, err := d.opts.RPC.GetTransaction(ctx, sig)
		if err == nil && tx != nil {
			if tx.Failed {
				return nil, ErrNotPoolInit
			}
			return tx, nil
		}
		if attempt >= d.opts.TxAttempts {
			if err == nil {
				err = ErrTxUnavailable
			}
			return nil, fmt.Errorf("get transaction %s: %w", sig, err)
		}
		// Logs stream ahead of getTransaction indexing.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.opts.TxRetryDelay):
		}
	}
}

func (d *Detector) decimals(ctx context.Context, mint string) (int, error) {
	info, err := d.opts.RPC.GetAccountInfo(ctx, mint)
	if err != nil {
		return -1, err
	}
	if info == nil {
		return -1, fmt.Errorf("mint %s not found", mint)
	}
	m, err := solana.DecodeMint(info.Data)
	if err != nil {
		return -1, err
	}
	return int(m.Decimals), nil
}

// warm loads previously emitted pools from the seen store.
func (d *Detector) warm(ctx context.Context) error {
	if d.opts.Seen == nil {
		return nil
	}
	pools, err := d.opts.Seen.LoadSeen(ctx)
	if err != nil {
		return fmt.Errorf("load seen pools: %w", err)
	}
	d.mu.Lock()
	for _, p := range pools {
		d.seen[p] = struct{}{}
	}
	d.mu.Unlock()
	if len(pools) > 0 {
		d.opts.Logger.Printf("loaded %d seen pools", len(pools))
	}
	return nil
}

func (d *Detector) markSeen(ctx context.Context, pool, token string) bool {
	d.mu.Lock()
	if _, ok := d.seen[pool]; ok {
		d.mu.Unlock()
		return false
	}
	d.seen[pool] = struct{}{}
	d.mu.Unlock()

	if d.opts.Seen != nil {
		// The in-memory set stays authoritative for this process.
		if _, err := d.opts.Seen.MarkSeen(ctx, storage.SeenPool{PoolAddress: pool, TokenAddress: token}); err != nil {
			d.opts.Logger.Printf("persist seen pool %s: %v", pool, err)
		}
	}
	return true
}

func (d *Detector) candidate(ev *PoolEvent) domain.Candidate {
	c := domain.Candidate{
		TokenAddress:  ev.BaseMint,
		PairAddress:   ev.Pool,
		DEX:           d.opts.DEX,
		Factory:       ev.Program,
		PairCreatedAt: ev.BlockTime,
		ObservedAt:    d.opts.Clock(),
	}
	if ev.QuoteAmount > 0 {
		c.LiquidityNative = domain.Ptr(ev.QuoteLiquidity())
	}
	if p, ok := ev.Price(); ok {
		c.PriceNative = domain.Ptr(p)
	}
	return c
}

var _ CandidateSource = (*Detector)(nil)
