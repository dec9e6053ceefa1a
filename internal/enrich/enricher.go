// Package enrich fills in candidate metrics that a feed did not supply:
// mint authorities and Token-2022 extensions, holder concentration and
// metadata from Solana RPC, plus market data from a quote source.
package enrich

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/market"
	"dex-pair-sentinel/internal/solana"
)

// QuoteSource returns market data for a token.
type QuoteSource interface {
	Quote(ctx context.Context, token string) (*market.Quote, error)
}

// Options configures an Enricher. Either collaborator may be nil.
type Options struct {
	RPC    solana.RPCClient
	Quotes QuoteSource

	// ExcludedOwners are holder owners skipped when measuring concentration,
	// e.g. AMM vault authorities. Default: Raydium AMM authority.
	ExcludedOwners []string
	HolderLookups  int           // largest accounts inspected, default 5
	Timeout        time.Duration // per candidate, default 10s

	Logger *log.Logger
}

// Enricher queries collaborators concurrently and merges what they return.
// Fields already present on the candidate are never overwritten. A failed
// lookup leaves its fields unknown.
type Enricher struct {
	opts     Options
	excluded map[solana.PublicKey]struct{}
}

// New creates an Enricher.
func New(opts Options) *Enricher {
	if opts.ExcludedOwners == nil {
		opts.ExcludedOwners = []string{solana.RaydiumAuthority}
	}
	if opts.HolderLookups <= 0 {
		opts.HolderLookups = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	excluded := make(map[solana.PublicKey]struct{}, len(opts.ExcludedOwners))
	for _, s := range opts.ExcludedOwners {
		if pk, err := solana.ParsePublicKey(s); err == nil {
			excluded[pk] = struct{}{}
		}
	}
	return &Enricher{opts: opts, excluded: excluded}
}

// result collects lookups; each goroutine writes only its own fields.
type result struct {
	mint     *solana.Mint
	topShare *float64
	meta     *solana.Metadata
	metaSeen bool // metadata account lookup succeeded (present or absent)
	quote    *market.Quote
}

// Enrich returns a copy of c with missing metrics filled in.
func (e *Enricher) Enrich(ctx context.Context, c domain.Candidate) domain.Candidate {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var (
		r  result
		wg sync.WaitGroup
	)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && ctx.Err() == nil {
				e.opts.Logger.Printf("enrich %s %s: %v", c.TokenAddress, name, err)
			}
		}()
	}

	if e.opts.RPC != nil {
		run("mint", func() (err error) {
			r.mint, err = e.mint(ctx, c.TokenAddress)
			return err
		})
		if c.TopHolderPct == nil {
			run("holders", func() (err error) {
				r.topShare, err = e.topHolder(ctx, c.TokenAddress, c.PairAddress)
				return err
			})
		}
		if c.Security.Verified == nil || c.Symbol == "" {
			run("metadata", func() (err error) {
				r.meta, err = e.metadata(ctx, c.TokenAddress)
				r.metaSeen = err == nil
				return err
			})
		}
	}
	if e.opts.Quotes != nil && needsQuote(c) {
		run("quote", func() (err error) {
			r.quote, err = e.opts.Quotes.Quote(ctx, c.TokenAddress)
			return err
		})
	}
	wg.Wait()

	return merge(c, r)
}

func needsQuote(c domain.Candidate) bool {
	return c.LiquidityNative == nil || c.MarketCap == nil || c.PriceNative == nil || c.Symbol == "" || c.PairCreatedAt.IsZero()
}

func (e *Enricher) mint(ctx context.Context, token string) (*solana.Mint, error) {
	info, err := e.opts.RPC.GetAccountInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("mint account not found")
	}
	if info.Owner != solana.TokenProgram && info.Owner != solana.Token2022Program {
		return nil, fmt.Errorf("mint owned by %s, not a token program", info.Owner)
	}
	m, err := solana.DecodeMint(info.Data)
	if err != nil {
		return nil, err
	}
	if m.TransferFeeBps == nil {
		// No transfer fee extension: transfers are untaxed.
		m.TransferFeeBps = new(uint16)
	}
	return m, nil
}

// topHolder returns the largest share of supply held by one owner that is not
// the pool itself.
func (e *Enricher) topHolder(ctx context.Context, token, pool string) (*float64, error) {
	supply, err := e.opts.RPC.GetTokenSupply(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("supply: %w", err)
	}
	if supply.UIAmount <= 0 {
		return nil, fmt.Errorf("zero supply")
	}
	holders, err := e.opts.RPC.GetTokenLargestAccounts(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("largest accounts: %w", err)
	}

	var poolKey solana.PublicKey
	if pool != "" {
		poolKey, _ = solana.ParsePublicKey(pool)
	}
	for i, h := range holders {
		if i >= e.opts.HolderLookups {
			break
		}
		if h.UIAmount <= 0 {
			continue
		}
		owner, err := e.owner(ctx, h.Address)
		if err != nil {
			return nil, fmt.Errorf("holder %s: %w", h.Address, err)
		}
		if _, skip := e.excluded[owner]; skip || (!poolKey.IsZero() && owner == poolKey) {
			continue
		}
		return domain.Ptr(h.UIAmount / supply.UIAmount), nil
	}
	return domain.Ptr(0.0), nil
}

func (e *Enricher) owner(ctx context.Context, account string) (solana.PublicKey, error) {
	info, err := e.opts.RPC.GetAccountInfo(ctx, account)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if info == nil {
		return solana.PublicKey{}, fmt.Errorf("token account not found")
	}
	ta, err := solana.DecodeTokenAccount(info.Data)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return ta.Owner, nil
}

// metadata returns the token metadata, or nil when the token has none.
func (e *Enricher) metadata(ctx context.Context, token string) (*solana.Metadata, error) {
	mint, err := solana.ParsePublicKey(token)
	if err != nil {
		return nil, err
	}
	addr, err := solana.MetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	info, err := e.opts.RPC.GetAccountInfo(ctx, addr.String())
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	return solana.DecodeMetadata(info.Data)
}

// merge fills unknown fields of c from r.
func merge(c domain.Candidate, r result) domain.Candidate {
	sec := &c.Security
	if m := r.mint; m != nil {
		if sec.OwnershipRenounced == nil {
			sec.OwnershipRenounced = domain.Ptr(m.MintRevoked())
		}
		if sec.FreezeRevoked == nil {
			// A permanent delegate can seize balances just like a freeze authority.
			sec.FreezeRevoked = domain.Ptr(m.FreezeRevoked() && m.PermanentDelegate == nil)
		}
		if m.NonTransferable && sec.Sellable == nil {
			sec.Sellable = domain.Ptr(false)
		}
		if fee, ok := m.TransferFeePercent(); ok {
			if sec.BuyTax == nil {
				sec.BuyTax = domain.Ptr(fee)
			}
			if sec.SellTax == nil {
				sec.SellTax = domain.Ptr(fee)
			}
		}
	}
	if c.TopHolderPct == nil && r.topShare != nil {
		c.TopHolderPct = r.topShare
	}
	if r.metaSeen {
		if sec.Verified == nil {
			sec.Verified = domain.Ptr(r.meta != nil && !r.meta.Mutable)
		}
		if c.Symbol == "" && r.meta != nil {
			c.Symbol = r.meta.Symbol
		}
	}
	if q := r.quote; q != nil {
		if c.PairAddress == "" {
			c.PairAddress = q.Pair
		}
		if c.DEX == "" {
			c.DEX = q.DEX
		}
		if c.Symbol == "" {
			c.Symbol = q.Symbol
		}
		if c.LiquidityNative == nil && q.LiquidityNative > 0 {
			c.LiquidityNative = domain.Ptr(q.LiquidityNative)
		}
		if c.MarketCap == nil && q.MarketCap > 0 {
			c.MarketCap = domain.Ptr(q.MarketCap)
		}
		if c.PriceNative == nil && q.PriceNative > 0 {
			c.PriceNative = domain.Ptr(q.PriceNative)
		}
		if c.PairCreatedAt.IsZero() {
			c.PairCreatedAt = q.PairCreatedAt
		}
	}
	return c
}
