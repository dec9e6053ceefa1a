// Package market fetches pair quotes from the DexScreener API.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dex-pair-sentinel/internal/executor"
	"dex-pair-sentinel/internal/observability"
	"dex-pair-sentinel/internal/solana"
)

const (
	defaultBaseURL = "https://api.dexscreener.com/latest/dex/tokens"

	// maxBatch is the number of token addresses the tokens endpoint accepts per call.
	maxBatch = 30
)

// ErrNoPair is returned when no SOL-quoted pair is listed for a token.
var ErrNoPair = errors.New("no SOL pair listed")

// Pair is one entry of the tokens endpoint response.
type Pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"quoteToken"`
	PriceNative string `json:"priceNative"`
	PriceUSD    string `json:"priceUsd"`
	Liquidity   *struct {
		USD   float64 `json:"usd"`
		Base  float64 `json:"base"`
		Quote float64 `json:"quote"`
	} `json:"liquidity"`
	FDV           float64 `json:"fdv"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"` // unix ms
}

type tokensResponse struct {
	Pairs []Pair `json:"pairs"`
}

// Quote is the market view of one token, taken from its deepest SOL pair.
type Quote struct {
	Token           string
	Pair            string
	DEX             string
	Symbol          string
	PriceNative     float64
	PriceUSD        float64
	LiquidityNative float64 // SOL side of the pool
	LiquidityUSD    float64
	MarketCap       float64 // market cap, or FDV when market cap is not reported
	PairCreatedAt   time.Time
}

// Option configures a DexScreener client.
type Option func(*DexScreener)

// WithBaseURL overrides the tokens endpoint.
func WithBaseURL(url string) Option {
	return func(d *DexScreener) { d.baseURL = strings.TrimRight(url, "/") }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *DexScreener) { d.httpClient.Timeout = timeout }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *DexScreener) { d.httpClient = c }
}

// DexScreener is a read-only client for the public tokens endpoint.
type DexScreener struct {
	baseURL    string
	httpClient *http.Client
}

// NewDexScreener creates a client.
func NewDexScreener(opts ...Option) *DexScreener {
	d := &DexScreener{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Quote returns the deepest SOL pair for token.
func (d *DexScreener) Quote(ctx context.Context, token string) (*Quote, error) {
	quotes, err := d.Quotes(ctx, []string{token})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPair, token)
	}
	return &q, nil
}

// Quotes fetches tokens in batches. Tokens without a SOL pair are absent
// from the result. A failed batch aborts the call.
func (d *DexScreener) Quotes(ctx context.Context, tokens []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(tokens))
	for start := 0; start < len(tokens); start += maxBatch {
		end := min(start+maxBatch, len(tokens))
		pairs, err := d.fetch(ctx, tokens[start:end])
		if err != nil {
			observability.RecordPriceFetchError("dexscreener")
			return nil, err
		}
		for _, p := range pairs {
			q, ok := p.quote()
			if !ok {
				continue
			}
			if cur, seen := out[q.Token]; seen && cur.LiquidityUSD >= q.LiquidityUSD {
				continue
			}
			out[q.Token] = q
		}
	}
	return out, nil
}

// Price returns the native price of token.
func (d *DexScreener) Price(ctx context.Context, token string) (float64, error) {
	q, err := d.Quote(ctx, token)
	if err != nil {
		return 0, err
	}
	return q.PriceNative, nil
}

// Prices returns native prices for every token that has a SOL pair.
func (d *DexScreener) Prices(ctx context.Context, tokens []string) (map[string]float64, error) {
	quotes, err := d.Quotes(ctx, tokens)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(quotes))
	for token, q := range quotes {
		out[token] = q.PriceNative
	}
	return out, nil
}

func (d *DexScreener) fetch(ctx context.Context, tokens []string) ([]Pair, error) {
	url := d.baseURL + "/" + strings.Join(tokens, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	observability.RecordRPCLatency("dexscreener_tokens", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("dexscreener request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var result tokensResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Pairs, nil
}

// quote converts a Solana pair quoted in wrapped SOL. Other pairs are skipped.
func (p Pair) quote() (Quote, bool) {
	if p.ChainID != "solana" || p.QuoteToken.Address != solana.WrappedSOL {
		return Quote{}, false
	}
	price, err := strconv.ParseFloat(p.PriceNative, 64)
	if err != nil || price <= 0 {
		return Quote{}, false
	}
	q := Quote{
		Token:       p.BaseToken.Address,
		Pair:        p.PairAddress,
		DEX:         p.DexID,
		Symbol:      p.BaseToken.Symbol,
		PriceNative: price,
		MarketCap:   p.MarketCap,
	}
	if usd, err := strconv.ParseFloat(p.PriceUSD, 64); err == nil {
		q.PriceUSD = usd
	}
	if q.MarketCap <= 0 {
		q.MarketCap = p.FDV
	}
	if p.Liquidity != nil {
		q.LiquidityNative = p.Liquidity.Quote
		q.LiquidityUSD = p.Liquidity.USD
	}
	if p.PairCreatedAt > 0 {
		q.PairCreatedAt = time.UnixMilli(p.PairCreatedAt).UTC()
	}
	return q, true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ executor.PriceSource = (*DexScreener)(nil)
