package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dex-pair-sentinel/internal/solana"
)

func pair(token, pairAddr, quote, price string, liqUSD, liqQuote float64) map[string]any {
	return map[string]any{
		"chainId":       "solana",
		"dexId":         "raydium",
		"pairAddress":   pairAddr,
		"baseToken":     map[string]any{"address": token, "name": "Test", "symbol": "TST"},
		"quoteToken":    map[string]any{"address": quote, "symbol": "SOL"},
		"priceNative":   price,
		"priceUsd":      "0.0021",
		"liquidity":     map[string]any{"usd": liqUSD, "base": 1e9, "quote": liqQuote},
		"fdv":           91000.0,
		"marketCap":     87340.0,
		"pairCreatedAt": int64(1700000000000),
	}
}

func dexServer(t *testing.T, calls *atomic.Int32, pairs func(tokens []string) []map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		tokens := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), ",")
		json.NewEncoder(w).Encode(map[string]any{"pairs": pairs(tokens)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDexScreener_QuotePicksDeepestSOLPair(t *testing.T) {
	srv := dexServer(t, nil, func([]string) []map[string]any {
		return []map[string]any{
			pair("tok1", "shallow", solana.WrappedSOL, "0.00001", 1000, 5),
			pair("tok1", "usdc", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "0.5", 90000, 45000),
			pair("tok1", "deep", solana.WrappedSOL, "0.000012", 9000, 45),
		}
	})

	q, err := NewDexScreener(WithBaseURL(srv.URL)).Quote(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Pair != "deep" {
		t.Errorf("Pair = %s, want deep", q.Pair)
	}
	if q.PriceNative != 0.000012 || q.LiquidityNative != 45 {
		t.Errorf("unexpected quote %+v", q)
	}
	if q.MarketCap != 87340 || q.Symbol != "TST" || q.DEX != "raydium" {
		t.Errorf("unexpected market data %+v", q)
	}
	if want := time.UnixMilli(1700000000000).UTC(); !q.PairCreatedAt.Equal(want) {
		t.Errorf("PairCreatedAt = %v, want %v", q.PairCreatedAt, want)
	}
}

func TestDexScreener_MarketCapFallsBackToFDV(t *testing.T) {
	srv := dexServer(t, nil, func([]string) []map[string]any {
		p := pair("tok1", "p1", solana.WrappedSOL, "0.001", 100, 1)
		delete(p, "marketCap")
		return []map[string]any{p}
	})

	q, err := NewDexScreener(WithBaseURL(srv.URL)).Quote(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.MarketCap != 91000 {
		t.Errorf("MarketCap = %v, want fdv 91000", q.MarketCap)
	}
}

func TestDexScreener_NoPair(t *testing.T) {
	srv := dexServer(t, nil, func([]string) []map[string]any { return nil })

	_, err := NewDexScreener(WithBaseURL(srv.URL)).Price(context.Background(), "tok1")
	if !errors.Is(err, ErrNoPair) {
		t.Errorf("expected ErrNoPair, got %v", err)
	}
}

func TestDexScreener_PricesBatches(t *testing.T) {
	var calls atomic.Int32
	srv := dexServer(t, &calls, func(tokens []string) []map[string]any {
		if len(tokens) > maxBatch {
			t.Errorf("batch of %d tokens", len(tokens))
		}
		out := make([]map[string]any, 0, len(tokens))
		for _, tok := range tokens {
			out = append(out, pair(tok, "pair-"+tok, solana.WrappedSOL, "0.002", 100, 1))
		}
		return out
	})

	tokens := make([]string, 0, 45)
	for i := 0; i < 45; i++ {
		tokens = append(tokens, "tok"+strings.Repeat("x", i))
	}
	prices, err := NewDexScreener(WithBaseURL(srv.URL)).Prices(context.Background(), tokens)
	if err != nil {
		t.Fatalf("Prices: %v", err)
	}
	if len(prices) != 45 {
		t.Errorf("got %d prices, want 45", len(prices))
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 batched calls, got %d", calls.Load())
	}
}

func TestDexScreener_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	_, err := NewDexScreener(WithBaseURL(srv.URL)).Quotes(context.Background(), []string{"tok1"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status error, got %v", err)
	}
}
