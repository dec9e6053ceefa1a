package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/observability"
)

// Snapshot is the wire form of a candidate pushed by an external scanner.
type Snapshot struct {
	Token           string   `json:"token"`
	Pair            string   `json:"pair"`
	Symbol          string   `json:"symbol,omitempty"`
	DEX             string   `json:"dex,omitempty"`
	Factory         string   `json:"factory,omitempty"`
	LiquidityNative *float64 `json:"liquidity_native,omitempty"`
	MarketCap       *float64 `json:"market_cap,omitempty"`
	PriceNative     *float64 `json:"price_native,omitempty"`
	TopHolderPct    *float64 `json:"top_holder_pct,omitempty"`
	Security        struct {
		OwnershipRenounced *bool    `json:"ownership_renounced,omitempty"`
		FreezeRevoked      *bool    `json:"freeze_revoked,omitempty"`
		Verified           *bool    `json:"verified,omitempty"`
		Sellable           *bool    `json:"sellable,omitempty"`
		BuyTax             *float64 `json:"buy_tax,omitempty"`
		SellTax            *float64 `json:"sell_tax,omitempty"`
	} `json:"security"`
	PairCreatedAt time.Time `json:"pair_created_at"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Candidate converts the snapshot. A zero ObservedAt is stamped with now.
func (s Snapshot) Candidate(now time.Time) domain.Candidate {
	c := domain.Candidate{
		TokenAddress:    s.Token,
		PairAddress:     s.Pair,
		Symbol:          s.Symbol,
		DEX:             s.DEX,
		Factory:         s.Factory,
		LiquidityNative: s.LiquidityNative,
		MarketCap:       s.MarketCap,
		PriceNative:     s.PriceNative,
		TopHolderPct:    s.TopHolderPct,
		Security: domain.SecurityFlags{
			OwnershipRenounced: s.Security.OwnershipRenounced,
			FreezeRevoked:      s.Security.FreezeRevoked,
			Verified:           s.Security.Verified,
			Sellable:           s.Security.Sellable,
			BuyTax:             s.Security.BuyTax,
			SellTax:            s.Security.SellTax,
		},
		PairCreatedAt: s.PairCreatedAt,
		ObservedAt:    s.ObservedAt,
	}
	if c.ObservedAt.IsZero() {
		c.ObservedAt = now
	}
	return c
}

// SnapshotSource reads JSON snapshots from a websocket feed, one per text
// message, redialing until ctx is done.
type SnapshotSource struct {
	URL            string
	ReconnectDelay time.Duration // default 2s, doubled up to 1m
	Buffer         int           // default 256
	Clock          func() time.Time
	Logger         *log.Logger
}

// Candidates connects and streams snapshots.
func (s *SnapshotSource) Candidates(ctx context.Context) (<-chan domain.Candidate, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("snapshot feed url is empty")
	}
	if s.ReconnectDelay <= 0 {
		s.ReconnectDelay = 2 * time.Second
	}
	if s.Buffer <= 0 {
		s.Buffer = 256
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = log.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial snapshot feed: %w", err)
	}

	out := make(chan domain.Candidate, s.Buffer)
	go func() {
		defer close(out)
		delay := s.ReconnectDelay
		for {
			if err := s.read(ctx, conn, out); err != nil && ctx.Err() == nil {
				s.Logger.Printf("snapshot feed read: %v", err)
			}
			conn.Close()

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				conn, _, err = websocket.DefaultDialer.DialContext(ctx, s.URL, nil)
				if err == nil {
					delay = s.ReconnectDelay
					break
				}
				s.Logger.Printf("snapshot feed redial (next in %s): %v", delay, err)
				delay = min(delay*2, time.Minute)
			}
		}
	}()
	return out, nil
}

func (s *SnapshotSource) read(ctx context.Context, conn *websocket.Conn, out chan<- domain.Candidate) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var snap Snapshot
		if err := json.Unmarshal(msg, &snap); err != nil || snap.Token == "" {
			observability.RecordCandidateDropped("bad_snapshot")
			continue
		}
		select {
		case out <- snap.Candidate(s.Clock()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var _ CandidateSource = (*SnapshotSource)(nil)
