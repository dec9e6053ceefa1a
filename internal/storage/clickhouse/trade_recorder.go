package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/observability"
	"dex-pair-sentinel/internal/storage"
)

// TradeRecorder implements storage.TradeRecorder using ClickHouse.
type TradeRecorder struct {
	conn *Conn
}

// NewTradeRecorder creates a new TradeRecorder.
func NewTradeRecorder(conn *Conn) *TradeRecorder {
	return &TradeRecorder{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeRecorder = (*TradeRecorder)(nil)

// RecordClosed appends a closed position. Re-recording the same position
// collapses on merge.
func (r *TradeRecorder) RecordClosed(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.Status != domain.StatusClosed || p.ClosedAt == nil {
		return storage.ErrInvalidInput
	}
	defer observe("record_closed", time.Now(), &err)

	cost, _ := p.EntryCost.Float64()
	proceeds, _ := p.ExitProceeds.Float64()
	pnl, _ := p.RealizedPnL.Float64()
	ret := 0.0
	if cost > 0 {
		ret = pnl / cost * 100
	}

	err = r.conn.Exec(ctx, `
		INSERT INTO closed_trades (
			position_id, token_address, symbol, score,
			entry_price, exit_price, entry_cost, exit_proceeds, realized_pnl, return_pct,
			exit_reason, sell_attempts, opened_at, closed_at, hold_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.TokenAddress, p.Symbol, p.Score,
		p.EntryPrice, p.ExitPrice, cost, proceeds, pnl, ret,
		string(p.ExitReason), uint32(p.SellAttempts), p.OpenedAt, *p.ClosedAt, p.HoldDuration(*p.ClosedAt).Seconds(),
	)
	if err != nil {
		return fmt.Errorf("insert closed trade: %w", err)
	}
	return nil
}

// RecordScores appends a batch of score events in one insert.
func (r *TradeRecorder) RecordScores(ctx context.Context, events []*domain.ScoreEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	defer observe("record_scores", time.Now(), &err)

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO score_events (
			id, token_address, pair_address, total, rejected, reject_reason,
			action, components, scored_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare score batch: %w", err)
	}

	for _, e := range events {
		components, err := json.Marshal(e.Components)
		if err != nil {
			return fmt.Errorf("encode components of %s: %w", e.ID, err)
		}
		err = batch.Append(
			e.ID, e.TokenAddress, e.PairAddress, e.Total, e.Rejected, e.RejectReason,
			e.Action, string(components), e.ScoredAt,
		)
		if err != nil {
			return fmt.Errorf("append score event: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send score batch: %w", err)
	}
	return nil
}

// ExitSummary aggregates closed trades per exit reason.
type ExitSummary struct {
	ExitReason string
	Trades     uint64
	NetPnL     float64
	AvgReturn  float64 // percent
}

// SummarizeExits returns one row per exit reason, ordered by reason.
func (r *TradeRecorder) SummarizeExits(ctx context.Context) ([]ExitSummary, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT exit_reason, count() AS trades, sum(realized_pnl), avg(return_pct)
		FROM closed_trades FINAL
		GROUP BY exit_reason
		ORDER BY exit_reason
	`)
	if err != nil {
		return nil, fmt.Errorf("query exit summary: %w", err)
	}
	defer rows.Close()

	var out []ExitSummary
	for rows.Next() {
		var s ExitSummary
		if err := rows.Scan(&s.ExitReason, &s.Trades, &s.NetPnL, &s.AvgReturn); err != nil {
			return nil, fmt.Errorf("scan exit summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActionCounts returns the number of score events per action since t.
func (r *TradeRecorder) ActionCounts(ctx context.Context, since time.Time) (map[string]uint64, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT action, count()
		FROM score_events
		WHERE scored_at >= ?
		GROUP BY action
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query action counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var (
			action string
			n      uint64
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		out[action] = n
	}
	return out, rows.Err()
}

func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("clickhouse", op, time.Since(start).Seconds(), *err)
}
