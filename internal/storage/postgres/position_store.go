package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/observability"
	"dex-pair-sentinel/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	id, token_address, pair_address, symbol, score,
	entry_price, entry_amount::text, entry_cost::text, token_quantity, entry_tx, opened_at,
	peak_price, trailing_stop, last_price,
	status, pending_exit, sell_attempts,
	closed_at, exit_reason, exit_price, exit_proceeds::text, realized_pnl::text, exit_tx,
	updated_at, version
`

// Save upserts p. The row is only replaced when the stored version is not
// newer, so a retried write of the same version succeeds.
func (s *PositionStore) Save(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.ID == "" || !p.Status.Valid() {
		return storage.ErrInvalidInput
	}
	defer observe("position_save", time.Now(), &err)

	query := `
		INSERT INTO positions (
			id, token_address, pair_address, symbol, score,
			entry_price, entry_amount, entry_cost, token_quantity, entry_tx, opened_at,
			peak_price, trailing_stop, last_price,
			status, pending_exit, sell_attempts,
			closed_at, exit_reason, exit_price, exit_proceeds, realized_pnl, exit_tx,
			updated_at, version
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7::numeric, $8::numeric, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17,
			$18, $19, $20, $21::numeric, $22::numeric, $23,
			$24, $25
		)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			entry_cost = EXCLUDED.entry_cost,
			peak_price = EXCLUDED.peak_price,
			trailing_stop = EXCLUDED.trailing_stop,
			last_price = EXCLUDED.last_price,
			status = EXCLUDED.status,
			pending_exit = EXCLUDED.pending_exit,
			sell_attempts = EXCLUDED.sell_attempts,
			closed_at = EXCLUDED.closed_at,
			exit_reason = EXCLUDED.exit_reason,
			exit_price = EXCLUDED.exit_price,
			exit_proceeds = EXCLUDED.exit_proceeds,
			realized_pnl = EXCLUDED.realized_pnl,
			exit_tx = EXCLUDED.exit_tx,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version
		WHERE positions.version <= EXCLUDED.version
	`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.TokenAddress, p.PairAddress, p.Symbol, p.Score,
		p.EntryPrice, p.EntryAmount.String(), p.EntryCost.String(), p.TokenQuantity, p.EntryTx, p.OpenedAt,
		p.PeakPrice, p.TrailingStop, p.LastPrice,
		string(p.Status), string(p.PendingExit), p.SellAttempts,
		p.ClosedAt, string(p.ExitReason), p.ExitPrice, p.ExitProceeds.String(), p.RealizedPnL.String(), p.ExitTx,
		p.UpdatedAt, p.Version,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			// Another live position already holds this token.
			return fmt.Errorf("%w: live position exists for %s", storage.ErrDuplicateKey, p.TokenAddress)
		}
		return fmt.Errorf("save position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s v%d", storage.ErrStaleVersion, p.ID, p.Version)
	}
	return nil
}

// Load returns all non-CLOSED positions ordered by opened_at ASC.
func (s *PositionStore) Load(ctx context.Context) (_ []*domain.Position, err error) {
	defer observe("position_load", time.Now(), &err)

	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE status <> 'CLOSED'
		ORDER BY opened_at ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// LoadClosed returns up to limit most recently closed positions, newest first.
func (s *PositionStore) LoadClosed(ctx context.Context, limit int) (_ []*domain.Position, err error) {
	defer observe("position_load_closed", time.Now(), &err)

	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE status = 'CLOSED'
		ORDER BY closed_at DESC, id ASC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load closed positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetByID retrieves a position by id. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p                           domain.Position
		status, pending, reason     string
		amount, cost, proceeds, pnl string
	)
	err := row.Scan(
		&p.ID, &p.TokenAddress, &p.PairAddress, &p.Symbol, &p.Score,
		&p.EntryPrice, &amount, &cost, &p.TokenQuantity, &p.EntryTx, &p.OpenedAt,
		&p.PeakPrice, &p.TrailingStop, &p.LastPrice,
		&status, &pending, &p.SellAttempts,
		&p.ClosedAt, &reason, &p.ExitPrice, &proceeds, &pnl, &p.ExitTx,
		&p.UpdatedAt, &p.Version,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.PositionStatus(status)
	if !p.Status.Valid() {
		return nil, fmt.Errorf("position %s: unknown status %q", p.ID, status)
	}
	if p.PendingExit, err = domain.ParseExitReason(pending); err != nil {
		return nil, fmt.Errorf("position %s: %w", p.ID, err)
	}
	if p.ExitReason, err = domain.ParseExitReason(reason); err != nil {
		return nil, fmt.Errorf("position %s: %w", p.ID, err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.EntryAmount, amount},
		{&p.EntryCost, cost},
		{&p.ExitProceeds, proceeds},
		{&p.RealizedPnL, pnl},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("position %s: parse numeric %q: %w", p.ID, f.src, err)
		}
	}
	p.OpenedAt = p.OpenedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if p.ClosedAt != nil {
		t := p.ClosedAt.UTC()
		p.ClosedAt = &t
	}
	return &p, nil
}

func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}

// observe records query latency and outcome.
func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), *err)
}
