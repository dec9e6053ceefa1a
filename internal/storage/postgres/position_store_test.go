package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func createTestPosition(id, token string, opened time.Time) *domain.Position {
	return &domain.Position{
		ID:            id,
		TokenAddress:  token,
		PairAddress:   "pair-" + token,
		Symbol:        "CAT",
		Score:         84.5,
		EntryPrice:    0.000012,
		EntryAmount:   decimal.RequireFromString("0.1"),
		EntryCost:     decimal.RequireFromString("0.1"),
		TokenQuantity: 8333.33,
		EntryTx:       "buy-" + id,
		OpenedAt:      opened,
		PeakPrice:     0.000012,
		TrailingStop:  0.0000096,
		LastPrice:     0.000012,
		Status:        domain.StatusMonitoring,
		UpdatedAt:     opened,
		Version:       2,
	}
}

func closePosition(p *domain.Position, at time.Time) {
	p.Status = domain.StatusClosed
	p.ClosedAt = &at
	p.ExitReason = domain.ExitTrailingStop
	p.ExitPrice = 0.000018
	p.ExitProceeds = decimal.RequireFromString("0.15")
	p.RealizedPnL = decimal.RequireFromString("0.05")
	p.ExitTx = "sell-" + p.ID
	p.UpdatedAt = at
	p.Version++
}

func TestPositionStore_SaveAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPositionStore(pool)

	p := createTestPosition("pos-1", "tok1", t0)
	require.NoError(t, store.Save(ctx, p))

	got, err := store.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, p.TokenAddress, got.TokenAddress)
	assert.Equal(t, domain.StatusMonitoring, got.Status)
	assert.True(t, p.EntryAmount.Equal(got.EntryAmount))
	assert.InDelta(t, p.EntryPrice, got.EntryPrice, 1e-12)
	assert.True(t, p.OpenedAt.Equal(got.OpenedAt))
	assert.Nil(t, got.ClosedAt)
	assert.Equal(t, int64(2), got.Version)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPositionStore_SaveVersioning(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPositionStore(pool)

	p := createTestPosition("pos-1", "tok1", t0)
	require.NoError(t, store.Save(ctx, p))

	// Same version again is an idempotent retry.
	require.NoError(t, store.Save(ctx, p))

	newer := p.Clone()
	newer.PeakPrice = 0.00002
	newer.Version = 3
	require.NoError(t, store.Save(ctx, newer))

	older := p.Clone()
	older.PeakPrice = 0.000001
	err := store.Save(ctx, older)
	assert.ErrorIs(t, err, storage.ErrStaleVersion)

	got, err := store.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.00002, got.PeakPrice, 1e-12)
	assert.Equal(t, int64(3), got.Version)
}

func TestPositionStore_OneLivePositionPerToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPositionStore(pool)

	first := createTestPosition("pos-1", "tok1", t0)
	require.NoError(t, store.Save(ctx, first))

	err := store.Save(ctx, createTestPosition("pos-2", "tok1", t0.Add(time.Minute)))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	closePosition(first, t0.Add(time.Hour))
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, createTestPosition("pos-2", "tok1", t0.Add(2*time.Hour))))
}

func TestPositionStore_LoadAndLoadClosed(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPositionStore(pool)

	for i, tok := range []string{"tok1", "tok2", "tok3", "tok4"} {
		p := createTestPosition("pos-"+tok, tok, t0.Add(time.Duration(i)*time.Minute))
		if i%2 == 1 {
			closePosition(p, t0.Add(time.Duration(i)*time.Hour))
		}
		require.NoError(t, store.Save(ctx, p))
	}

	live, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "pos-tok1", live[0].ID)
	assert.Equal(t, "pos-tok3", live[1].ID)

	closed, err := store.LoadClosed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "pos-tok4", closed[0].ID)
	assert.Equal(t, domain.ExitTrailingStop, closed[0].ExitReason)
	assert.True(t, decimal.RequireFromString("0.05").Equal(closed[0].RealizedPnL))
	require.NotNil(t, closed[0].ClosedAt)

	all, err := store.LoadClosed(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPositionStore_InvalidInput(t *testing.T) {
	store := NewPositionStore(nil)
	err := store.Save(context.Background(), &domain.Position{ID: "x", Status: "BOGUS"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
