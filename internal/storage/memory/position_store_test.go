package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/storage"
)

func testPosition(id string, status domain.PositionStatus, opened time.Time) *domain.Position {
	return &domain.Position{
		ID:           id,
		TokenAddress: "tok-" + id,
		EntryPrice:   0.001,
		EntryAmount:  decimal.RequireFromString("0.1"),
		EntryCost:    decimal.RequireFromString("0.1"),
		PeakPrice:    0.001,
		OpenedAt:     opened,
		Status:       status,
		Version:      1,
	}
}

func TestPositionStore_SaveAndLoad(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	if err := store.Save(ctx, testPosition("b", domain.StatusMonitoring, base.Add(time.Minute))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, testPosition("a", domain.StatusClosing, base)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	closed := testPosition("c", domain.StatusClosed, base)
	closedAt := base.Add(time.Hour)
	closed.ClosedAt = &closedAt
	if err := store.Save(ctx, closed); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	open, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(open) != 2 || open[0].ID != "a" || open[1].ID != "b" {
		t.Fatalf("expected [a b], got %d positions", len(open))
	}

	history, err := store.LoadClosed(ctx, 10)
	if err != nil {
		t.Fatalf("LoadClosed failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != "c" {
		t.Errorf("expected closed [c], got %v", history)
	}
}

func TestPositionStore_VersionGuard(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	p := testPosition("a", domain.StatusMonitoring, time.Now())
	p.Version = 3
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, p); err != nil {
		t.Errorf("same version re-save should succeed, got %v", err)
	}

	old := p.Clone()
	old.Version = 2
	if err := store.Save(ctx, old); !errors.Is(err, storage.ErrStaleVersion) {
		t.Errorf("expected ErrStaleVersion, got %v", err)
	}
}

func TestPositionStore_ReturnsCopies(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	p := testPosition("a", domain.StatusMonitoring, time.Now())
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	p.PeakPrice = 99

	got, err := store.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.PeakPrice != 0.001 {
		t.Errorf("store aliased caller memory: peak %f", got.PeakPrice)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPositionStore_InvalidInput(t *testing.T) {
	store := NewPositionStore()
	if err := store.Save(context.Background(), &domain.Position{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
