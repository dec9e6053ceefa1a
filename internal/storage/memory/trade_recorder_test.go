package memory

import (
	"context"
	"errors"
	"testing"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/storage"
)

func TestTradeRecorder_RecordClosed(t *testing.T) {
	rec := NewTradeRecorder()
	ctx := context.Background()

	p := &domain.Position{ID: "p1", Status: domain.StatusClosed, ExitReason: domain.ExitStopLoss}
	if err := rec.RecordClosed(ctx, p); err != nil {
		t.Fatalf("RecordClosed failed: %v", err)
	}
	p.ExitReason = domain.ExitManual

	closed := rec.Closed()
	if len(closed) != 1 || closed[0].ExitReason != domain.ExitStopLoss {
		t.Errorf("expected stored copy with STOP_LOSS, got %v", closed)
	}

	open := &domain.Position{ID: "p2", Status: domain.StatusMonitoring}
	if err := rec.RecordClosed(ctx, open); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for open position, got %v", err)
	}
}

func TestTradeRecorder_RecordScores(t *testing.T) {
	rec := NewTradeRecorder()
	ctx := context.Background()

	events := []*domain.ScoreEvent{{ID: "e1"}, {ID: "e2"}}
	if err := rec.RecordScores(ctx, events); err != nil {
		t.Fatalf("RecordScores failed: %v", err)
	}
	if rec.Scores() != 2 {
		t.Errorf("expected 2 score events, got %d", rec.Scores())
	}
	if err := rec.RecordScores(ctx, []*domain.ScoreEvent{nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil event, got %v", err)
	}
}
