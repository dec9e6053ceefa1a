package discovery

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSnapshotSource(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		c.WriteMessage(websocket.TextMessage, []byte(`{"token":"T1","pair":"P1","liquidity_native":45,"market_cap":87340,"top_holder_pct":0.28,
			"security":{"ownership_renounced":true,"freeze_revoked":true,"sellable":true},"observed_at":"2026-03-01T12:00:00Z"}`))
		c.WriteMessage(websocket.TextMessage, []byte(`not json`))
		c.WriteMessage(websocket.TextMessage, []byte(`{"token":"T2","pair":"P2"}`))
		c.ReadMessage()
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	src := &SnapshotSource{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Clock:  func() time.Time { return now },
		Logger: log.New(io.Discard, "", 0),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := src.Candidates(ctx)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}

	first := <-out
	if first.TokenAddress != "T1" || first.PairAddress != "P1" {
		t.Errorf("first = %+v", first)
	}
	if first.LiquidityNative == nil || *first.LiquidityNative != 45 {
		t.Errorf("liquidity = %v", first.LiquidityNative)
	}
	if first.Security.OwnershipRenounced == nil || !*first.Security.OwnershipRenounced {
		t.Error("ownership flag not decoded")
	}
	if first.Security.Verified != nil {
		t.Error("missing verified flag should stay unknown")
	}
	if first.ObservedAt.Hour() != 12 {
		t.Errorf("observed at = %v", first.ObservedAt)
	}

	second := <-out
	if second.TokenAddress != "T2" || !second.ObservedAt.Equal(now) {
		t.Errorf("second = %+v", second)
	}

	cancel()
	for range out {
	}
}

func TestSnapshotSource_EmptyURL(t *testing.T) {
	if _, err := (&SnapshotSource{}).Candidates(context.Background()); err == nil {
		t.Error("expected error")
	}
}
