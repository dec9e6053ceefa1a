package solana

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func quietWS() WSOptions {
	return WSOptions{
		ReconnectDelay:   10 * time.Millisecond,
		SubscribeTimeout: time.Second,
		Logger:           log.New(io.Discard, "", 0),
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// logsServer confirms every logsSubscribe with subID and then sends one
// notification per entry in sigs.
func logsServer(t *testing.T, subID int64, sigs []string, conns *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()
		if conns != nil {
			conns.Add(1)
		}

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req rpcRequest
			if err := json.Unmarshal(msg, &req); err != nil || req.Method != "logsSubscribe" {
				t.Errorf("unexpected request %s", msg)
				return
			}
			c.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": subID})
			for i, sig := range sigs {
				c.WriteJSON(map[string]any{
					"jsonrpc": "2.0",
					"method":  "logsNotification",
					"params": map[string]any{
						"subscription": subID,
						"result": map[string]any{
							"context": map[string]any{"slot": 100 + i},
							"value":   map[string]any{"signature": sig, "logs": []string{"Program log: initialize2"}, "err": nil},
						},
					},
				})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	srv := logsServer(t, 42, []string{"sig1", "sig2"}, nil)

	client, err := DialWS(context.Background(), wsURL(srv), quietWS())
	if err != nil {
		t.Fatalf("DialWS: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(context.Background(), LogsFilter{Mentions: []string{RaydiumAMMV4}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	for i, want := range []string{"sig1", "sig2"} {
		select {
		case n := <-ch:
			if n.Signature != want {
				t.Errorf("notification %d signature = %s, want %s", i, n.Signature, want)
			}
			if n.Slot != int64(100+i) {
				t.Errorf("notification %d slot = %d", i, n.Slot)
			}
			if n.Failed || len(n.Logs) != 1 {
				t.Errorf("unexpected notification %+v", n)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestWSClient_SubscribeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		var req rpcRequest
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		c.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32602, "message": "Invalid params"}})
		c.ReadMessage()
	}))
	defer srv.Close()

	client, err := DialWS(context.Background(), wsURL(srv), quietWS())
	if err != nil {
		t.Fatalf("DialWS: %v", err)
	}
	defer client.Close()

	if _, err := client.SubscribeLogs(context.Background(), LogsFilter{}); err == nil || !strings.Contains(err.Error(), "-32602") {
		t.Errorf("expected rpc error, got %v", err)
	}
}

func TestWSClient_Reconnects(t *testing.T) {
	var conns atomic.Int32
	srv := logsServer(t, 7, nil, &conns)

	client, err := DialWS(context.Background(), wsURL(srv), quietWS())
	if err != nil {
		t.Fatalf("DialWS: %v", err)
	}
	defer client.Close()

	if _, err := client.SubscribeLogs(context.Background(), LogsFilter{Mentions: []string{RaydiumAMMV4}}); err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	// Drop the connection from the client side; the read loop must redial.
	client.connMu.Lock()
	client.conn.Close()
	client.connMu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for conns.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if conns.Load() < 2 {
		t.Fatalf("expected a second connection, got %d", conns.Load())
	}
}

func TestWSClient_Close(t *testing.T) {
	srv := logsServer(t, 1, nil, nil)

	client, err := DialWS(context.Background(), wsURL(srv), quietWS())
	if err != nil {
		t.Fatalf("DialWS: %v", err)
	}
	ch, err := client.SubscribeLogs(context.Background(), LogsFilter{})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed")
	}

	if _, err := client.SubscribeLogs(context.Background(), LogsFilter{}); err != ErrClientClosed {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}
