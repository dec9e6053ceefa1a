package discovery

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"dex-pair-sentinel/internal/solana"
	"dex-pair-sentinel/internal/solana/stub"
	"dex-pair-sentinel/internal/storage"
	"dex-pair-sentinel/internal/storage/memory"
)

type fakeLogs struct {
	ch chan solana.LogNotification
}

func (f *fakeLogs) SubscribeLogs(context.Context, solana.LogsFilter) (<-chan solana.LogNotification, error) {
	return f.ch, nil
}

func (f *fakeLogs) Close() error { return nil }

var detectorNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDetector(rpc *stub.RPCClient, logs solana.LogSubscriber) *Detector {
	return NewDetector(DetectorOptions{
		Logs:         logs,
		RPC:          rpc,
		TxAttempts:   2,
		TxRetryDelay: time.Millisecond,
		Clock:        func() time.Time { return detectorNow },
		Logger:       log.New(io.Discard, "", 0),
	})
}

var initLogs = []string{"Program log: initialize2: InitializeInstruction2 { nonce: 254 }"}

func TestDetector_Process(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(initTx("sig1", testToken, solana.WrappedSOL, append(initLogs, initLogLine(6, 9, 1_000_000_000_000, 45_000_000_000))...))
	d := newTestDetector(rpc, nil)

	c, err := d.Process(context.Background(), solana.LogNotification{Signature: "sig1", Logs: initLogs})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if c.TokenAddress != testToken || c.PairAddress != testPool {
		t.Errorf("token/pair = %s/%s", c.TokenAddress, c.PairAddress)
	}
	if c.DEX != "raydium" || c.Factory != solana.RaydiumAMMV4 {
		t.Errorf("dex/factory = %s/%s", c.DEX, c.Factory)
	}
	if c.LiquidityNative == nil || *c.LiquidityNative != 45 {
		t.Errorf("liquidity = %v", c.LiquidityNative)
	}
	if c.PriceNative == nil {
		t.Error("expected price")
	}
	if !c.ObservedAt.Equal(detectorNow) {
		t.Errorf("observed at = %v", c.ObservedAt)
	}

	// Same pool again is a duplicate.
	_, err = d.Process(context.Background(), solana.LogNotification{Signature: "sig1", Logs: initLogs})
	if !errors.Is(err, ErrDuplicatePool) {
		t.Errorf("expected ErrDuplicatePool, got %v", err)
	}
}

func TestDetector_ProcessReadsMintDecimals(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(initTx("sig1", testToken, solana.WrappedSOL))
	mint := make([]byte, solana.MintSize)
	mint[44] = 6
	mint[45] = 1
	rpc.SetAccount(testToken, &solana.AccountInfo{Owner: solana.TokenProgram, Data: base64.StdEncoding.EncodeToString(mint)})
	d := newTestDetector(rpc, nil)

	c, err := d.Process(context.Background(), solana.LogNotification{Signature: "sig1", Logs: initLogs})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if c.PriceNative == nil || *c.PriceNative <= 0 {
		t.Errorf("expected price from mint decimals, got %v", c.PriceNative)
	}
}

func TestDetector_ProcessRejects(t *testing.T) {
	usdc := "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(initTx("usdc", testToken, usdc))
	failed := initTx("failed", testToken, solana.WrappedSOL)
	failed.Failed = true
	rpc.AddTransaction(failed)
	d := newTestDetector(rpc, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		note solana.LogNotification
		want error
	}{
		{"swap logs", solana.LogNotification{Signature: "x", Logs: []string{"Program log: ray_log: AAAA"}}, ErrNotPoolInit},
		{"failed notification", solana.LogNotification{Signature: "x", Logs: initLogs, Failed: true}, ErrNotPoolInit},
		{"failed transaction", solana.LogNotification{Signature: "failed", Logs: initLogs}, ErrNotPoolInit},
		{"non SOL quote", solana.LogNotification{Signature: "usdc", Logs: initLogs}, ErrNonSOLQuote},
		{"unknown transaction", solana.LogNotification{Signature: "missing", Logs: initLogs}, ErrTxUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Process(ctx, tt.note); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if got := rpc.Calls("getTransaction"); got < 2 {
		t.Errorf("expected retried getTransaction, got %d calls", got)
	}
}

func TestDetector_Candidates(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(initTx("sig1", testToken, solana.WrappedSOL, append(initLogs, initLogLine(6, 9, 1_000_000_000_000, 45_000_000_000))...))
	logs := &fakeLogs{ch: make(chan solana.LogNotification, 4)}
	d := newTestDetector(rpc, logs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := d.Candidates(ctx)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}

	logs.ch <- solana.LogNotification{Signature: "noise", Logs: []string{"Program log: swap"}}
	logs.ch <- solana.LogNotification{Signature: "sig1", Logs: initLogs}
	close(logs.ch)

	var got []string
	for c := range out {
		got = append(got, c.TokenAddress)
	}
	if len(got) != 1 || got[0] != testToken {
		t.Errorf("candidates = %v", got)
	}
}

func TestDetector_SeenPoolsSurviveRestart(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(initTx("sig1", testToken, solana.WrappedSOL, append(initLogs, initLogLine(6, 9, 1_000_000_000_000, 45_000_000_000))...))
	seen := memory.NewSeenPoolStore()
	ctx := context.Background()

	first := newTestDetector(rpc, nil)
	first.opts.Seen = seen
	if _, err := first.Process(ctx, solana.LogNotification{Signature: "sig1", Logs: initLogs}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if isNew, _ := seen.MarkSeen(ctx, storage.SeenPool{PoolAddress: testPool}); isNew {
		t.Fatal("expected pool to be persisted")
	}

	logs := &fakeLogs{ch: make(chan solana.LogNotification, 1)}
	second := newTestDetector(rpc, logs)
	second.opts.Seen = seen
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	out, err := second.Candidates(cctx)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	logs.ch <- solana.LogNotification{Signature: "sig1", Logs: initLogs}
	close(logs.ch)

	for c := range out {
		t.Errorf("unexpected candidate %s after restart", c.PairAddress)
	}
}
