// Package main runs the sentinel: new-pair discovery and scoring, the
// position monitor and the HTTP API in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dex-pair-sentinel/internal/api"
	"dex-pair-sentinel/internal/config"
	"dex-pair-sentinel/internal/discovery"
	"dex-pair-sentinel/internal/engine"
	"dex-pair-sentinel/internal/enrich"
	"dex-pair-sentinel/internal/executor"
	"dex-pair-sentinel/internal/ledger"
	"dex-pair-sentinel/internal/market"
	"dex-pair-sentinel/internal/notify"
	"dex-pair-sentinel/internal/position"
	"dex-pair-sentinel/internal/solana"
	"dex-pair-sentinel/internal/storage"
	chstore "dex-pair-sentinel/internal/storage/clickhouse"
	"dex-pair-sentinel/internal/storage/memory"
	"dex-pair-sentinel/internal/storage/migrations"
	pgstore "dex-pair-sentinel/internal/storage/postgres"
)

// stores holds the storage implementations.
type stores struct {
	positions storage.PositionStore
	scores    storage.ScoreEventStore
	recorder  storage.TradeRecorder
	seen      storage.SeenPoolStore
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Flags override the environment.
	flag.StringVar(&cfg.RPCEndpoint, "rpc-endpoint", cfg.RPCEndpoint, "Solana RPC HTTP endpoint")
	flag.StringVar(&cfg.WSEndpoint, "ws-endpoint", cfg.WSEndpoint, "Solana WebSocket endpoint")
	flag.StringVar(&cfg.SnapshotFeed, "snapshot-feed", cfg.SnapshotFeed, "WebSocket URL of an external candidate feed")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	flag.StringVar(&cfg.ClickHouseDSN, "clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string (optional)")
	flag.BoolVar(&cfg.UseMemory, "use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL")
	flag.BoolVar(&cfg.AutoTrade, "auto-trade", cfg.AutoTrade, "Open positions for candidates above the threshold")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP address for API, health and metrics")
	apiKey := flag.String("api-key", os.Getenv("API_KEY"), "Key required for POST routes (empty disables)")
	flag.Parse()

	logger := log.New(os.Stdout, "[sentinel] ", log.LstdFlags|log.Lshortfile)

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.WSEndpoint == "" && cfg.SnapshotFeed == "" {
		logger.Fatal("--ws-endpoint or --snapshot-feed is required")
	}
	if cfg.WSEndpoint != "" && cfg.RPCEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required with --ws-endpoint")
	}
	if !cfg.UseMemory && cfg.PostgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, st, *apiKey, logger)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Sentinel error: %v", err)
	}
	logger.Println("Shutdown complete")
}

func createStores(ctx context.Context, cfg config.Config, logger *log.Logger) (*stores, func(), error) {
	if cfg.UseMemory {
		return &stores{
			positions: memory.NewPositionStore(),
			scores:    memory.NewScoreEventStore(),
			recorder:  memory.NewTradeRecorder(),
			seen:      memory.NewSeenPoolStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	st := &stores{
		positions: pgstore.NewPositionStore(pool),
		scores:    pgstore.NewScoreEventStore(pool),
		recorder:  memory.NewTradeRecorder(),
		seen:      pgstore.NewSeenPoolStore(pool),
	}
	cleanup := func() { pool.Close() }

	if cfg.ClickHouseDSN == "" {
		logger.Println("No ClickHouse DSN, trade analytics kept in memory")
		return st, cleanup, nil
	}
	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}
	st.recorder = chstore.NewTradeRecorder(chConn)
	cleanup = func() {
		chConn.Close()
		pool.Close()
	}
	return st, cleanup, nil
}

func run(ctx context.Context, cfg config.Config, st *stores, apiKey string, logger *log.Logger) error {
	component := func(name string) *log.Logger {
		return log.New(os.Stdout, "["+name+"] ", log.LstdFlags|log.Lshortfile)
	}

	dex := market.NewDexScreener(market.WithBaseURL(cfg.DexScreenerURL))

	notifier, err := buildNotifier(ctx, cfg, component("notify"))
	if err != nil {
		return err
	}

	l, err := ledger.New(cfg.TotalBalance, cfg.MinReserve)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	if !cfg.DryRun {
		return errors.New("live execution is not supported, set DRY_RUN=true")
	}
	exec := executor.NewPaperExecutor(executor.PaperOptions{
		Prices:      dex,
		FeeFraction: 0.0025,
		Logger:      component("paper"),
	})

	manager, err := position.New(position.Options{
		Ledger:       l,
		Executor:     exec,
		Store:        st.positions,
		Recorder:     st.recorder,
		Notifier:     notifier,
		Exit:         cfg.Exit,
		MaxPositions: cfg.MaxPositions,
		TradeAmount:  cfg.TradeAmount,
		SellTimeout:  cfg.SellTimeout,
		Retention:    cfg.Retention,
		Logger:       component("positions"),
	})
	if err != nil {
		return fmt.Errorf("create position manager: %w", err)
	}
	if err := manager.LoadAndRecover(ctx); err != nil {
		return fmt.Errorf("recover positions: %w", err)
	}
	logger.Printf("Recovered %d open positions, ledger %+v", manager.Count(), l.Snapshot())

	var (
		sources discovery.Merged
		rpc     solana.RPCClient
	)
	if cfg.WSEndpoint != "" {
		rpc = solana.NewHTTPClient(cfg.RPCEndpoint)
		wsOpts := solana.DefaultWSOptions()
		wsOpts.Logger = component("ws")
		ws, err := solana.DialWS(ctx, cfg.WSEndpoint, wsOpts)
		if err != nil {
			return fmt.Errorf("dial websocket: %w", err)
		}
		defer ws.Close()
		sources = append(sources, discovery.NewDetector(discovery.DetectorOptions{
			Logs:   ws,
			RPC:    rpc,
			Seen:   st.seen,
			Logger: component("detector"),
		}))
	}
	if cfg.SnapshotFeed != "" {
		sources = append(sources, &discovery.SnapshotSource{URL: cfg.SnapshotFeed, Logger: component("feed")})
	}

	pipeline, err := engine.NewPipeline(engine.PipelineOptions{
		Source:         sources,
		Scoring:        &cfg.Scoring,
		Weights:        cfg.Weights,
		Enricher:       enrich.New(enrich.Options{RPC: rpc, Quotes: dex, Logger: component("enrich")}),
		Positions:      manager,
		Scores:         st.scores,
		Recorder:       st.recorder,
		Notifier:       notifier,
		AutoTrade:      cfg.AutoTrade,
		AlertThreshold: cfg.AlertThreshold,
		Logger:         component("pipeline"),
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	monitor, err := engine.NewMonitor(engine.MonitorOptions{
		Positions: manager,
		Prices:    dex,
		Interval:  cfg.CheckInterval,
		Logger:    component("monitor"),
	})
	if err != nil {
		return fmt.Errorf("create monitor: %w", err)
	}

	srv, err := api.New(api.Options{
		Positions: manager,
		Scorer:    pipeline,
		Scores:    st.scores,
		APIKey:    apiKey,
		AccessLog: os.Stdout,
		Logger:    component("api"),
	})
	if err != nil {
		return fmt.Errorf("create api: %w", err)
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	mode := "signal-only"
	if cfg.AutoTrade {
		mode = "auto-trade (paper)"
	}
	logger.Printf("Starting sentinel: profile %s, %s, threshold %.0f, max %d positions of %s SOL",
		cfg.Profile, mode, cfg.AlertThreshold, cfg.MaxPositions, cfg.TradeAmount)

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	start("pipeline", pipeline.Run)
	start("monitor", monitor.Run)
	start("http", func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
		logger.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	logger.Println("Waiting for components to stop...")
	wg.Wait()
	logger.Println("Waiting for pending sells...")
	manager.Wait()

	s := manager.Stats()
	logger.Printf("Session: %d opened, %d closed (%.0f%% wins), net %s SOL, %d still open",
		s.Total, s.Closed, s.WinRate, s.NetPnL.StringFixed(4), s.Open)
	return runErr
}

// buildNotifier logs every event and pushes the enabled alert types.
func buildNotifier(ctx context.Context, cfg config.Config, logger *log.Logger) (notify.Notifier, error) {
	multi := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.FCMCredentials == "" || len(cfg.FCMTokens) == 0 {
		return multi, nil
	}
	fcm, err := notify.NewFCMNotifier(ctx, notify.FCMOptions{
		CredentialsFile: cfg.FCMCredentials,
		DeviceTokens:    cfg.FCMTokens,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create fcm notifier: %w", err)
	}
	if fcm.Enabled() {
		multi = append(multi, notify.NewFilter(fcm, cfg.Alerts.Types()...))
	}
	return multi, nil
}
