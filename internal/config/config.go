// Package config assembles runtime settings from defaults, a trading
// profile and environment variables (optionally loaded from .env).
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/lifecycle"
	"dex-pair-sentinel/internal/scoring"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Profile names a preset risk tolerance.
type Profile string

const (
	ProfileConservative Profile = "CONSERVATIVE"
	ProfileBalanced     Profile = "BALANCED"
	ProfileAggressive   Profile = "AGGRESSIVE"
)

// Alerts selects which events reach the push notifier.
type Alerts struct {
	Detection bool // candidate_scored
	Trades    bool // position_opened
	Exits     bool // position_closed
	Errors    bool // sell_failed
}

// Types returns the event types enabled for push delivery.
func (a Alerts) Types() []domain.EventType {
	var out []domain.EventType
	if a.Detection {
		out = append(out, domain.EventCandidateScored)
	}
	if a.Trades {
		out = append(out, domain.EventPositionOpened)
	}
	if a.Exits {
		out = append(out, domain.EventPositionClosed)
	}
	if a.Errors {
		out = append(out, domain.EventSellFailed)
	}
	return out
}

// Config is the full process configuration.
type Config struct {
	Profile Profile

	Scoring        scoring.Config
	Weights        scoring.Weights
	AlertThreshold float64 // minimum quality score, 0..100

	Exit          lifecycle.ExitConfig
	AutoTrade     bool
	DryRun        bool
	TradeAmount   decimal.Decimal // SOL per position
	TotalBalance  decimal.Decimal // SOL under management
	MinReserve    decimal.Decimal // SOL never committed
	MaxPositions  int
	CheckInterval time.Duration // monitor tick
	SellTimeout   time.Duration
	Retention     int // closed positions kept in memory

	RPCEndpoint    string
	WSEndpoint     string
	SnapshotFeed   string // optional external candidate feed
	DexScreenerURL string

	PostgresDSN   string
	ClickHouseDSN string
	UseMemory     bool

	HTTPAddr string

	FCMCredentials string
	FCMTokens      []string
	Alerts         Alerts
}

// Default returns the BALANCED configuration.
func Default() Config {
	return Config{
		Profile:        ProfileBalanced,
		Scoring:        scoring.DefaultConfig(),
		Weights:        scoring.DefaultWeights(),
		AlertThreshold: 70,
		Exit:           lifecycle.DefaultExitConfig(),
		DryRun:         true,
		TradeAmount:    decimal.RequireFromString("0.1"),
		TotalBalance:   decimal.RequireFromString("1"),
		MinReserve:     decimal.RequireFromString("0.05"),
		MaxPositions:   3,
		CheckInterval:  30 * time.Second,
		SellTimeout:    30 * time.Second,
		Retention:      100,
		DexScreenerURL: "https://api.dexscreener.com/latest/dex/tokens",
		HTTPAddr:       ":8080",
		Alerts:         Alerts{Detection: true, Trades: true, Exits: true, Errors: true},
	}
}

// ApplyProfile overlays the preset thresholds of p.
func (c *Config) ApplyProfile(p Profile) error {
	switch p {
	case ProfileConservative:
		c.AlertThreshold = 80
		c.Scoring.MinLiquidity = 20
		c.Exit.StopLossFraction = 0.20
		c.Exit.TakeProfitFraction = 0.50
		c.Scoring.MaxBuyTax = 5
		c.Scoring.MaxSellTax = 10
		c.Scoring.RequireRenounced = true
	case ProfileBalanced:
		c.AlertThreshold = 70
		c.Scoring.MinLiquidity = 10
		c.Exit.StopLossFraction = 0.30
		c.Exit.TakeProfitFraction = 1.00
		c.Scoring.MaxBuyTax = 10
		c.Scoring.MaxSellTax = 15
	case ProfileAggressive:
		c.AlertThreshold = 60
		c.Scoring.MinLiquidity = 5
		c.Exit.StopLossFraction = 0.40
		c.Exit.TakeProfitFraction = 2.00
		c.Scoring.MaxBuyTax = 15
		c.Scoring.MaxSellTax = 20
	default:
		return fmt.Errorf("%w: unknown profile %q", ErrInvalid, p)
	}
	// Keep the optimal band reachable when the profile raises the floor.
	if c.Scoring.OptimalLiquidityMin < c.Scoring.MinLiquidity {
		c.Scoring.OptimalLiquidityMin = c.Scoring.MinLiquidity
	}
	c.Profile = p
	return nil
}

// FromEnv loads .env if present, then builds a Config from defaults, the
// TRADING_PROFILE preset and individual variables, in that order.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	c := Default()
	if p := strings.ToUpper(os.Getenv("TRADING_PROFILE")); p != "" {
		if err := c.ApplyProfile(Profile(p)); err != nil {
			return c, err
		}
	}

	e := &envReader{}
	c.AlertThreshold = e.float("MINIMUM_QUALITY_SCORE", c.AlertThreshold)
	c.AutoTrade = e.bool("AUTO_TRADE", c.AutoTrade)
	c.DryRun = e.bool("DRY_RUN", c.DryRun)
	c.TradeAmount = e.decimal("TRADE_AMOUNT_SOL", c.TradeAmount)
	c.TotalBalance = e.decimal("TOTAL_BALANCE_SOL", c.TotalBalance)
	c.MinReserve = e.decimal("MIN_SOL_BALANCE", c.MinReserve)
	c.MaxPositions = e.int("MAX_CONCURRENT_POSITIONS", c.MaxPositions)
	c.CheckInterval = e.duration("POSITION_CHECK_INTERVAL", c.CheckInterval)
	c.SellTimeout = e.duration("SELL_TIMEOUT", c.SellTimeout)
	c.Retention = e.int("CLOSED_POSITION_RETENTION", c.Retention)

	c.Exit.StopLossFraction = e.percent("STOP_LOSS_PERCENT", c.Exit.StopLossFraction)
	c.Exit.TakeProfitFraction = e.percent("TAKE_PROFIT_PERCENT", c.Exit.TakeProfitFraction)
	c.Exit.TakeProfitExit = e.bool("TAKE_PROFIT_EXIT", c.Exit.TakeProfitExit)
	c.Exit.TrailingStopFraction = e.percent("TRAILING_STOP_PERCENT", c.Exit.TrailingStopFraction)
	c.Exit.MinProfitFraction = e.percent("MIN_PROFIT_PERCENT", c.Exit.MinProfitFraction)
	c.Exit.MaxHold = e.duration("MAX_HOLD_TIME", c.Exit.MaxHold)

	s := &c.Scoring
	s.MinLiquidity = e.float("MIN_LIQUIDITY_SOL", s.MinLiquidity)
	s.MaxLiquidity = e.float("MAX_LIQUIDITY_SOL", s.MaxLiquidity)
	s.OptimalLiquidityMin = e.float("OPTIMAL_LIQUIDITY_MIN_SOL", s.OptimalLiquidityMin)
	s.OptimalLiquidityMax = e.float("OPTIMAL_LIQUIDITY_MAX_SOL", s.OptimalLiquidityMax)
	s.MarketCapMin = e.float("MARKET_CAP_MIN_USD", s.MarketCapMin)
	s.MarketCapMax = e.float("MARKET_CAP_MAX_USD", s.MarketCapMax)
	s.MarketCapUpperLimit = e.float("MARKET_CAP_UPPER_LIMIT_USD", s.MarketCapUpperLimit)
	s.MaxTopHolder = e.percent("MAX_TOP_HOLDER_PERCENT", s.MaxTopHolder)
	s.MaxBuyTax = e.float("MAX_BUY_TAX_PERCENT", s.MaxBuyTax)
	s.MaxSellTax = e.float("MAX_SELL_TAX_PERCENT", s.MaxSellTax)
	s.RequireRenounced = e.bool("REQUIRE_OWNERSHIP_RENOUNCED", s.RequireRenounced)
	s.FilterScamFactories = e.bool("FILTER_SCAM_FACTORIES", s.FilterScamFactories)

	w := &c.Weights
	w.Liquidity = e.float("SCORE_WEIGHT_LIQUIDITY", w.Liquidity)
	w.MarketCap = e.float("SCORE_WEIGHT_MARKET_CAP", w.MarketCap)
	w.Security = e.float("SCORE_WEIGHT_SECURITY", w.Security)
	w.Holders = e.float("SCORE_WEIGHT_HOLDERS", w.Holders)
	w.Contract = e.float("SCORE_WEIGHT_CONTRACT", w.Contract)

	c.RPCEndpoint = e.string("SOLANA_RPC_ENDPOINT", c.RPCEndpoint)
	c.WSEndpoint = e.string("SOLANA_WS_ENDPOINT", c.WSEndpoint)
	c.SnapshotFeed = e.string("SNAPSHOT_FEED_URL", c.SnapshotFeed)
	c.DexScreenerURL = e.string("DEXSCREENER_URL", c.DexScreenerURL)
	c.PostgresDSN = e.string("POSTGRES_DSN", c.PostgresDSN)
	c.ClickHouseDSN = e.string("CLICKHOUSE_DSN", c.ClickHouseDSN)
	c.UseMemory = e.bool("USE_MEMORY", c.UseMemory)
	c.HTTPAddr = e.string("HTTP_ADDR", c.HTTPAddr)

	c.FCMCredentials = e.string("FCM_CREDENTIALS_FILE", c.FCMCredentials)
	if tokens := os.Getenv("FCM_DEVICE_TOKENS"); tokens != "" {
		c.FCMTokens = splitList(tokens)
	}
	c.Alerts.Detection = e.bool("SEND_DETECTION_ALERTS", c.Alerts.Detection)
	c.Alerts.Trades = e.bool("SEND_TRADE_ALERTS", c.Alerts.Trades)
	c.Alerts.Exits = e.bool("SEND_EXIT_ALERTS", c.Alerts.Exits)
	c.Alerts.Errors = e.bool("SEND_ERROR_ALERTS", c.Alerts.Errors)

	if err := e.err(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks ranges across all sections.
func (c Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if err := c.Exit.Validate(); err != nil {
		return err
	}
	var errs []error
	if sum := c.Weights.Sum(); math.Abs(sum-100) > 1e-9 {
		errs = append(errs, fmt.Errorf("score weights must sum to 100 (current: %g)", sum))
	}
	if c.AlertThreshold < 0 || c.AlertThreshold > 100 {
		errs = append(errs, fmt.Errorf("minimum quality score %g not in [0, 100]", c.AlertThreshold))
	}
	if !c.TradeAmount.IsPositive() {
		errs = append(errs, fmt.Errorf("trade amount must be positive"))
	}
	if c.MinReserve.IsNegative() || c.MinReserve.GreaterThan(c.TotalBalance) {
		errs = append(errs, fmt.Errorf("min reserve %s not in [0, total %s]", c.MinReserve, c.TotalBalance))
	}
	if c.MaxPositions <= 0 {
		errs = append(errs, fmt.Errorf("max concurrent positions must be positive"))
	}
	if c.CheckInterval <= 0 || c.SellTimeout <= 0 {
		errs = append(errs, fmt.Errorf("check interval and sell timeout must be positive"))
	}
	if !c.DryRun && c.AutoTrade {
		errs = append(errs, fmt.Errorf("live execution is not supported, set DRY_RUN=true"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// envReader parses variables and keeps the first parse error.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) fail(key, val string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, val, err))
}

func (e *envReader) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(e.errs...))
}

func (e *envReader) string(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *envReader) float(key string, def float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return f
}

// percent reads a value given in percent and returns a fraction.
func (e *envReader) percent(key string, def float64) float64 {
	if _, ok := e.lookup(key); !ok {
		return def
	}
	return e.float(key, def*100) / 100
}

func (e *envReader) int(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *envReader) bool(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

func (e *envReader) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

// duration accepts Go durations ("30s") or plain seconds ("30").
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
