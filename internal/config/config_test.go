package config

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-pair-sentinel/internal/domain"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, ProfileBalanced, c.Profile)
	assert.Equal(t, 70.0, c.AlertThreshold)
	assert.Equal(t, 3, c.MaxPositions)
	assert.True(t, c.DryRun)
	assert.False(t, c.AutoTrade)
	assert.Equal(t, 6*time.Hour, c.Exit.MaxHold)
}

func TestApplyProfile(t *testing.T) {
	tests := []struct {
		profile   Profile
		threshold float64
		minLiq    float64
		stopLoss  float64
		sellTax   float64
		renounced bool
	}{
		{ProfileConservative, 80, 20, 0.20, 10, true},
		{ProfileBalanced, 70, 10, 0.30, 15, false},
		{ProfileAggressive, 60, 5, 0.40, 20, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			c := Default()
			require.NoError(t, c.ApplyProfile(tt.profile))
			assert.Equal(t, tt.threshold, c.AlertThreshold)
			assert.Equal(t, tt.minLiq, c.Scoring.MinLiquidity)
			assert.InDelta(t, tt.stopLoss, c.Exit.StopLossFraction, 1e-9)
			assert.Equal(t, tt.sellTax, c.Scoring.MaxSellTax)
			assert.Equal(t, tt.renounced, c.Scoring.RequireRenounced)
			assert.NoError(t, c.Validate())
		})
	}
}

func TestApplyProfile_Unknown(t *testing.T) {
	c := Default()
	err := c.ApplyProfile("YOLO")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestFromEnv_ExplicitValuesOverrideProfile(t *testing.T) {
	t.Setenv("TRADING_PROFILE", "conservative")
	t.Setenv("MINIMUM_QUALITY_SCORE", "75")
	t.Setenv("STOP_LOSS_PERCENT", "25")
	t.Setenv("TRADE_AMOUNT_SOL", "0.2")
	t.Setenv("MAX_HOLD_TIME", "3600")
	t.Setenv("POSITION_CHECK_INTERVAL", "15s")
	t.Setenv("AUTO_TRADE", "true")
	t.Setenv("FCM_DEVICE_TOKENS", "a, b,,c")
	t.Setenv("SEND_DETECTION_ALERTS", "false")

	c, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ProfileConservative, c.Profile)
	assert.Equal(t, 75.0, c.AlertThreshold)
	assert.Equal(t, 20.0, c.Scoring.MinLiquidity, "profile value kept when not overridden")
	assert.InDelta(t, 0.25, c.Exit.StopLossFraction, 1e-9)
	assert.True(t, c.TradeAmount.Equal(decimal.RequireFromString("0.2")))
	assert.Equal(t, time.Hour, c.Exit.MaxHold)
	assert.Equal(t, 15*time.Second, c.CheckInterval)
	assert.True(t, c.AutoTrade)
	assert.Equal(t, []string{"a", "b", "c"}, c.FCMTokens)
	assert.Equal(t, []domain.EventType{
		domain.EventPositionOpened,
		domain.EventPositionClosed,
		domain.EventSellFailed,
	}, c.Alerts.Types())
	assert.NoError(t, c.Validate())
}

func TestFromEnv_ParseErrors(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_POSITIONS", "three")
	t.Setenv("DRY_RUN", "maybe")

	_, err := FromEnv()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "MAX_CONCURRENT_POSITIONS")
	assert.Contains(t, err.Error(), "DRY_RUN")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"weights", func(c *Config) { c.Weights.Security = 40 }, "sum to 100"},
		{"threshold", func(c *Config) { c.AlertThreshold = 120 }, "minimum quality score"},
		{"trade amount", func(c *Config) { c.TradeAmount = decimal.Zero }, "trade amount"},
		{"reserve", func(c *Config) { c.MinReserve = decimal.NewFromInt(5) }, "min reserve"},
		{"positions", func(c *Config) { c.MaxPositions = 0 }, "max concurrent positions"},
		{"live", func(c *Config) { c.DryRun = false; c.AutoTrade = true }, "DRY_RUN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_DelegatesSections(t *testing.T) {
	c := Default()
	c.Exit.StopLossFraction = 1.5
	assert.Error(t, c.Validate())

	c = Default()
	c.Scoring.MaxTopHolder = 0
	assert.Error(t, c.Validate())
}
