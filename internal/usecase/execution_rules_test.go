package usecase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/opening_playbook/internal/config"
	"github.com/vitos/opening_playbook/internal/domain"
	"github.com/vitos/opening_playbook/internal/usecase"
)

func TestExecutionRules_Check(t *testing.T) {
	rules, err := usecase.NewExecutionRules(config.DefaultSession())
	require.NoError(t, err)

	wide := liveQuote("AAPL", 100, sessionTime(10, 0))
	wide.Bid, wide.Ask = 99.8, 100.2 // 40 bps

	thin := liveQuote("AAPL", 100, sessionTime(10, 0))
	thin.TopOfBookSize = 50

	illiquid := liveQuote("AAPL", 100, sessionTime(10, 0))
	illiquid.AvgDailyVolume = 100_000

	tests := []struct {
		name      string
		snap      domain.MarketSnapshot
		orderType domain.OrderType
		allowed   bool
		reason    string
	}{
		{"before open", liveQuote("AAPL", 100, sessionTime(9, 29)), domain.OrderLimit, false, "outside market session"},
		{"open cooldown", liveQuote("AAPL", 100, sessionTime(9, 32)), domain.OrderLimit, false, "within 5m0s open cooldown"},
		{"after cooldown", liveQuote("AAPL", 100, sessionTime(9, 35)), domain.OrderMarket, true, ""},
		{"mid session market", liveQuote("AAPL", 100, sessionTime(10, 0)), domain.OrderMarket, true, ""},
		{"stop before cutoff", liveQuote("AAPL", 100, sessionTime(15, 44)), domain.OrderStop, true, ""},
		{"stop into close", liveQuote("AAPL", 100, sessionTime(15, 50)), domain.OrderStop, false, "stop orders blocked in the last 15m0s"},
		{"stop limit into close", liveQuote("AAPL", 100, sessionTime(15, 50)), domain.OrderStopLimit, false, "stop orders blocked in the last 15m0s"},
		{"limit into close", liveQuote("AAPL", 100, sessionTime(15, 50)), domain.OrderLimit, true, ""},
		{"at close", liveQuote("AAPL", 100, sessionTime(16, 0)), domain.OrderLimit, false, "outside market session"},
		{"low adv", illiquid, domain.OrderLimit, false, "average daily volume 100000 below 500000"},
		{"thin book", thin, domain.OrderLimit, false, "top of book size 50 below 100"},
		{"wide market order", wide, domain.OrderMarket, false, "spread 40.0 bps above 25.0 bps for market order"},
		{"wide limit order", wide, domain.OrderLimit, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := rules.Check(tt.snap, tt.orderType)
			assert.Equal(t, tt.allowed, ok)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.allowed, rules.IsTradeAllowed(tt.snap, tt.orderType))
		})
	}
}

func TestExecutionRules_UsesExchangeLocalTime(t *testing.T) {
	rules, err := usecase.NewExecutionRules(config.DefaultSession())
	require.NoError(t, err)

	// 13:45 UTC is 09:45 EDT in July and 08:45 EST in January.
	summer := liveQuote("AAPL", 100, time.Date(2026, 7, 1, 13, 45, 0, 0, time.UTC))
	winter := liveQuote("AAPL", 100, time.Date(2026, 1, 6, 13, 45, 0, 0, time.UTC))

	assert.True(t, rules.IsTradeAllowed(summer, domain.OrderLimit))
	assert.False(t, rules.IsTradeAllowed(winter, domain.OrderLimit))
}

func TestExecutionRules_SessionBounds(t *testing.T) {
	rules, err := usecase.NewExecutionRules(config.DefaultSession())
	require.NoError(t, err)

	open, closeAt := rules.SessionBounds(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 7, 1, 13, 30, 0, 0, time.UTC), open.UTC())
	assert.Equal(t, time.Date(2026, 7, 1, 20, 0, 0, 0, time.UTC), closeAt.UTC())
}

func TestNewExecutionRules_InvalidConfig(t *testing.T) {
	cfg := config.DefaultSession()
	cfg.Timezone = "Mars/Olympus"
	_, err := usecase.NewExecutionRules(cfg)
	assert.ErrorIs(t, err, domain.ErrConfig)

	cfg = config.DefaultSession()
	cfg.MarketClose = "09:00"
	_, err = usecase.NewExecutionRules(cfg)
	assert.ErrorIs(t, err, domain.ErrConfig)
}
