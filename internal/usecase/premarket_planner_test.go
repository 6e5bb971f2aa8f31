package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/opening_playbook/internal/domain"
	"github.com/vitos/opening_playbook/internal/usecase"
	"go.uber.org/zap"
)

func TestPremarketPlanner_IsTradableToday(t *testing.T) {
	cfg := testPlaybook()
	cfg.Filters.RequireCatalyst = true
	planner := usecase.NewPremarketPlanner(&MockMarketData{}, zap.NewNop())

	with := func(f func(*domain.PremarketSnapshot)) domain.PremarketSnapshot {
		s := gapper("AAPL", 0.04)
		f(&s)
		return s
	}

	tests := []struct {
		name     string
		snap     domain.PremarketSnapshot
		tradable bool
	}{
		{"passes all filters", gapper("AAPL", 0.04), true},
		{"gap down passes", gapper("AAPL", -0.04), true},
		{"penny stock", with(func(s *domain.PremarketSnapshot) { s.PrevClose, s.PremarketPrice = 3, 3.2; s.Bid, s.Ask = 3.19, 3.2 }), false},
		{"low adv", with(func(s *domain.PremarketSnapshot) { s.AvgDailyVolume = 10_000 }), false},
		{"small gap", gapper("AAPL", 0.01), false},
		{"thin premarket", with(func(s *domain.PremarketSnapshot) { s.PremarketVolume = 1_000 }), false},
		{"wide spread", with(func(s *domain.PremarketSnapshot) { s.Bid, s.Ask = 103, 105 }), false},
		{"no quote", with(func(s *domain.PremarketSnapshot) { s.Bid, s.Ask = 0, 0 }), false},
		{"no catalyst", with(func(s *domain.PremarketSnapshot) { s.HasCatalyst = false }), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.tradable, planner.IsTradableToday(cfg, tt.snap))
			assert.Equal(t, !tt.tradable, len(planner.Rejections(cfg, tt.snap)) > 0)
		})
	}
}

// Tradability is the AND of the filters: one failing filter is enough.
func TestPremarketPlanner_FiltersAreIndependent(t *testing.T) {
	cfg := testPlaybook()
	planner := usecase.NewPremarketPlanner(&MockMarketData{}, zap.NewNop())

	snap := gapper("AAPL", 0.01)
	snap.AvgDailyVolume = 10_000
	snap.PremarketVolume = 10

	reasons := planner.Rejections(cfg, snap)
	assert.Len(t, reasons, 3)
	assert.False(t, planner.IsTradableToday(cfg, snap))
}

func TestPremarketPlanner_ClassifyAndSide(t *testing.T) {
	cfg := testPlaybook()
	planner := usecase.NewPremarketPlanner(&MockMarketData{}, zap.NewNop())

	tests := []struct {
		name  string
		gap   float64
		state domain.PlanState
		side  domain.Side
	}{
		{"modest gap up continues", 0.04, domain.StateContinuation, domain.SideBuy},
		{"modest gap down continues", -0.04, domain.StateContinuation, domain.SideSell},
		{"large gap up fades", 0.10, domain.StateFade, domain.SideSell},
		{"large gap down fades", -0.12, domain.StateFade, domain.SideBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := gapper("AAPL", tt.gap)
			state := planner.ClassifyState(cfg, snap)
			assert.Equal(t, tt.state, state)
			assert.Equal(t, state, planner.ClassifyState(cfg, snap), "classification is idempotent")
			assert.Equal(t, tt.side, planner.DecideSide(state, snap))
		})
	}
}

func TestPremarketPlanner_DecideSidePanicsOnUnknownState(t *testing.T) {
	planner := usecase.NewPremarketPlanner(&MockMarketData{}, zap.NewNop())
	assert.Panics(t, func() {
		planner.DecideSide(domain.PlanState("SIDEWAYS"), gapper("AAPL", 0.04))
	})
}

func TestPremarketPlanner_BuildTradePlan(t *testing.T) {
	cfg := testPlaybook()
	planner := usecase.NewPremarketPlanner(&MockMarketData{}, zap.NewNop())

	plan := planner.BuildTradePlan(cfg, gapper("AAPL", 0.04))

	assert.Equal(t, "AAPL", plan.Symbol)
	assert.Equal(t, domain.StateContinuation, plan.State)
	assert.Equal(t, domain.SideBuy, plan.Side)
	assert.Equal(t, cfg.Risk.MaxQuantity, plan.MaxQuantity)
	assert.Equal(t, cfg.Risk.StopDistancePct, plan.StopDistancePct)
	assert.Equal(t, cfg.Execution.MaxSpreadPct, plan.MaxSpreadPct)
	assert.Equal(t, cfg.PositionManagement.PartialTargetsR, plan.PartialTargetsR)
	assert.Equal(t, cfg.PositionManagement.LoserKillR, plan.LoserKillR)
	assert.NotEmpty(t, plan.SessionDate)

	plan.PartialTargetsR[0] = 9
	assert.Equal(t, 0.5, cfg.PositionManagement.PartialTargetsR[0], "plan must not alias the playbook")
}

func TestPremarketPlanner_PreopenPlan(t *testing.T) {
	cfg := testPlaybook()
	cfg.Universe = []string{"AAPL", "MSFT", "TSLA", "NVDA", "AMD"}
	data := &MockMarketData{
		Premarkets: map[string]domain.PremarketSnapshot{
			"AAPL": gapper("AAPL", 0.04),
			"MSFT": gapper("MSFT", 0.005), // gap too small
			"TSLA": gapper("TSLA", -0.10),
			"AMD":  gapper("AMD", 0.03),
		},
		Errors: map[string]error{
			"NVDA": errors.New("connection reset"),
		},
	}
	planner := usecase.NewPremarketPlanner(data, zap.NewNop())

	report, err := planner.Plan(context.Background(), cfg)
	require.NoError(t, err)

	var symbols []string
	for _, p := range report.Plans {
		symbols = append(symbols, p.Symbol)
	}
	assert.Equal(t, []string{"AAPL", "TSLA", "AMD"}, symbols, "plans keep universe order")
	assert.Equal(t, domain.StateFade, report.Plans[1].State)
	assert.Equal(t, domain.SideBuy, report.Plans[1].Side)

	require.Len(t, report.Skipped, 2)
	assert.Equal(t, "MSFT", report.Skipped[0].Symbol)
	assert.Equal(t, "NVDA", report.Skipped[1].Symbol)
	assert.Contains(t, report.Skipped[1].Reasons[0], "connection reset")
	assert.Equal(t, 5, data.Calls)

	plans, err := planner.PreopenPlan(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, report.Plans, plans)
}

func TestPremarketPlanner_EmptyWhenNothingTradable(t *testing.T) {
	cfg := testPlaybook()
	planner := usecase.NewPremarketPlanner(&MockMarketData{}, zap.NewNop())

	plans, err := planner.PreopenPlan(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, plans)
	assert.Empty(t, plans)
}

func TestPremarketPlanner_Cancelled(t *testing.T) {
	cfg := testPlaybook()
	planner := usecase.NewPremarketPlanner(&MockMarketData{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := planner.PreopenPlan(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}
