package web_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/opening_playbook/internal/config"
	"github.com/vitos/opening_playbook/internal/domain"
	"github.com/vitos/opening_playbook/internal/infrastructure/broker"
	"github.com/vitos/opening_playbook/internal/infrastructure/storage"
	"github.com/vitos/opening_playbook/internal/usecase"
	"github.com/vitos/opening_playbook/internal/web"
	"go.uber.org/zap"
)

// MockMarketData quotes AAPL inside the session and nothing else.
type MockMarketData struct {
	At time.Time
}

func (m *MockMarketData) Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	if symbol != "AAPL" {
		return domain.MarketSnapshot{}, domain.ErrDataUnavailable
	}
	return domain.MarketSnapshot{
		Symbol: "AAPL", Timestamp: m.At, Bid: 103.99, Ask: 104.01, Last: 104,
		AvgDailyVolume: 5_000_000, TopOfBookSize: 500, ImpactCostBps: 1,
	}, nil
}

func (m *MockMarketData) Premarket(ctx context.Context, symbol string) (domain.PremarketSnapshot, error) {
	if symbol != "AAPL" {
		return domain.PremarketSnapshot{}, fmt.Errorf("%w: %s", domain.ErrDataUnavailable, symbol)
	}
	return domain.PremarketSnapshot{
		Symbol: "AAPL", PrevClose: 100, PremarketPrice: 104, PremarketVolume: 200_000,
		Bid: 103.95, Ask: 104.05, AvgDailyVolume: 5_000_000, HasCatalyst: true,
	}, nil
}

func playbook() *config.Playbook {
	return &config.Playbook{
		Universe:         []string{"AAPL", "MSFT"},
		FetchConcurrency: 2,
		Filters:          config.FilterConfig{MinPrice: 5, MinAvgDailyVolume: 1_000_000, MinGapPct: 0.02, MinPremarketVolume: 50_000, MaxSpreadPct: 0.005},
		States:           config.StateConfig{FadeGapPct: 0.08},
		Risk:             config.RiskConfig{MaxQuantity: 100, MaxSlippageBps: 10, StopDistancePct: 0.01},
		Execution:        config.ExecutionConfig{KillAfterSeconds: 30, OpeningRangeSeconds: 300, MinRelativeVolume: 1.5, MaxSpreadPct: 0.002},
		PositionManagement: config.ManagementConfig{
			PartialTargetsR: []float64{0.5, 1.0},
			TimeStopSeconds: 1800,
			LoserKillR:      -2,
			MoveToBreakeven: true,
		},
		Session:    config.DefaultSession(),
		Guardrails: config.DefaultGuardrails(),
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *usecase.SessionService) {
	t.Helper()
	// 2026-03-02 10:00 New York
	data := &MockMarketData{At: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)}
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc, err := usecase.NewSessionService(playbook(), data, broker.NewPaperBroker(data, zap.NewNop()), store, zap.NewNop())
	require.NoError(t, err)

	srv := httptest.NewServer(web.NewServer(0, store, data, svc, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv, svc
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestServer_Status(t *testing.T) {
	srv, _ := newTestServer(t)

	var status map[string]any
	code := getJSON(t, srv.URL+"/status", &status)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, float64(0), status["plans"])
}

func TestServer_SessionFlow(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	resp, err := http.Post(srv.URL+"/api/session/prepare", "application/json", nil)
	require.NoError(t, err)
	var report usecase.PlanReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	require.Len(t, report.Plans, 1)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "MSFT", report.Skipped[0].Symbol)

	var plans []domain.TradePlan
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/plans", &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, domain.SideBuy, plans[0].Side)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/guardrail", &errBody))

	_, err = svc.UpdateGuardrails(ctx, domain.GuardrailState{VaR95Pct: 2.5})
	require.NoError(t, err)
	var decision domain.GuardrailDecision
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/guardrail", &decision))
	assert.Equal(t, domain.RiskApproach, decision.Level)

	resp, err = http.Post(srv.URL+"/api/entries", "application/json", strings.NewReader(`{"symbol":"aapl","order_type":"MARKET"}`))
	require.NoError(t, err)
	var entry usecase.EntryResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, entry.Accepted)
	assert.Equal(t, int64(75), entry.Quantity)

	var positions []domain.Position
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/positions", &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, 104.01, positions[0].EntryPrice)

	var history []domain.TradePlan
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/history/plans", &history))
	assert.Len(t, history, 1)

	var decisions []domain.GuardrailDecision
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/history/guardrail?limit=5", &decisions))
	assert.Len(t, decisions, 1)

	var actions []domain.PositionAction
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/history/actions", &actions))
	assert.Empty(t, actions)
}

func TestServer_SubmitEntryErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"bad order type", `{"symbol":"AAPL","order_type":"ICEBERG"}`, http.StatusBadRequest},
		{"no quote", `{"symbol":"MSFT"}`, http.StatusServiceUnavailable},
		{"no plan", `{"symbol":"AAPL"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/entries", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}
