package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/opening_playbook/internal/config"
	"github.com/vitos/opening_playbook/internal/domain"
)

// MockMarketData serves canned premarket snapshots.
type MockMarketData struct {
	mu         sync.Mutex
	Premarkets map[string]domain.PremarketSnapshot
	Errors     map[string]error
	Calls      int
}

func (m *MockMarketData) Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	return domain.MarketSnapshot{}, fmt.Errorf("%w: no live quotes for %s", domain.ErrDataUnavailable, symbol)
}

func (m *MockMarketData) Premarket(ctx context.Context, symbol string) (domain.PremarketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if err, ok := m.Errors[symbol]; ok {
		return domain.PremarketSnapshot{}, err
	}
	snap, ok := m.Premarkets[symbol]
	if !ok {
		return domain.PremarketSnapshot{}, fmt.Errorf("%w: %s", domain.ErrDataUnavailable, symbol)
	}
	return snap, nil
}

// MockBroker fills every order at Price, or at the limit price when one is set.
type MockBroker struct {
	mu       sync.Mutex
	Price    float64
	Status   domain.FillStatus
	Err      error
	Requests []domain.OrderRequest
}

func (m *MockBroker) Execute(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return domain.Fill{}, m.Err
	}
	status := m.Status
	if status == "" {
		status = domain.FillFilled
	}
	price := m.Price
	if req.LimitPrice > 0 {
		price = req.LimitPrice
	}
	return domain.Fill{
		OrderID:  fmt.Sprintf("ord-%d", len(m.Requests)),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Status:   status,
		Quantity: req.Quantity,
		Price:    price,
		FilledAt: time.Date(2026, 3, 2, 14, 40, 0, 0, time.UTC),
	}, nil
}

func (m *MockBroker) Exits() []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderRequest
	for _, r := range m.Requests {
		if r.Metadata["intent"] == "exit" {
			out = append(out, r)
		}
	}
	return out
}

// MockAudit records everything in memory.
type MockAudit struct {
	mu        sync.Mutex
	Plans     []domain.TradePlan
	Decisions []domain.GuardrailDecision
	Actions   []domain.PositionAction
}

func (m *MockAudit) SaveTradePlan(ctx context.Context, plan domain.TradePlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Plans = append(m.Plans, plan)
	return nil
}

func (m *MockAudit) ListTradePlans(ctx context.Context, sessionDate string) ([]domain.TradePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TradePlan(nil), m.Plans...), nil
}

func (m *MockAudit) SaveGuardrailDecision(ctx context.Context, state domain.GuardrailState, decision domain.GuardrailDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Decisions = append(m.Decisions, decision)
	return nil
}

func (m *MockAudit) ListGuardrailDecisions(ctx context.Context, limit int) ([]domain.GuardrailDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.GuardrailDecision(nil), m.Decisions...), nil
}

func (m *MockAudit) SavePositionAction(ctx context.Context, action domain.PositionAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Actions = append(m.Actions, action)
	return nil
}

func (m *MockAudit) ListPositionActions(ctx context.Context, limit int) ([]domain.PositionAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PositionAction(nil), m.Actions...), nil
}

func testPlaybook() *config.Playbook {
	return &config.Playbook{
		Universe:         []string{"AAPL", "MSFT", "TSLA"},
		FetchConcurrency: 2,
		Filters: config.FilterConfig{
			MinPrice:           5,
			MinAvgDailyVolume:  1_000_000,
			MinGapPct:          0.02,
			MinPremarketVolume: 50_000,
			MaxSpreadPct:       0.005,
		},
		States: config.StateConfig{FadeGapPct: 0.08},
		Risk: config.RiskConfig{
			MaxQuantity:     100,
			MaxSlippageBps:  10,
			StopDistancePct: 0.01,
		},
		Execution: config.ExecutionConfig{
			KillAfterSeconds:    30,
			OpeningRangeSeconds: 300,
			MinRelativeVolume:   1.5,
			MaxSpreadPct:        0.002,
		},
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

// gapper is a premarket snapshot that passes every filter of testPlaybook.
func gapper(symbol string, gap float64) domain.PremarketSnapshot {
	prev := 100.0
	pm := prev * (1 + gap)
	return domain.PremarketSnapshot{
		Symbol:          symbol,
		PrevClose:       prev,
		PremarketPrice:  pm,
		PremarketVolume: 200_000,
		Bid:             pm - 0.05,
		Ask:             pm + 0.05,
		AvgDailyVolume:  5_000_000,
		LastPrice:       pm,
		HasCatalyst:     true,
	}
}

// sessionTime returns 2026-03-02 (a Monday) at hh:mm New York time.
func sessionTime(hh, mm int) time.Time {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return time.Date(2026, 3, 2, hh, mm, 0, 0, loc)
}

// liveQuote is a liquid, tight market at price.
func liveQuote(symbol string, price float64, at time.Time) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Symbol:         symbol,
		Timestamp:      at,
		Bid:            price - 0.01,
		Ask:            price + 0.01,
		Last:           price,
		AvgDailyVolume: 5_000_000,
		TopOfBookSize:  500,
		ImpactCostBps:  2,
	}
}
