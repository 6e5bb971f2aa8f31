package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vitos/opening_playbook/internal/config"
	"github.com/vitos/opening_playbook/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// EntryResult is the outcome of one entry attempt. A policy rejection is
// reported here, not as an error.
type EntryResult struct {
	Accepted bool             `json:"accepted"`
	Reasons  []string         `json:"reasons,omitempty"`
	Quantity int64            `json:"quantity,omitempty"`
	Fill     *domain.Fill     `json:"fill,omitempty"`
	Position *domain.Position `json:"position,omitempty"`
}

func rejected(reasons ...string) *EntryResult {
	return &EntryResult{Accepted: false, Reasons: reasons}
}

// SessionService runs one trading session: the pre-open plans, the latest
// guardrail decision and the open positions.
type SessionService struct {
	audit    domain.AuditRepository
	planner  *PremarketPlanner
	executor *TradeExecutor
	book     *PositionBook
	logger   *zap.Logger
	timeNow  func() time.Time

	mu       sync.RWMutex
	playbook *config.Playbook
	pending  *config.Playbook
	gate     *GuardrailGate
	rules    *ExecutionRules
	plans    map[string]domain.TradePlan // symbol -> plan
	order    []string
	decision *domain.GuardrailDecision
}

func NewSessionService(
	playbook *config.Playbook,
	data domain.MarketData,
	broker domain.Broker,
	audit domain.AuditRepository,
	logger *zap.Logger,
) (*SessionService, error) {
	if playbook == nil {
		return nil, fmt.Errorf("%w: playbook is required", domain.ErrConfig)
	}
	rules, err := NewExecutionRules(playbook.Session)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		audit:    audit,
		planner:  NewPremarketPlanner(data, logger),
		executor: NewTradeExecutor(broker),
		book:     NewPositionBook(NewPositionManager()),
		logger:   logger,
		timeNow:  time.Now,
		playbook: playbook,
		gate:     NewGuardrailGate(playbook.Guardrails),
		rules:    rules,
		plans:    make(map[string]domain.TradePlan),
	}, nil
}

// SetPlaybook stages a reloaded playbook. It takes effect at the next
// PrepareSession so a running session keeps the thresholds it started with.
func (s *SessionService) SetPlaybook(pb *config.Playbook) {
	if pb == nil {
		return
	}
	s.mu.Lock()
	s.pending = pb
	s.mu.Unlock()
	s.logger.Info("Playbook reload staged for next session", zap.Int("universe", len(pb.Universe)))
}

// PrepareSession builds the day's plans and replaces the previous ones.
func (s *SessionService) PrepareSession(ctx context.Context) (PlanReport, error) {
	s.mu.Lock()
	if s.pending != nil {
		rules, err := NewExecutionRules(s.pending.Session)
		if err != nil {
			s.mu.Unlock()
			return PlanReport{}, err
		}
		s.playbook, s.rules = s.pending, rules
		s.gate = NewGuardrailGate(s.pending.Guardrails)
		s.pending = nil
	}
	pb := s.playbook
	s.mu.Unlock()

	report, err := s.planner.Plan(ctx, pb)
	if err != nil {
		return PlanReport{}, fmt.Errorf("premarket planning: %w", err)
	}

	plans := make(map[string]domain.TradePlan, len(report.Plans))
	order := make([]string, 0, len(report.Plans))
	for _, p := range report.Plans {
		plans[p.Symbol] = p
		order = append(order, p.Symbol)
		if s.audit != nil {
			if err := s.audit.SaveTradePlan(ctx, p); err != nil {
				s.logger.Error("Failed to save trade plan", zap.String("symbol", p.Symbol), zap.Error(err))
			}
		}
	}

	s.mu.Lock()
	s.plans = plans
	s.order = order
	s.mu.Unlock()

	s.logger.Info("Session prepared",
		zap.String("session_date", report.SessionDate),
		zap.Int("plans", len(report.Plans)),
		zap.Int("skipped", len(report.Skipped)))
	return report, nil
}

// UpdateGuardrails evaluates a fresh risk snapshot and makes it the current decision.
func (s *SessionService) UpdateGuardrails(ctx context.Context, state domain.GuardrailState) (domain.GuardrailDecision, error) {
	if err := state.Validate(); err != nil {
		return domain.GuardrailDecision{}, err
	}
	s.mu.RLock()
	gate := s.gate
	prev := s.decision
	s.mu.RUnlock()

	decision := gate.Evaluate(state)

	s.mu.Lock()
	s.decision = &decision
	s.mu.Unlock()

	if prev == nil || prev.Level != decision.Level {
		s.logger.Warn("Guardrail level changed",
			zap.Stringer("level", decision.Level),
			zap.Float64("risk_multiplier", decision.RiskMultiplier),
			zap.Strings("reasons", decision.Reasons))
	}
	if s.audit != nil {
		if err := s.audit.SaveGuardrailDecision(ctx, state, decision); err != nil {
			s.logger.Error("Failed to save guardrail decision", zap.Error(err))
		}
	}
	return decision, nil
}

// SubmitEntry runs an entry through the guardrail, the execution rules and the
// plan limits, then sends it to the broker. A filled entry opens a position.
func (s *SessionService) SubmitEntry(ctx context.Context, symbol string, orderType domain.OrderType, snap domain.MarketSnapshot) (*EntryResult, error) {
	if !orderType.Valid() {
		return nil, fmt.Errorf("unknown order type %q", orderType)
	}
	s.mu.RLock()
	plan, ok := s.plans[symbol]
	decision := s.decision
	rules := s.rules
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoPlan, symbol)
	}
	if snap.Symbol == "" {
		snap.Symbol = symbol
	}

	if decision == nil {
		return s.reject(symbol, "guardrail not evaluated yet"), nil
	}
	if !decision.AllowedNewEntries {
		return s.reject(symbol, append([]string{fmt.Sprintf("guardrail %s blocks new entries", decision.Level)}, decision.Reasons...)...), nil
	}
	if ok, reason := rules.Check(snap, orderType); !ok {
		return s.reject(symbol, reason), nil
	}
	var reasons []string
	if spread := snap.SpreadBps() / 10_000; snap.Mid() <= 0 || spread > plan.MaxSpreadPct {
		reasons = append(reasons, fmt.Sprintf("spread %.2f%% above plan limit %.2f%%", spread*100, plan.MaxSpreadPct*100))
	}
	if snap.ImpactCostBps > plan.MaxSlippageBps {
		reasons = append(reasons, fmt.Sprintf("impact cost %.1f bps above plan slippage %.1f bps", snap.ImpactCostBps, plan.MaxSlippageBps))
	}
	if len(reasons) > 0 {
		return s.reject(symbol, reasons...), nil
	}

	qty := int64(math.Floor(float64(plan.MaxQuantity) * decision.RiskMultiplier))
	if qty < 1 {
		return s.reject(symbol, fmt.Sprintf("size %d after risk multiplier %.2f", qty, decision.RiskMultiplier)), nil
	}

	fill, err := s.executor.Enter(ctx, plan, qty, orderType, entryPrice(plan.Side, orderType, snap))
	if err != nil {
		if errors.Is(err, domain.ErrOrderRejected) {
			return s.reject(symbol, err.Error()), nil
		}
		return nil, fmt.Errorf("entry %s: %w", symbol, err)
	}
	result := &EntryResult{Accepted: true, Quantity: qty, Fill: &fill}
	if !fill.Filled() {
		s.logger.Info("Entry accepted without fill", zap.String("symbol", symbol), zap.String("status", string(fill.Status)))
		return result, nil
	}
	if fill.FilledAt.IsZero() {
		fill.FilledAt = s.timeNow()
	}

	stop, err := plan.StopPrice(fill.Price)
	if err != nil {
		return nil, err
	}
	pos, err := s.book.Open(plan, fill, stop)
	if err != nil {
		return nil, err
	}
	result.Position = &pos
	s.logger.Info("Position opened",
		zap.String("id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("side", pos.Side.String()),
		zap.Int64("quantity", pos.Quantity),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("stop", pos.StopPrice))
	return result, nil
}

func (s *SessionService) reject(symbol string, reasons ...string) *EntryResult {
	s.logger.Info("Entry rejected", zap.String("symbol", symbol), zap.Strings("reasons", reasons))
	return rejected(reasons...)
}

// entryPrice is the limit or trigger handed to the broker; MARKET orders carry none.
func entryPrice(side domain.Side, orderType domain.OrderType, snap domain.MarketSnapshot) float64 {
	switch orderType {
	case domain.OrderLimit, domain.OrderStopLimit:
		if side == domain.SideBuy {
			return snap.Ask
		}
		return snap.Bid
	case domain.OrderStop:
		return snap.Last
	}
	return 0
}

// ProcessTick runs every open position on the snapshot's symbol through the
// position manager. Exits are sent to the broker; a broker failure is logged and
// the remaining positions are still processed.
func (s *SessionService) ProcessTick(ctx context.Context, snap domain.MarketSnapshot) ([]domain.PositionAction, error) {
	price := snap.Last
	if !usablePrice(price) {
		price = snap.Mid()
	}
	if !usablePrice(price) {
		return nil, fmt.Errorf("%w: no price for %s", domain.ErrDataUnavailable, snap.Symbol)
	}
	now := snap.Timestamp
	if now.IsZero() {
		now = s.timeNow()
	}

	var actions []domain.PositionAction
	var errs error
	for _, id := range s.book.IDsForSymbol(snap.Symbol) {
		action, err := s.book.Tick(id, price, now)
		if errors.Is(err, domain.ErrPositionNotFound) {
			continue
		}
		if err != nil {
			return actions, err
		}
		actions = append(actions, action)
		if action.Kind == domain.ActionHold {
			continue
		}

		s.logger.Info("Position action",
			zap.String("id", action.PositionID),
			zap.String("symbol", action.Symbol),
			zap.String("kind", string(action.Kind)),
			zap.Int64("quantity", action.Quantity),
			zap.Float64("r", action.R),
			zap.String("reason", action.Reason))
		if s.audit != nil {
			if err := s.audit.SavePositionAction(ctx, action); err != nil {
				s.logger.Error("Failed to save position action", zap.String("id", action.PositionID), zap.Error(err))
			}
		}
		if _, err := s.executor.Exit(ctx, action); err != nil {
			s.logger.Error("Exit order failed", zap.String("id", action.PositionID), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("exit %s: %w", action.PositionID, err))
		}
	}
	return actions, errs
}

func usablePrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

// Plans returns the current plans in universe order.
func (s *SessionService) Plans() []domain.TradePlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TradePlan, 0, len(s.order))
	for _, sym := range s.order {
		out = append(out, s.plans[sym].Clone())
	}
	return out
}

func (s *SessionService) Positions() []domain.Position {
	return s.book.List()
}

// Guardrail returns the current decision, or false before the first evaluation.
func (s *SessionService) Guardrail() (domain.GuardrailDecision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.decision == nil {
		return domain.GuardrailDecision{}, false
	}
	d := *s.decision
	d.Reasons = append([]string(nil), d.Reasons...)
	d.Actions = append([]string(nil), d.Actions...)
	return d, true
}

// Playbook returns the playbook the running session uses.
func (s *SessionService) Playbook() *config.Playbook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playbook
}
