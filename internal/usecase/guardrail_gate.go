package usecase

import (
	"fmt"
	"math"
	"time"

	"github.com/vitos/opening_playbook/internal/config"
	"github.com/vitos/opening_playbook/internal/domain"
)

const (
	ActionBlockEntries = "block new entries"
	ActionFlatten      = "flatten or freeze open positions"
)

// metricLadder is one metric's ordered rungs. A loss ladder breaches when the
// value is at or below a threshold, the others when at or above.
type metricLadder struct {
	name  string
	loss  bool
	rungs []config.Rung
	value func(domain.GuardrailState) float64
}

// deepest returns the most severe breached rung, if any.
func (l metricLadder) deepest(v float64) (config.Rung, bool) {
	var hit config.Rung
	found := false
	for _, r := range l.rungs {
		breached := v >= r.Threshold
		if l.loss {
			breached = v <= r.Threshold
		}
		if breached {
			hit, found = r, true
		}
	}
	return hit, found
}

// GuardrailGate maps the latest portfolio risk snapshot to a risk level. It keeps
// no history and is safe for concurrent use.
type GuardrailGate struct {
	ladders []metricLadder
	now     func() time.Time
}

func NewGuardrailGate(cfg config.GuardrailConfig) *GuardrailGate {
	return &GuardrailGate{
		ladders: []metricLadder{
			{name: "day pnl", loss: true, rungs: cfg.DayPnL, value: func(s domain.GuardrailState) float64 { return s.DayPnLPct }},
			{name: "var 95", rungs: cfg.VaR95, value: func(s domain.GuardrailState) float64 { return s.VaR95Pct }},
			{name: "annualized vol", rungs: cfg.AnnualVol, value: func(s domain.GuardrailState) float64 { return s.AnnualVolPct }},
			{name: "drawdown", rungs: cfg.Drawdown, value: func(s domain.GuardrailState) float64 { return s.DrawdownPct }},
		},
		now: time.Now,
	}
}

// Evaluate folds every metric ladder into one decision. Callers validate the
// state first (GuardrailState.Validate).
func (g *GuardrailGate) Evaluate(state domain.GuardrailState) domain.GuardrailDecision {
	d := domain.GuardrailDecision{
		Level:          domain.RiskOK,
		RiskMultiplier: 1.0,
		Reasons:        []string{},
		Actions:        []string{},
		EvaluatedAt:    g.now().UTC(),
	}
	seen := make(map[string]bool)
	addAction := func(a string) {
		if !seen[a] {
			seen[a] = true
			d.Actions = append(d.Actions, a)
		}
	}

	for _, l := range g.ladders {
		v := l.value(state)
		rung, ok := l.deepest(v)
		if !ok {
			continue
		}
		cmp := ">="
		if l.loss {
			cmp = "<="
		}
		d.Reasons = append(d.Reasons, fmt.Sprintf("%s %.2f%% %s %.2f%% (%s)", l.name, v, cmp, rung.Threshold, rung.Level))

		if rung.Level > d.Level {
			d.Level = rung.Level
		}
		mult := rung.Multiplier
		if rung.Level == domain.RiskHalt {
			mult = 0
		}
		d.RiskMultiplier = math.Min(d.RiskMultiplier, mult)

		switch rung.Level {
		case domain.RiskApproach:
			addAction(fmt.Sprintf("reduce size to %.0f%%", mult*100))
		case domain.RiskRestrict:
			addAction(ActionBlockEntries)
		case domain.RiskHalt:
			addAction(ActionBlockEntries)
			addAction(ActionFlatten)
		}
	}

	d.AllowedNewEntries = d.Level < domain.RiskRestrict
	if d.Level == domain.RiskHalt {
		d.RiskMultiplier = 0
	}
	return d
}
