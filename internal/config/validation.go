package config

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/vitos/opening_playbook/internal/domain"
	"go.uber.org/multierr"
)

// Validate checks every block and reports all problems at once.
func (p *Playbook) Validate() error {
	var errs error
	if len(p.Universe) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("universe requires at least one symbol"))
	}
	seen := make(map[string]bool, len(p.Universe))
	for _, sym := range p.Universe {
		if sym == "" {
			errs = multierr.Append(errs, fmt.Errorf("universe contains an empty symbol"))
			continue
		}
		if seen[sym] {
			errs = multierr.Append(errs, fmt.Errorf("universe lists %s twice", sym))
		}
		seen[sym] = true
	}
	errs = multierr.Append(errs, p.Filters.validate())
	if p.States.FadeGapPct <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("states.fade_gap_pct must be > 0"))
	}
	errs = multierr.Append(errs, p.Risk.validate())
	errs = multierr.Append(errs, p.Execution.validate())
	errs = multierr.Append(errs, p.PositionManagement.validate())
	errs = multierr.Append(errs, p.Session.validate())
	errs = multierr.Append(errs, p.Guardrails.validate())
	if errs != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfig, errs)
	}
	return nil
}

func (f FilterConfig) validate() error {
	var errs error
	if f.MinPrice < 0 {
		errs = multierr.Append(errs, fmt.Errorf("filters.min_price must be >= 0"))
	}
	if f.MinAvgDailyVolume < 0 {
		errs = multierr.Append(errs, fmt.Errorf("filters.min_adv must be >= 0"))
	}
	if f.MinGapPct < 0 {
		errs = multierr.Append(errs, fmt.Errorf("filters.min_gap_pct must be >= 0"))
	}
	if f.MinPremarketVolume < 0 {
		errs = multierr.Append(errs, fmt.Errorf("filters.min_premarket_volume must be >= 0"))
	}
	if f.MaxSpreadPct <= 0 || f.MaxSpreadPct >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("filters.max_spread_pct must be in (0,1)"))
	}
	return errs
}

func (r RiskConfig) validate() error {
	var errs error
	if r.MaxQuantity <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("risk.max_quantity must be > 0"))
	}
	if r.MaxSlippageBps < 0 {
		errs = multierr.Append(errs, fmt.Errorf("risk.max_slippage_bps must be >= 0"))
	}
	if r.StopDistancePct <= 0 || r.StopDistancePct >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("risk.stop_distance_pct must be in (0,1)"))
	}
	return errs
}

func (e ExecutionConfig) validate() error {
	var errs error
	if e.KillAfterSeconds < 0 {
		errs = multierr.Append(errs, fmt.Errorf("execution.kill_after_seconds must be >= 0"))
	}
	if e.OpeningRangeSeconds < 0 {
		errs = multierr.Append(errs, fmt.Errorf("execution.opening_range_seconds must be >= 0"))
	}
	if e.MinRelativeVolume < 0 {
		errs = multierr.Append(errs, fmt.Errorf("execution.min_relative_volume must be >= 0"))
	}
	if e.MaxSpreadPct <= 0 || e.MaxSpreadPct >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("execution.max_spread_pct must be in (0,1)"))
	}
	return errs
}

func (m ManagementConfig) validate() error {
	var errs error
	prev := 0.0
	for i, t := range m.PartialTargetsR {
		if t <= prev {
			errs = multierr.Append(errs, fmt.Errorf("position_management.partial_targets_r[%d]=%.2f must be > %.2f", i, t, prev))
		}
		prev = t
	}
	if m.TimeStopSeconds < 0 {
		errs = multierr.Append(errs, fmt.Errorf("position_management.time_stop_seconds must be >= 0"))
	}
	if m.LoserKillR >= 0 {
		errs = multierr.Append(errs, fmt.Errorf("position_management.loser_kill_r must be < 0"))
	}
	return errs
}

func (s SessionConfig) validate() error {
	var errs error
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("session.timezone: %v", err))
	}
	open, err := ParseClock(s.MarketOpen)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("session.market_open: %v", err))
	}
	closeAt, err2 := ParseClock(s.MarketClose)
	if err2 != nil {
		errs = multierr.Append(errs, fmt.Errorf("session.market_close: %v", err2))
	}
	if err == nil && err2 == nil && closeAt <= open {
		errs = multierr.Append(errs, fmt.Errorf("session.market_close must be after market_open"))
	}
	if s.OpenCooldownMinutes < 0 || s.StopCutoffMinutes < 0 {
		errs = multierr.Append(errs, fmt.Errorf("session cooldown and stop cutoff must be >= 0"))
	}
	if s.MinAvgDailyVolume < 0 || s.MinTopOfBookSize < 0 {
		errs = multierr.Append(errs, fmt.Errorf("session liquidity floors must be >= 0"))
	}
	if s.MaxMarketSpreadBps <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("session.max_market_spread_bps must be > 0"))
	}
	return errs
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (g GuardrailConfig) validate() error {
	var errs error
	errs = multierr.Append(errs, validateLadder("guardrails.day_pnl", g.DayPnL, true))
	errs = multierr.Append(errs, validateLadder("guardrails.var_95", g.VaR95, false))
	errs = multierr.Append(errs, validateLadder("guardrails.annual_vol", g.AnnualVol, false))
	errs = multierr.Append(errs, validateLadder("guardrails.drawdown", g.Drawdown, false))
	return errs
}

// validateLadder requires rungs ordered from mildest to most severe. For a
// descending ladder (losses) each threshold must be lower than the previous one.
func validateLadder(name string, rungs []Rung, descending bool) error {
	var errs error
	for i, r := range rungs {
		if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
			errs = multierr.Append(errs, fmt.Errorf("%s[%d]: threshold must be finite", name, i))
		}
		if r.Level <= domain.RiskOK || r.Level > domain.RiskHalt {
			errs = multierr.Append(errs, fmt.Errorf("%s[%d]: level must be APPROACH, RESTRICT or HALT", name, i))
		}
		if r.Multiplier < 0 || r.Multiplier > 1 {
			errs = multierr.Append(errs, fmt.Errorf("%s[%d]: multiplier must be in [0,1]", name, i))
		}
		if i == 0 {
			continue
		}
		prev := rungs[i-1]
		if descending && r.Threshold >= prev.Threshold || !descending && r.Threshold <= prev.Threshold {
			errs = multierr.Append(errs, fmt.Errorf("%s[%d]: thresholds must move toward more severe values", name, i))
		}
		if r.Level < prev.Level {
			errs = multierr.Append(errs, fmt.Errorf("%s[%d]: level cannot be milder than the previous rung", name, i))
		}
		if r.Multiplier > prev.Multiplier {
			errs = multierr.Append(errs, fmt.Errorf("%s[%d]: multiplier cannot grow with severity", name, i))
		}
	}
	return errs
}
