package domain

import (
	"fmt"
	"math"
	"time"
)

// RiskLevel is the portfolio-wide severity tier, ordered OK < APPROACH < RESTRICT < HALT.
type RiskLevel int

const (
	RiskOK RiskLevel = iota
	RiskApproach
	RiskRestrict
	RiskHalt
)

func (l RiskLevel) String() string {
	switch l {
	case RiskOK:
		return "OK"
	case RiskApproach:
		return "APPROACH"
	case RiskRestrict:
		return "RESTRICT"
	case RiskHalt:
		return "HALT"
	}
	return fmt.Sprintf("RiskLevel(%d)", int(l))
}

func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *RiskLevel) UnmarshalText(b []byte) error {
	lvl, err := ParseRiskLevel(string(b))
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "OK":
		return RiskOK, nil
	case "APPROACH":
		return RiskApproach, nil
	case "RESTRICT":
		return RiskRestrict, nil
	case "HALT":
		return RiskHalt, nil
	}
	return RiskOK, fmt.Errorf("unknown risk level %q", s)
}

// GuardrailState is the rolling portfolio risk snapshot. All values are percentages
// (day PnL -2.1 means a 2.1% loss).
type GuardrailState struct {
	DayPnLPct    float64 `json:"day_pnl_pct"`
	VaR95Pct     float64 `json:"var_95_pct"`
	AnnualVolPct float64 `json:"annual_vol_pct"`
	DrawdownPct  float64 `json:"drawdown_pct"`
}

// Validate rejects metrics the gate must never see.
func (s GuardrailState) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"day_pnl_pct", s.DayPnLPct},
		{"var_95_pct", s.VaR95Pct},
		{"annual_vol_pct", s.AnnualVolPct},
		{"drawdown_pct", s.DrawdownPct},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidMetrics, f.name, f.v)
		}
	}
	return nil
}

type GuardrailDecision struct {
	Level             RiskLevel `json:"level"`
	AllowedNewEntries bool      `json:"allowed_new_entries"`
	RiskMultiplier    float64   `json:"risk_multiplier"`
	Reasons           []string  `json:"reasons"`
	Actions           []string  `json:"actions"`
	EvaluatedAt       time.Time `json:"evaluated_at"`
}
