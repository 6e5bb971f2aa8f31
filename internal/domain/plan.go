package domain

import "fmt"

type PlanState string

const (
	StateContinuation PlanState = "CONTINUATION"
	StateFade         PlanState = "FADE"
	StateNoTrade      PlanState = "NO_TRADE"
)

func (s PlanState) Valid() bool {
	switch s {
	case StateContinuation, StateFade, StateNoTrade:
		return true
	}
	return false
}

func (s PlanState) String() string { return string(s) }

// TradePlan is the immutable per-symbol plan built before the open.
type TradePlan struct {
	Symbol      string    `json:"symbol"`
	SessionDate string    `json:"session_date"`
	State       PlanState `json:"state"`
	Side        Side      `json:"side"`

	// Risk
	MaxQuantity     int64   `json:"max_quantity"`
	MaxSlippageBps  float64 `json:"max_slippage_bps"`
	StopDistancePct float64 `json:"stop_distance_pct"`

	// Execution
	KillAfterSeconds    int     `json:"kill_after_seconds"`
	OpeningRangeSeconds int     `json:"opening_range_seconds"`
	MinRelativeVolume   float64 `json:"min_relative_volume"`
	MaxSpreadPct        float64 `json:"max_spread_pct"`

	// Position management
	PartialTargetsR []float64 `json:"partial_targets_r"`
	TimeStopSeconds int       `json:"time_stop_seconds"`
	LoserKillR      float64   `json:"loser_kill_r"`
	MoveToBreakeven bool      `json:"move_to_breakeven"`
}

// Clone returns a copy that shares no slices with p.
func (p TradePlan) Clone() TradePlan {
	out := p
	out.PartialTargetsR = append([]float64(nil), p.PartialTargetsR...)
	return out
}

// StopPrice derives the initial stop for an entry at the given price.
func (p TradePlan) StopPrice(entry float64) (float64, error) {
	if entry <= 0 || p.StopDistancePct <= 0 {
		return 0, fmt.Errorf("%w: entry %.4f stop distance %.4f", ErrInvalidPosition, entry, p.StopDistancePct)
	}
	switch p.Side {
	case SideBuy:
		return entry * (1 - p.StopDistancePct), nil
	case SideSell:
		return entry * (1 + p.StopDistancePct), nil
	}
	return 0, fmt.Errorf("%w: side %q", ErrInvalidPosition, p.Side)
}
