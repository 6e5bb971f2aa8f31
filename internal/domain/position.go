package domain

import (
	"fmt"
	"math"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) String() string { return string(s) }

// Position is an open position. It is mutated only by the PositionManager.
type Position struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   int64     `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	StopPrice  float64   `json:"stop_price"`
	EntryTime  time.Time `json:"entry_time"`
	// RValue is |entry - initial stop| and never changes after open.
	RValue          float64   `json:"r_value"`
	PartialTargetsR []float64 `json:"partial_targets_r"`
	TakenPartials   int       `json:"taken_partials"`
	BreakevenMoved  bool      `json:"breakeven_moved"`

	TimeStopSeconds int     `json:"time_stop_seconds"`
	LoserKillR      float64 `json:"loser_kill_r"`
	MoveToBreakeven bool    `json:"move_to_breakeven"`
}

// NewPosition opens a position from a filled entry using the management policy of plan.
func NewPosition(id string, plan TradePlan, quantity int64, entry, stop float64, at time.Time) (*Position, error) {
	if !plan.Side.Valid() {
		return nil, fmt.Errorf("%w: side %q", ErrInvalidPosition, plan.Side)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d", ErrInvalidPosition, quantity)
	}
	r := math.Abs(entry - stop)
	if entry <= 0 || r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return nil, fmt.Errorf("%w: entry %.4f stop %.4f", ErrInvalidPosition, entry, stop)
	}
	return &Position{
		ID:              id,
		Symbol:          plan.Symbol,
		Side:            plan.Side,
		Quantity:        quantity,
		EntryPrice:      entry,
		StopPrice:       stop,
		EntryTime:       at.UTC(),
		RValue:          r,
		PartialTargetsR: append([]float64(nil), plan.PartialTargetsR...),
		TimeStopSeconds: plan.TimeStopSeconds,
		LoserKillR:      plan.LoserKillR,
		MoveToBreakeven: plan.MoveToBreakeven,
	}, nil
}

// Clone returns a copy safe to hand to readers.
func (p Position) Clone() Position {
	out := p
	out.PartialTargetsR = append([]float64(nil), p.PartialTargetsR...)
	return out
}

type ActionKind string

const (
	ActionHold        ActionKind = "HOLD"
	ActionPartialExit ActionKind = "PARTIAL_EXIT"
	ActionFullExit    ActionKind = "FULL_EXIT"
)

const (
	ReasonLoserKill = "loser kill"
	ReasonStopHit   = "stop hit"
	ReasonTimeStop  = "time stop"
	ReasonPartial   = "partial target"
)

// PositionAction records one PositionManager decision.
type PositionAction struct {
	PositionID string     `json:"position_id"`
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	Kind       ActionKind `json:"kind"`
	Quantity   int64      `json:"quantity"` // shares to sell/cover, 0 for HOLD
	Remaining  int64      `json:"remaining"`
	Price      float64    `json:"price"`
	R          float64    `json:"r"`
	StopPrice  float64    `json:"stop_price"`
	Reason     string     `json:"reason,omitempty"`
	At         time.Time  `json:"at"`
}

func (a PositionAction) IsExit() bool {
	return a.Kind == ActionPartialExit || a.Kind == ActionFullExit
}
