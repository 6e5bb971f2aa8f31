package usecase

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/opening_playbook/internal/domain"
)

func decFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func decToFloat(v decimal.Decimal) float64 {
	f, _ := v.Float64()
	return f
}

// rMultiple is the signed PnL of pos at price, in units of its R-value.
func rMultiple(pos *domain.Position, price float64) decimal.Decimal {
	move := decFromFloat(price).Sub(decFromFloat(pos.EntryPrice))
	if pos.Side == domain.SideSell {
		move = move.Neg()
	}
	return move.Div(decFromFloat(pos.RValue))
}

// stopCrossed reports whether price is through the stop on the losing side.
func stopCrossed(side domain.Side, price, stop float64) bool {
	cmp := decFromFloat(price).Cmp(decFromFloat(stop))
	if side == domain.SideSell {
		return cmp >= 0
	}
	return cmp <= 0
}

// PositionManager drives one position per call through its exit rules. It keeps
// no state of its own; the caller serializes ticks per position.
type PositionManager struct{}

func NewPositionManager() *PositionManager {
	return &PositionManager{}
}

// OnTick evaluates pos at price and mutates it in place. Rules, first match wins:
// loser kill, stop hit, time stop, next partial target, hold.
func (m *PositionManager) OnTick(pos *domain.Position, price float64, now time.Time) domain.PositionAction {
	checkInvariants(pos)
	if math.IsNaN(price) || math.IsInf(price, 0) {
		panic(fmt.Sprintf("position %s: non-finite price %v", pos.ID, price))
	}

	r := rMultiple(pos, price)
	action := domain.PositionAction{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Kind:       domain.ActionHold,
		Price:      price,
		R:          decToFloat(r),
		At:         now.UTC(),
	}
	fullExit := func(reason string) domain.PositionAction {
		action.Kind = domain.ActionFullExit
		action.Quantity = pos.Quantity
		action.Reason = reason
		pos.Quantity = 0
		action.Remaining = 0
		action.StopPrice = pos.StopPrice
		return action
	}

	if r.Cmp(decFromFloat(pos.LoserKillR)) <= 0 {
		return fullExit(domain.ReasonLoserKill)
	}
	if stopCrossed(pos.Side, price, pos.StopPrice) {
		return fullExit(domain.ReasonStopHit)
	}
	if pos.TimeStopSeconds > 0 && now.Sub(pos.EntryTime) >= time.Duration(pos.TimeStopSeconds)*time.Second {
		return fullExit(domain.ReasonTimeStop)
	}

	if pos.TakenPartials < len(pos.PartialTargetsR) && pos.Quantity > 1 {
		target := decFromFloat(pos.PartialTargetsR[pos.TakenPartials])
		if r.Cmp(target) >= 0 {
			sell := pos.Quantity / 2
			if sell < 1 {
				sell = 1
			}
			pos.Quantity -= sell
			pos.TakenPartials++
			if pos.MoveToBreakeven && !pos.BreakevenMoved {
				pos.StopPrice = pos.EntryPrice
				pos.BreakevenMoved = true
			}
			action.Kind = domain.ActionPartialExit
			action.Quantity = sell
			action.Reason = fmt.Sprintf("%s %d at %sR", domain.ReasonPartial, pos.TakenPartials, target.String())
		}
	}

	action.Remaining = pos.Quantity
	action.StopPrice = pos.StopPrice
	return action
}

// checkInvariants panics on states that only a programming error can produce.
func checkInvariants(pos *domain.Position) {
	if pos == nil {
		panic("position manager: nil position")
	}
	if !(pos.RValue > 0) {
		panic(fmt.Sprintf("position %s: R-value %v must be > 0", pos.ID, pos.RValue))
	}
	if pos.TakenPartials < 0 || pos.TakenPartials > len(pos.PartialTargetsR) {
		panic(fmt.Sprintf("position %s: %d partials taken of %d targets", pos.ID, pos.TakenPartials, len(pos.PartialTargetsR)))
	}
	if pos.Quantity < 0 {
		panic(fmt.Sprintf("position %s: negative quantity %d", pos.ID, pos.Quantity))
	}
}
