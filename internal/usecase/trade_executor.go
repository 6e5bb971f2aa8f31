package usecase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vitos/opening_playbook/internal/domain"
)

type TradeExecutor struct {
	broker domain.Broker
}

func NewTradeExecutor(broker domain.Broker) *TradeExecutor {
	return &TradeExecutor{
		broker: broker,
	}
}

// Enter sends the entry order for plan. Broker failures are returned unchanged.
func (e *TradeExecutor) Enter(ctx context.Context, plan domain.TradePlan, qty int64, orderType domain.OrderType, limitPrice float64) (domain.Fill, error) {
	if !plan.Side.Valid() {
		return domain.Fill{}, fmt.Errorf("invalid side: %s", plan.Side)
	}
	p := plan.Clone()
	return e.execute(ctx, domain.OrderRequest{
		Symbol:     plan.Symbol,
		Side:       plan.Side,
		Quantity:   qty,
		Type:       orderType,
		LimitPrice: limitPrice,
		Plan:       &p,
		Metadata: map[string]string{
			"intent":             "entry",
			"state":              plan.State.String(),
			"kill_after_seconds": strconv.Itoa(plan.KillAfterSeconds),
			"max_slippage_bps":   strconv.FormatFloat(plan.MaxSlippageBps, 'f', -1, 64),
		},
	})
}

// Exit closes qty shares of a position with a market order.
func (e *TradeExecutor) Exit(ctx context.Context, action domain.PositionAction) (domain.Fill, error) {
	if !action.IsExit() || action.Quantity <= 0 {
		return domain.Fill{}, fmt.Errorf("action %s for %s carries nothing to exit", action.Kind, action.PositionID)
	}
	return e.execute(ctx, domain.OrderRequest{
		Symbol:   action.Symbol,
		Side:     action.Side.Opposite(),
		Quantity: action.Quantity,
		Type:     domain.OrderMarket,
		Metadata: map[string]string{
			"intent":      "exit",
			"position_id": action.PositionID,
			"kind":        string(action.Kind),
			"reason":      action.Reason,
		},
	})
}

func (e *TradeExecutor) execute(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	if req.Quantity <= 0 {
		return domain.Fill{}, fmt.Errorf("invalid quantity: %d", req.Quantity)
	}
	fill, err := e.broker.Execute(ctx, req)
	if err != nil {
		return domain.Fill{}, err
	}
	if fill.Status == domain.FillRejected {
		return fill, fmt.Errorf("%w: %s %s %d", domain.ErrOrderRejected, req.Side, req.Symbol, req.Quantity)
	}
	return fill, nil
}
