package domain

import "context"

// MarketData supplies snapshots. Both calls fail with ErrDataUnavailable when the
// provider has nothing usable for the symbol.
type MarketData interface {
	Snapshot(ctx context.Context, symbol string) (MarketSnapshot, error)
	Premarket(ctx context.Context, symbol string) (PremarketSnapshot, error)
}

// Broker accepts orders. The core never retries a failed Execute.
type Broker interface {
	Execute(ctx context.Context, req OrderRequest) (Fill, error)
}

// AuditRepository persists the structured records the pipeline emits.
type AuditRepository interface {
	SaveTradePlan(ctx context.Context, plan TradePlan) error
	ListTradePlans(ctx context.Context, sessionDate string) ([]TradePlan, error)

	SaveGuardrailDecision(ctx context.Context, state GuardrailState, decision GuardrailDecision) error
	ListGuardrailDecisions(ctx context.Context, limit int) ([]GuardrailDecision, error)

	SavePositionAction(ctx context.Context, action PositionAction) error
	ListPositionActions(ctx context.Context, limit int) ([]PositionAction, error)
}
