package broker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/opening_playbook/internal/domain"
	"github.com/vitos/opening_playbook/internal/infrastructure/broker"
	"go.uber.org/zap"
)

type MockQuotes struct {
	Snap domain.MarketSnapshot
	Err  error
}

func (m *MockQuotes) Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	return m.Snap, m.Err
}

func TestPaperBroker_Execute(t *testing.T) {
	quotes := &MockQuotes{Snap: domain.MarketSnapshot{Symbol: "AAPL", Bid: 99.9, Ask: 100.1, Last: 100}}
	b := broker.NewPaperBroker(quotes, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name   string
		req    domain.OrderRequest
		status domain.FillStatus
		price  float64
	}{
		{"market buy lifts the ask", domain.OrderRequest{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 10, Type: domain.OrderMarket}, domain.FillFilled, 100.1},
		{"market sell hits the bid", domain.OrderRequest{Symbol: "AAPL", Side: domain.SideSell, Quantity: 10, Type: domain.OrderMarket}, domain.FillFilled, 99.9},
		{"limit fills at limit", domain.OrderRequest{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 10, Type: domain.OrderLimit, LimitPrice: 100.05}, domain.FillFilled, 100.05},
		{"stop fills at trigger", domain.OrderRequest{Symbol: "AAPL", Side: domain.SideSell, Quantity: 10, Type: domain.OrderStop, LimitPrice: 99.5}, domain.FillFilled, 99.5},
		{"zero quantity", domain.OrderRequest{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 0, Type: domain.OrderMarket}, domain.FillRejected, 0},
		{"unknown side", domain.OrderRequest{Symbol: "AAPL", Side: "HOLD", Quantity: 1, Type: domain.OrderMarket}, domain.FillRejected, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fill, err := b.Execute(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, fill.Status)
			assert.Equal(t, tt.price, fill.Price)
			assert.NotEmpty(t, fill.OrderID)
			if tt.status == domain.FillFilled {
				assert.True(t, fill.Filled())
				assert.Equal(t, tt.req.Quantity, fill.Quantity)
			}
		})
	}
	assert.Len(t, b.Fills(), 4)
}

func TestPaperBroker_QuoteUnavailable(t *testing.T) {
	b := broker.NewPaperBroker(&MockQuotes{Err: domain.ErrDataUnavailable}, zap.NewNop())

	_, err := b.Execute(context.Background(), domain.OrderRequest{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 1, Type: domain.OrderMarket})
	assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
	assert.Empty(t, b.Fills())
}
