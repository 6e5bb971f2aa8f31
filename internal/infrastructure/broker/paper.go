package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/opening_playbook/internal/domain"
	"go.uber.org/zap"
)

// QuoteSource supplies the quote a market order fills against.
type QuoteSource interface {
	Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error)
}

// PaperBroker fills orders locally. MARKET orders take the touch on the far
// side; priced orders fill at their limit or trigger.
type PaperBroker struct {
	quotes QuoteSource
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	fills []domain.Fill
}

func NewPaperBroker(quotes QuoteSource, logger *zap.Logger) *PaperBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperBroker{
		quotes: quotes,
		logger: logger,
		now:    time.Now,
	}
}

func (b *PaperBroker) Execute(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	start := b.now()
	fill := domain.Fill{
		OrderID: uuid.NewString(),
		Symbol:  req.Symbol,
		Side:    req.Side,
	}
	if !req.Side.Valid() || req.Quantity <= 0 || !req.Type.Valid() {
		fill.Status = domain.FillRejected
		b.logger.Warn("Paper order rejected",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.Int64("quantity", req.Quantity),
			zap.String("type", string(req.Type)))
		return fill, nil
	}

	price := req.LimitPrice
	if req.Type == domain.OrderMarket || price <= 0 {
		snap, err := b.quotes.Snapshot(ctx, req.Symbol)
		if err != nil {
			return domain.Fill{}, fmt.Errorf("paper fill %s: %w", req.Symbol, err)
		}
		price = snap.Ask
		if req.Side == domain.SideSell {
			price = snap.Bid
		}
		if price <= 0 {
			price = snap.Last
		}
	}
	if price <= 0 {
		fill.Status = domain.FillRejected
		return fill, nil
	}

	fill.Status = domain.FillFilled
	fill.Quantity = req.Quantity
	fill.Price = price
	fill.FilledAt = b.now().UTC()
	fill.Latency = fill.FilledAt.Sub(start)

	b.mu.Lock()
	b.fills = append(b.fills, fill)
	b.mu.Unlock()

	b.logger.Info("Paper fill",
		zap.String("order_id", fill.OrderID),
		zap.String("symbol", fill.Symbol),
		zap.String("side", fill.Side.String()),
		zap.Int64("quantity", fill.Quantity),
		zap.Float64("price", fill.Price),
		zap.String("intent", req.Metadata["intent"]))
	return fill, nil
}

// Fills returns every fill so far, oldest first.
func (b *PaperBroker) Fills() []domain.Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Fill(nil), b.fills...)
}
