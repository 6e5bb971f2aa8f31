package domain

import "time"

type OrderType string

const (
	OrderMarket    OrderType = "MARKET"
	OrderLimit     OrderType = "LIMIT"
	OrderStop      OrderType = "STOP"
	OrderStopLimit OrderType = "STOP_LIMIT"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderMarket, OrderLimit, OrderStop, OrderStopLimit:
		return true
	}
	return false
}

// IsStop reports whether the order is triggered by a stop price.
func (t OrderType) IsStop() bool {
	return t == OrderStop || t == OrderStopLimit
}

// OrderRequest is what the core hands to the broker collaborator.
type OrderRequest struct {
	Symbol     string            `json:"symbol"`
	Side       Side              `json:"side"`
	Quantity   int64             `json:"quantity"`
	Type       OrderType         `json:"type"`
	LimitPrice float64           `json:"limit_price,omitempty"`
	Plan       *TradePlan        `json:"plan,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type FillStatus string

const (
	FillFilled   FillStatus = "FILLED"
	FillPartial  FillStatus = "PARTIAL"
	FillRejected FillStatus = "REJECTED"
)

// Fill is the broker's answer to an OrderRequest.
type Fill struct {
	OrderID  string        `json:"order_id"`
	Symbol   string        `json:"symbol"`
	Side     Side          `json:"side"`
	Status   FillStatus    `json:"status"`
	Quantity int64         `json:"quantity"`
	Price    float64       `json:"price"`
	Latency  time.Duration `json:"latency"`
	FilledAt time.Time     `json:"filled_at"`
}

func (f Fill) Filled() bool {
	return (f.Status == FillFilled || f.Status == FillPartial) && f.Quantity > 0 && f.Price > 0
}
