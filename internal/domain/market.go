package domain

import "time"

// MarketSnapshot is the point-in-time market state for one symbol during the session.
type MarketSnapshot struct {
	Symbol          string    `json:"symbol"`
	Timestamp       time.Time `json:"timestamp"`
	Bid             float64   `json:"bid"`
	Ask             float64   `json:"ask"`
	Last            float64   `json:"last"`
	AvgDailyVolume  float64   `json:"avg_daily_volume"`
	TopOfBookSize   float64   `json:"top_of_book_size"`
	VolatilityScore float64   `json:"volatility_score"`
	FillProbability float64   `json:"fill_probability"`
	ImpactCostBps   float64   `json:"impact_cost_bps"`
}

func (s MarketSnapshot) Mid() float64 {
	return (s.Bid + s.Ask) / 2
}

func (s MarketSnapshot) Spread() float64 {
	return s.Ask - s.Bid
}

// SpreadBps returns the quoted spread in basis points of mid, 0 when mid is not positive.
func (s MarketSnapshot) SpreadBps() float64 {
	mid := s.Mid()
	if mid <= 0 {
		return 0
	}
	return s.Spread() / mid * 10_000
}

// PremarketSnapshot is the pre-open state of one symbol, one per session.
type PremarketSnapshot struct {
	Symbol          string  `json:"symbol"`
	PrevClose       float64 `json:"prev_close"`
	PremarketPrice  float64 `json:"premarket_price"`
	PremarketVolume float64 `json:"premarket_volume"`
	Bid             float64 `json:"bid"`
	Ask             float64 `json:"ask"`
	AvgDailyVolume  float64 `json:"avg_daily_volume"`
	LastPrice       float64 `json:"last_price"`
	HasCatalyst     bool    `json:"has_catalyst"`
}

// GapPct is the premarket gap as a fraction of the previous close (0.02 = 2%).
func (s PremarketSnapshot) GapPct() float64 {
	if s.PrevClose <= 0 {
		return 0
	}
	return (s.PremarketPrice - s.PrevClose) / s.PrevClose
}

// SpreadPct is the quoted spread as a fraction of mid. A non-positive mid is
// reported as 1.0 so that any spread filter rejects it.
func (s PremarketSnapshot) SpreadPct() float64 {
	mid := (s.Bid + s.Ask) / 2
	if mid <= 0 {
		return 1.0
	}
	return (s.Ask - s.Bid) / mid
}

// ReferencePrice is the price the minimum-price filter is applied to.
func (s PremarketSnapshot) ReferencePrice() float64 {
	if s.PremarketPrice > 0 {
		return s.PremarketPrice
	}
	return s.LastPrice
}
