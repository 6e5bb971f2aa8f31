package usecase

import (
	"fmt"
	"time"

	"github.com/vitos/opening_playbook/internal/config"
	"github.com/vitos/opening_playbook/internal/domain"
)

// ExecutionRules answers whether an order type may be sent right now. It holds
// only parsed configuration and is safe for concurrent use.
type ExecutionRules struct {
	loc          *time.Location
	open         time.Duration
	close        time.Duration
	cooldown     time.Duration
	stopCutoff   time.Duration
	minADV       float64
	minDepth     float64
	maxSpreadBps float64
}

func NewExecutionRules(cfg config.SessionConfig) (*ExecutionRules, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", domain.ErrConfig, cfg.Timezone, err)
	}
	open, err := config.ParseClock(cfg.MarketOpen)
	if err != nil {
		return nil, fmt.Errorf("%w: market_open: %v", domain.ErrConfig, err)
	}
	closeAt, err := config.ParseClock(cfg.MarketClose)
	if err != nil {
		return nil, fmt.Errorf("%w: market_close: %v", domain.ErrConfig, err)
	}
	if closeAt <= open {
		return nil, fmt.Errorf("%w: market_close must be after market_open", domain.ErrConfig)
	}
	return &ExecutionRules{
		loc:          loc,
		open:         open,
		close:        closeAt,
		cooldown:     time.Duration(cfg.OpenCooldownMinutes) * time.Minute,
		stopCutoff:   time.Duration(cfg.StopCutoffMinutes) * time.Minute,
		minADV:       cfg.MinAvgDailyVolume,
		minDepth:     cfg.MinTopOfBookSize,
		maxSpreadBps: cfg.MaxMarketSpreadBps,
	}, nil
}

func (r *ExecutionRules) IsTradeAllowed(snap domain.MarketSnapshot, orderType domain.OrderType) bool {
	ok, _ := r.Check(snap, orderType)
	return ok
}

// Check evaluates the rules in order and returns the reason of the first one
// that rejects the order.
func (r *ExecutionRules) Check(snap domain.MarketSnapshot, orderType domain.OrderType) (bool, string) {
	sinceMidnight := r.clock(snap.Timestamp)

	// 1. Session window [open, close)
	if sinceMidnight < r.open || sinceMidnight >= r.close {
		return false, "outside market session"
	}
	// 2. Open auction cooldown
	if sinceMidnight < r.open+r.cooldown {
		return false, fmt.Sprintf("within %s open cooldown", r.cooldown)
	}
	// 3. No stops into the close
	if orderType.IsStop() && sinceMidnight >= r.close-r.stopCutoff {
		return false, fmt.Sprintf("stop orders blocked in the last %s", r.stopCutoff)
	}
	// 4. Liquidity
	if snap.AvgDailyVolume < r.minADV {
		return false, fmt.Sprintf("average daily volume %.0f below %.0f", snap.AvgDailyVolume, r.minADV)
	}
	if snap.TopOfBookSize < r.minDepth {
		return false, fmt.Sprintf("top of book size %.0f below %.0f", snap.TopOfBookSize, r.minDepth)
	}
	// 5. Wide markets must be worked passively
	if orderType == domain.OrderMarket && snap.SpreadBps() > r.maxSpreadBps {
		return false, fmt.Sprintf("spread %.1f bps above %.1f bps for market order", snap.SpreadBps(), r.maxSpreadBps)
	}
	return true, ""
}

// clock returns the exchange-local wall-clock time of day of ts.
func (r *ExecutionRules) clock(ts time.Time) time.Duration {
	local := ts.In(r.loc)
	return time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
}

// SessionBounds returns the open and close instants of the session on the
// exchange-local date of day.
func (r *ExecutionRules) SessionBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.In(r.loc).Date()
	at := func(off time.Duration) time.Time {
		return time.Date(y, m, d, int(off/time.Hour), int(off%time.Hour/time.Minute), 0, 0, r.loc)
	}
	return at(r.open), at(r.close)
}
