package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vitos/opening_playbook/internal/config"
	"github.com/vitos/opening_playbook/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SkippedSymbol explains why a universe symbol produced no plan.
type SkippedSymbol struct {
	Symbol  string   `json:"symbol"`
	Reasons []string `json:"reasons"`
}

// PlanReport is the outcome of one pre-open planning run.
type PlanReport struct {
	SessionDate string             `json:"session_date"`
	Plans       []domain.TradePlan `json:"plans"`
	Skipped     []SkippedSymbol    `json:"skipped"`
}

type PremarketPlanner struct {
	data    domain.MarketData
	logger  *zap.Logger
	timeNow func() time.Time
}

func NewPremarketPlanner(data domain.MarketData, logger *zap.Logger) *PremarketPlanner {
	return &PremarketPlanner{
		data:    data,
		logger:  logger,
		timeNow: time.Now,
	}
}

// IsTradableToday is the AND of every tradability filter.
func (p *PremarketPlanner) IsTradableToday(cfg *config.Playbook, snap domain.PremarketSnapshot) bool {
	return len(p.Rejections(cfg, snap)) == 0
}

// Rejections lists every filter the snapshot fails. The filters are independent.
func (p *PremarketPlanner) Rejections(cfg *config.Playbook, snap domain.PremarketSnapshot) []string {
	f := cfg.Filters
	var out []string
	if price := snap.ReferencePrice(); price < f.MinPrice {
		out = append(out, fmt.Sprintf("price %.2f below %.2f", price, f.MinPrice))
	}
	if snap.AvgDailyVolume < f.MinAvgDailyVolume {
		out = append(out, fmt.Sprintf("average daily volume %.0f below %.0f", snap.AvgDailyVolume, f.MinAvgDailyVolume))
	}
	if gap := math.Abs(snap.GapPct()); gap < f.MinGapPct {
		out = append(out, fmt.Sprintf("gap %.2f%% below %.2f%%", gap*100, f.MinGapPct*100))
	}
	if snap.PremarketVolume < f.MinPremarketVolume {
		out = append(out, fmt.Sprintf("premarket volume %.0f below %.0f", snap.PremarketVolume, f.MinPremarketVolume))
	}
	if spread := snap.SpreadPct(); spread > f.MaxSpreadPct {
		out = append(out, fmt.Sprintf("spread %.2f%% above %.2f%%", spread*100, f.MaxSpreadPct*100))
	}
	if f.RequireCatalyst && !snap.HasCatalyst {
		out = append(out, "no catalyst")
	}
	return out
}

// ClassifyState never yields StateNoTrade today; the value is kept for manual
// overrides and future filters.
func (p *PremarketPlanner) ClassifyState(cfg *config.Playbook, snap domain.PremarketSnapshot) domain.PlanState {
	if math.Abs(snap.GapPct()) >= cfg.States.FadeGapPct {
		return domain.StateFade
	}
	return domain.StateContinuation
}

// DecideSide follows the gap for continuation and leans against it for a fade.
func (p *PremarketPlanner) DecideSide(state domain.PlanState, snap domain.PremarketSnapshot) domain.Side {
	gapUp := snap.GapPct() >= 0
	switch state {
	case domain.StateContinuation:
		if gapUp {
			return domain.SideBuy
		}
		return domain.SideSell
	case domain.StateFade:
		if gapUp {
			return domain.SideSell
		}
		return domain.SideBuy
	case domain.StateNoTrade:
		// side is unused for NO_TRADE
		return domain.SideBuy
	}
	panic(fmt.Sprintf("unknown plan state %q", state))
}

// BuildTradePlan copies the playbook blocks verbatim next to the computed state and side.
func (p *PremarketPlanner) BuildTradePlan(cfg *config.Playbook, snap domain.PremarketSnapshot) domain.TradePlan {
	state := p.ClassifyState(cfg, snap)
	return domain.TradePlan{
		Symbol:              snap.Symbol,
		SessionDate:         p.sessionDate(),
		State:               state,
		Side:                p.DecideSide(state, snap),
		MaxQuantity:         cfg.Risk.MaxQuantity,
		MaxSlippageBps:      cfg.Risk.MaxSlippageBps,
		StopDistancePct:     cfg.Risk.StopDistancePct,
		KillAfterSeconds:    cfg.Execution.KillAfterSeconds,
		OpeningRangeSeconds: cfg.Execution.OpeningRangeSeconds,
		MinRelativeVolume:   cfg.Execution.MinRelativeVolume,
		MaxSpreadPct:        cfg.Execution.MaxSpreadPct,
		PartialTargetsR:     append([]float64(nil), cfg.PositionManagement.PartialTargetsR...),
		TimeStopSeconds:     cfg.PositionManagement.TimeStopSeconds,
		LoserKillR:          cfg.PositionManagement.LoserKillR,
		MoveToBreakeven:     cfg.PositionManagement.MoveToBreakeven,
	}
}

// PreopenPlan returns the plans for the tradable part of the universe, in universe order.
func (p *PremarketPlanner) PreopenPlan(ctx context.Context, cfg *config.Playbook) ([]domain.TradePlan, error) {
	report, err := p.Plan(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return report.Plans, nil
}

type premarketResult struct {
	snap domain.PremarketSnapshot
	err  error
}

// Plan runs the pre-open pipeline and also reports every skipped symbol. A data
// error for one symbol skips that symbol only; a cancelled context aborts the run.
func (p *PremarketPlanner) Plan(ctx context.Context, cfg *config.Playbook) (PlanReport, error) {
	report := PlanReport{SessionDate: p.sessionDate(), Plans: []domain.TradePlan{}}
	results := make([]premarketResult, len(cfg.Universe))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.FetchConcurrency, 1))
	for i, sym := range cfg.Universe {
		g.Go(func() error {
			snap, err := p.data.Premarket(gctx, sym)
			if err == nil && snap.Symbol == "" {
				snap.Symbol = sym
			}
			results[i] = premarketResult{snap: snap, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return PlanReport{}, err
	}

	for i, sym := range cfg.Universe {
		res := results[i]
		if res.err != nil {
			if !errors.Is(res.err, domain.ErrDataUnavailable) {
				res.err = fmt.Errorf("%w: %v", domain.ErrDataUnavailable, res.err)
			}
			p.logger.Warn("Skipping symbol, premarket data unavailable", zap.String("symbol", sym), zap.Error(res.err))
			report.Skipped = append(report.Skipped, SkippedSymbol{Symbol: sym, Reasons: []string{res.err.Error()}})
			continue
		}
		if reasons := p.Rejections(cfg, res.snap); len(reasons) > 0 {
			p.logger.Info("Symbol not tradable today", zap.String("symbol", sym), zap.Strings("reasons", reasons))
			report.Skipped = append(report.Skipped, SkippedSymbol{Symbol: sym, Reasons: reasons})
			continue
		}
		plan := p.BuildTradePlan(cfg, res.snap)
		if plan.State == domain.StateNoTrade {
			report.Skipped = append(report.Skipped, SkippedSymbol{Symbol: sym, Reasons: []string{"state NO_TRADE"}})
			continue
		}
		p.logger.Info("Trade plan built",
			zap.String("symbol", sym),
			zap.String("state", plan.State.String()),
			zap.String("side", plan.Side.String()),
			zap.Float64("gap_pct", res.snap.GapPct()))
		report.Plans = append(report.Plans, plan)
	}
	return report, nil
}

func (p *PremarketPlanner) sessionDate() string {
	return p.timeNow().UTC().Format("2006-01-02")
}
