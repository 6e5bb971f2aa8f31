package config

import (
	"strings"

	"github.com/spf13/viper"
	"github.com/vitos/opening_playbook/internal/domain"
)

const defaultFetchConcurrency = 4

// DefaultSession is the US equities regular session.
func DefaultSession() SessionConfig {
	return SessionConfig{
		Timezone:            "America/New_York",
		MarketOpen:          "09:30",
		MarketClose:         "16:00",
		OpenCooldownMinutes: 5,
		StopCutoffMinutes:   15,
		MinAvgDailyVolume:   500_000,
		MinTopOfBookSize:    100,
		MaxMarketSpreadBps:  25,
	}
}

func DefaultGuardrails() GuardrailConfig {
	return GuardrailConfig{
		DayPnL: []Rung{
			{Threshold: -1.0, Level: domain.RiskApproach, Multiplier: 0.5},
			{Threshold: -2.0, Level: domain.RiskRestrict, Multiplier: 0},
			{Threshold: -3.0, Level: domain.RiskHalt, Multiplier: 0},
		},
		VaR95: []Rung{
			{Threshold: 2.0, Level: domain.RiskApproach, Multiplier: 0.75},
			{Threshold: 3.0, Level: domain.RiskHalt, Multiplier: 0},
		},
		AnnualVol: []Rung{
			{Threshold: 25, Level: domain.RiskApproach, Multiplier: 0.75},
			{Threshold: 35, Level: domain.RiskRestrict, Multiplier: 0},
			{Threshold: 50, Level: domain.RiskHalt, Multiplier: 0},
		},
		Drawdown: []Rung{
			{Threshold: 5, Level: domain.RiskApproach, Multiplier: 0.75},
			{Threshold: 10, Level: domain.RiskApproach, Multiplier: 0.5},
			{Threshold: 15, Level: domain.RiskRestrict, Multiplier: 0},
			{Threshold: 20, Level: domain.RiskHalt, Multiplier: 0},
		},
	}
}

// setSessionDefaults registers the session block with viper so a key the file
// sets, zero included, always wins over the default.
func setSessionDefaults(v *viper.Viper) {
	def := DefaultSession()
	v.SetDefault("session.timezone", def.Timezone)
	v.SetDefault("session.market_open", def.MarketOpen)
	v.SetDefault("session.market_close", def.MarketClose)
	v.SetDefault("session.open_cooldown_minutes", def.OpenCooldownMinutes)
	v.SetDefault("session.stop_cutoff_minutes", def.StopCutoffMinutes)
	v.SetDefault("session.min_adv", def.MinAvgDailyVolume)
	v.SetDefault("session.min_top_of_book_size", def.MinTopOfBookSize)
	v.SetDefault("session.max_market_spread_bps", def.MaxMarketSpreadBps)
}

// applyDefaults fills the optional blocks. Risk numbers are never defaulted here.
func (p *Playbook) applyDefaults() {
	if p.FetchConcurrency <= 0 {
		p.FetchConcurrency = defaultFetchConcurrency
	}
	for i, sym := range p.Universe {
		p.Universe[i] = strings.ToUpper(strings.TrimSpace(sym))
	}

	g := DefaultGuardrails()
	if len(p.Guardrails.DayPnL) == 0 {
		p.Guardrails.DayPnL = g.DayPnL
	}
	if len(p.Guardrails.VaR95) == 0 {
		p.Guardrails.VaR95 = g.VaR95
	}
	if len(p.Guardrails.AnnualVol) == 0 {
		p.Guardrails.AnnualVol = g.AnnualVol
	}
	if len(p.Guardrails.Drawdown) == 0 {
		p.Guardrails.Drawdown = g.Drawdown
	}
}
