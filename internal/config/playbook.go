package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/vitos/opening_playbook/internal/domain"
)

// Playbook is the opening playbook: the day's universe plus every threshold the
// planner, the execution rules and the guardrail gate read.
type Playbook struct {
	Universe           []string         `mapstructure:"universe"`
	FetchConcurrency   int              `mapstructure:"fetch_concurrency"`
	Filters            FilterConfig     `mapstructure:"filters"`
	States             StateConfig      `mapstructure:"states"`
	Risk               RiskConfig       `mapstructure:"risk"`
	Execution          ExecutionConfig  `mapstructure:"execution"`
	PositionManagement ManagementConfig `mapstructure:"position_management"`
	Session            SessionConfig    `mapstructure:"session"`
	Guardrails         GuardrailConfig  `mapstructure:"guardrails"`
}

// FilterConfig holds the tradability filters. Percentages are fractions.
type FilterConfig struct {
	MinPrice           float64 `mapstructure:"min_price"`
	MinAvgDailyVolume  float64 `mapstructure:"min_adv"`
	MinGapPct          float64 `mapstructure:"min_gap_pct"`
	MinPremarketVolume float64 `mapstructure:"min_premarket_volume"`
	MaxSpreadPct       float64 `mapstructure:"max_spread_pct"`
	RequireCatalyst    bool    `mapstructure:"require_catalyst"`
}

type StateConfig struct {
	FadeGapPct float64 `mapstructure:"fade_gap_pct"`
}

type RiskConfig struct {
	MaxQuantity     int64   `mapstructure:"max_quantity"`
	MaxSlippageBps  float64 `mapstructure:"max_slippage_bps"`
	StopDistancePct float64 `mapstructure:"stop_distance_pct"`
}

type ExecutionConfig struct {
	KillAfterSeconds    int     `mapstructure:"kill_after_seconds"`
	OpeningRangeSeconds int     `mapstructure:"opening_range_seconds"`
	MinRelativeVolume   float64 `mapstructure:"min_relative_volume"`
	MaxSpreadPct        float64 `mapstructure:"max_spread_pct"`
}

type ManagementConfig struct {
	PartialTargetsR []float64 `mapstructure:"partial_targets_r"`
	TimeStopSeconds int       `mapstructure:"time_stop_seconds"`
	LoserKillR      float64   `mapstructure:"loser_kill_r"`
	MoveToBreakeven bool      `mapstructure:"move_to_breakeven"`
}

// SessionConfig drives the order-level execution rules.
type SessionConfig struct {
	Timezone            string  `mapstructure:"timezone"`
	MarketOpen          string  `mapstructure:"market_open"`
	MarketClose         string  `mapstructure:"market_close"`
	OpenCooldownMinutes int     `mapstructure:"open_cooldown_minutes"`
	StopCutoffMinutes   int     `mapstructure:"stop_cutoff_minutes"`
	MinAvgDailyVolume   float64 `mapstructure:"min_adv"`
	MinTopOfBookSize    float64 `mapstructure:"min_top_of_book_size"`
	MaxMarketSpreadBps  float64 `mapstructure:"max_market_spread_bps"`
}

// Rung is one breakpoint of a guardrail ladder.
type Rung struct {
	Threshold  float64          `mapstructure:"threshold"`
	Level      domain.RiskLevel `mapstructure:"level"`
	Multiplier float64          `mapstructure:"multiplier"`
}

// GuardrailConfig holds one ladder per metric, ordered from mildest to most severe.
type GuardrailConfig struct {
	DayPnL    []Rung `mapstructure:"day_pnl"`
	VaR95     []Rung `mapstructure:"var_95"`
	AnnualVol []Rung `mapstructure:"annual_vol"`
	Drawdown  []Rung `mapstructure:"drawdown"`
}

// requiredKeys are the risk-bearing settings that must be present in the file.
// They are never defaulted.
var requiredKeys = []string{
	"universe",
	"filters.min_price",
	"filters.min_adv",
	"filters.min_gap_pct",
	"filters.min_premarket_volume",
	"filters.max_spread_pct",
	"states.fade_gap_pct",
	"risk.max_quantity",
	"risk.max_slippage_bps",
	"risk.stop_distance_pct",
	"execution.kill_after_seconds",
	"execution.opening_range_seconds",
	"execution.min_relative_volume",
	"execution.max_spread_pct",
	"position_management.partial_targets_r",
	"position_management.time_stop_seconds",
	"position_management.loser_kill_r",
	"position_management.move_to_breakeven",
}

// LoadPlaybook reads and validates a playbook file. Any missing or invalid key is
// reported as a domain.ErrConfig.
func LoadPlaybook(path string) (*Playbook, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: playbook path cannot be empty", domain.ErrConfig)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading playbook %s: %v", domain.ErrConfig, path, err)
	}
	return decodePlaybook(v)
}

func decodePlaybook(v *viper.Viper) (*Playbook, error) {
	var missing []string
	for _, key := range requiredKeys {
		if !v.IsSet(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing keys: %s", domain.ErrConfig, strings.Join(missing, ", "))
	}

	setSessionDefaults(v)
	var pb Playbook
	if err := v.Unmarshal(&pb, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("%w: parsing playbook: %v", domain.ErrConfig, err)
	}
	pb.applyDefaults()
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	return &pb, nil
}

// PlaybookWatcher reloads the playbook when the file changes. A reload that fails
// validation is reported and the previous playbook stays current.
type PlaybookWatcher struct {
	v       *viper.Viper
	mu      sync.RWMutex
	current *Playbook
}

func WatchPlaybook(path string, onChange func(*Playbook), onError func(error)) (*PlaybookWatcher, error) {
	pb, err := LoadPlaybook(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading playbook %s: %v", domain.ErrConfig, path, err)
	}
	w := &PlaybookWatcher{v: v, current: pb}
	v.OnConfigChange(func(evt fsnotify.Event) {
		next, err := decodePlaybook(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", evt.Name, err))
			}
			return
		}
		w.mu.Lock()
		w.current = next
		w.mu.Unlock()
		if onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()
	return w, nil
}

// Current returns the latest valid playbook.
func (w *PlaybookWatcher) Current() *Playbook {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
