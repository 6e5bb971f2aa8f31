package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/opening_playbook/internal/domain"
)

// SQLiteStore is the audit trail: the day's plans, every guardrail decision and
// every non-HOLD position action.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trade_plans (
			session_date TEXT NOT NULL,
			symbol TEXT NOT NULL,
			state TEXT NOT NULL,
			side TEXT NOT NULL,
			max_quantity INTEGER NOT NULL,
			max_slippage_bps REAL NOT NULL,
			stop_distance_pct REAL NOT NULL,
			kill_after_seconds INTEGER NOT NULL,
			opening_range_seconds INTEGER NOT NULL,
			min_relative_volume REAL NOT NULL,
			max_spread_pct REAL NOT NULL,
			partial_targets_r TEXT NOT NULL,
			time_stop_seconds INTEGER NOT NULL,
			loser_kill_r REAL NOT NULL,
			move_to_breakeven BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (session_date, symbol)
		);`,
		`CREATE TABLE IF NOT EXISTS guardrail_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level TEXT NOT NULL,
			allowed_new_entries BOOLEAN NOT NULL,
			risk_multiplier REAL NOT NULL,
			reasons TEXT NOT NULL,
			actions TEXT NOT NULL,
			day_pnl_pct REAL NOT NULL,
			var_95_pct REAL NOT NULL,
			annual_vol_pct REAL NOT NULL,
			drawdown_pct REAL NOT NULL,
			evaluated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS position_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			position_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			kind TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			remaining INTEGER NOT NULL,
			price REAL NOT NULL,
			r_multiple REAL NOT NULL,
			stop_price REAL NOT NULL,
			reason TEXT,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_position_actions_position ON position_actions(position_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func encodeList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeList[T any](s string) ([]T, error) {
	out := []T{}
	if s == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(s), &out)
	return out, err
}

// Trade plans

// SaveTradePlan upserts the plan of (session date, symbol).
func (s *SQLiteStore) SaveTradePlan(ctx context.Context, p domain.TradePlan) error {
	targets, err := encodeList(p.PartialTargetsR)
	if err != nil {
		return err
	}
	query := `INSERT INTO trade_plans (session_date, symbol, state, side, max_quantity, max_slippage_bps, stop_distance_pct,
				kill_after_seconds, opening_range_seconds, min_relative_volume, max_spread_pct,
				partial_targets_r, time_stop_seconds, loser_kill_r, move_to_breakeven, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(session_date, symbol) DO UPDATE SET
			  state=excluded.state,
			  side=excluded.side,
			  max_quantity=excluded.max_quantity,
			  max_slippage_bps=excluded.max_slippage_bps,
			  stop_distance_pct=excluded.stop_distance_pct,
			  kill_after_seconds=excluded.kill_after_seconds,
			  opening_range_seconds=excluded.opening_range_seconds,
			  min_relative_volume=excluded.min_relative_volume,
			  max_spread_pct=excluded.max_spread_pct,
			  partial_targets_r=excluded.partial_targets_r,
			  time_stop_seconds=excluded.time_stop_seconds,
			  loser_kill_r=excluded.loser_kill_r,
			  move_to_breakeven=excluded.move_to_breakeven,
			  created_at=excluded.created_at`
	_, err = s.db.ExecContext(ctx, query,
		p.SessionDate, p.Symbol, string(p.State), string(p.Side), p.MaxQuantity, p.MaxSlippageBps, p.StopDistancePct,
		p.KillAfterSeconds, p.OpeningRangeSeconds, p.MinRelativeVolume, p.MaxSpreadPct,
		targets, p.TimeStopSeconds, p.LoserKillR, p.MoveToBreakeven, time.Now().UTC())
	return err
}

// ListTradePlans returns the plans of one session, or of every session when
// sessionDate is empty.
func (s *SQLiteStore) ListTradePlans(ctx context.Context, sessionDate string) ([]domain.TradePlan, error) {
	query := `SELECT session_date, symbol, state, side, max_quantity, max_slippage_bps, stop_distance_pct,
				kill_after_seconds, opening_range_seconds, min_relative_volume, max_spread_pct,
				partial_targets_r, time_stop_seconds, loser_kill_r, move_to_breakeven
			  FROM trade_plans WHERE (? = '' OR session_date = ?) ORDER BY session_date, rowid`
	rows, err := s.db.QueryContext(ctx, query, sessionDate, sessionDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.TradePlan
	for rows.Next() {
		var (
			p       domain.TradePlan
			state   string
			side    string
			targets string
		)
		if err := rows.Scan(&p.SessionDate, &p.Symbol, &state, &side, &p.MaxQuantity, &p.MaxSlippageBps, &p.StopDistancePct,
			&p.KillAfterSeconds, &p.OpeningRangeSeconds, &p.MinRelativeVolume, &p.MaxSpreadPct,
			&targets, &p.TimeStopSeconds, &p.LoserKillR, &p.MoveToBreakeven); err != nil {
			return nil, err
		}
		p.State = domain.PlanState(state)
		p.Side = domain.Side(side)
		if p.PartialTargetsR, err = decodeList[float64](targets); err != nil {
			return nil, fmt.Errorf("plan %s/%s partial targets: %w", p.SessionDate, p.Symbol, err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Guardrail decisions

func (s *SQLiteStore) SaveGuardrailDecision(ctx context.Context, state domain.GuardrailState, d domain.GuardrailDecision) error {
	reasons, err := encodeList(d.Reasons)
	if err != nil {
		return err
	}
	actions, err := encodeList(d.Actions)
	if err != nil {
		return err
	}
	evaluatedAt := d.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now().UTC()
	}
	query := `INSERT INTO guardrail_decisions (level, allowed_new_entries, risk_multiplier, reasons, actions,
				day_pnl_pct, var_95_pct, annual_vol_pct, drawdown_pct, evaluated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		d.Level.String(), d.AllowedNewEntries, d.RiskMultiplier, reasons, actions,
		state.DayPnLPct, state.VaR95Pct, state.AnnualVolPct, state.DrawdownPct, evaluatedAt)
	return err
}

// ListGuardrailDecisions returns the latest decisions, newest first.
func (s *SQLiteStore) ListGuardrailDecisions(ctx context.Context, limit int) ([]domain.GuardrailDecision, error) {
	query := `SELECT level, allowed_new_entries, risk_multiplier, reasons, actions, evaluated_at
			  FROM guardrail_decisions ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []domain.GuardrailDecision
	for rows.Next() {
		var (
			d       domain.GuardrailDecision
			level   string
			reasons string
			actions string
		)
		if err := rows.Scan(&level, &d.AllowedNewEntries, &d.RiskMultiplier, &reasons, &actions, &d.EvaluatedAt); err != nil {
			return nil, err
		}
		if d.Level, err = domain.ParseRiskLevel(level); err != nil {
			return nil, err
		}
		if d.Reasons, err = decodeList[string](reasons); err != nil {
			return nil, err
		}
		if d.Actions, err = decodeList[string](actions); err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// Position actions

func (s *SQLiteStore) SavePositionAction(ctx context.Context, a domain.PositionAction) error {
	at := a.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	query := `INSERT INTO position_actions (position_id, symbol, side, kind, quantity, remaining, price, r_multiple, stop_price, reason, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		a.PositionID, a.Symbol, string(a.Side), string(a.Kind), a.Quantity, a.Remaining, a.Price, a.R, a.StopPrice, a.Reason, at)
	return err
}

// ListPositionActions returns the latest actions, newest first.
func (s *SQLiteStore) ListPositionActions(ctx context.Context, limit int) ([]domain.PositionAction, error) {
	query := `SELECT position_id, symbol, side, kind, quantity, remaining, price, r_multiple, stop_price, reason, created_at
			  FROM position_actions ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []domain.PositionAction
	for rows.Next() {
		var (
			a      domain.PositionAction
			side   string
			kind   string
			reason sql.NullString
		)
		if err := rows.Scan(&a.PositionID, &a.Symbol, &side, &kind, &a.Quantity, &a.Remaining, &a.Price, &a.R, &a.StopPrice, &reason, &a.At); err != nil {
			return nil, err
		}
		a.Side = domain.Side(side)
		a.Kind = domain.ActionKind(kind)
		a.Reason = reason.String
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
