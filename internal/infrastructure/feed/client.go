package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/opening_playbook/internal/domain"
	"go.uber.org/zap"
)

const quoteTopic = "quote."

// Client reads premarket snapshots and risk metrics over REST and live quotes
// over a websocket. It implements domain.MarketData.
type Client struct {
	apiKey  string
	baseURL string
	wsURL   string
	client  *http.Client
	logger  *zap.Logger

	mu        sync.Mutex
	wsConn    *websocket.Conn
	wsDone    chan struct{}
	callbacks []func(domain.MarketSnapshot)
	latest    map[string]domain.MarketSnapshot
}

func NewClient(baseURL, wsURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		wsURL:   wsURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		latest:  make(map[string]domain.MarketSnapshot),
	}
}

// --- REST API ---

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

// Premarket fetches the pre-open snapshot of symbol. Every failure is reported
// as domain.ErrDataUnavailable so the planner skips only that symbol.
func (c *Client) Premarket(ctx context.Context, symbol string) (domain.PremarketSnapshot, error) {
	var snap domain.PremarketSnapshot
	if err := c.getJSON(ctx, "/v1/premarket/"+url.PathEscape(symbol), &snap); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.PremarketSnapshot{}, ctxErr
		}
		return domain.PremarketSnapshot{}, fmt.Errorf("%w: premarket %s: %v", domain.ErrDataUnavailable, symbol, err)
	}
	if snap.Symbol == "" {
		snap.Symbol = symbol
	}
	return snap, nil
}

// Snapshot returns the latest streamed quote of symbol, or fetches one over
// REST when nothing has been streamed yet.
func (c *Client) Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	c.mu.Lock()
	snap, ok := c.latest[symbol]
	c.mu.Unlock()
	if ok {
		return snap, nil
	}

	var q wireQuote
	if err := c.getJSON(ctx, "/v1/quote/"+url.PathEscape(symbol), &q); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("%w: quote %s: %v", domain.ErrDataUnavailable, symbol, err)
	}
	return q.snapshot(symbol), nil
}

// RiskMetrics fetches the portfolio risk snapshot the guardrail gate evaluates.
func (c *Client) RiskMetrics(ctx context.Context) (domain.GuardrailState, error) {
	var state domain.GuardrailState
	if err := c.getJSON(ctx, "/v1/risk", &state); err != nil {
		return domain.GuardrailState{}, fmt.Errorf("%w: risk metrics: %v", domain.ErrDataUnavailable, err)
	}
	return state, nil
}

// --- WebSocket ---

// wireQuote is one quote as sent by the feed. Timestamps are Unix milliseconds.
type wireQuote struct {
	Bid             float64 `json:"bid"`
	Ask             float64 `json:"ask"`
	Last            float64 `json:"last"`
	AvgDailyVolume  float64 `json:"adv"`
	TopOfBookSize   float64 `json:"top_size"`
	VolatilityScore float64 `json:"vol_score"`
	FillProbability float64 `json:"fill_prob"`
	ImpactCostBps   float64 `json:"impact_bps"`
	TS              int64   `json:"ts"`
}

func (q wireQuote) snapshot(symbol string) domain.MarketSnapshot {
	ts := time.Now().UTC()
	if q.TS > 0 {
		ts = time.UnixMilli(q.TS).UTC()
	}
	return domain.MarketSnapshot{
		Symbol:          symbol,
		Timestamp:       ts,
		Bid:             q.Bid,
		Ask:             q.Ask,
		Last:            q.Last,
		AvgDailyVolume:  q.AvgDailyVolume,
		TopOfBookSize:   q.TopOfBookSize,
		VolatilityScore: q.VolatilityScore,
		FillProbability: q.FillProbability,
		ImpactCostBps:   q.ImpactCostBps,
	}
}

type wireEvent struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// OnSnapshot registers a callback for every streamed quote. Callbacks run on
// the read loop goroutine.
func (c *Client) OnSnapshot(callback func(domain.MarketSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

// Connect dials the quote stream and subscribes to symbols. Calling it again
// on a live connection only subscribes.
func (c *Client) Connect(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	if c.wsConn != nil {
		defer c.mu.Unlock()
		return c.subscribe(symbols)
	}
	c.mu.Unlock()

	// dial without the lock so cached snapshots stay readable meanwhile
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-KEY", c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil {
		// lost a race with another Connect
		conn.Close()
		return c.subscribe(symbols)
	}
	c.wsConn = conn
	c.wsDone = make(chan struct{})

	go c.readLoop(conn, c.wsDone)

	return c.subscribe(symbols)
}

func (c *Client) subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	args := make([]string, len(symbols))
	for i, s := range symbols {
		args[i] = quoteTopic + s
	}
	return c.wsConn.WriteJSON(map[string]any{
		"op":   "subscribe",
		"args": args,
	})
}

// Done is closed when the current stream ends.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wsDone
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.wsConn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		conn.Close()
		c.mu.Lock()
		if c.wsConn == conn {
			c.wsConn = nil
		}
		c.mu.Unlock()
		close(done)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				c.logger.Warn("Quote stream read error", zap.Error(err))
			}
			return
		}

		var event wireEvent
		if err := json.Unmarshal(message, &event); err != nil {
			c.logger.Debug("Quote stream unmarshal error", zap.Error(err))
			continue
		}
		if !strings.HasPrefix(event.Topic, quoteTopic) || len(event.Data) == 0 {
			continue
		}
		symbol := strings.TrimPrefix(event.Topic, quoteTopic)

		var q wireQuote
		if err := json.Unmarshal(event.Data, &q); err != nil {
			c.logger.Debug("Bad quote payload", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		snap := q.snapshot(symbol)

		c.mu.Lock()
		c.latest[symbol] = snap
		callbacks := make([]func(domain.MarketSnapshot), len(c.callbacks))
		copy(callbacks, c.callbacks)
		c.mu.Unlock()

		for _, cb := range callbacks {
			cb(snap)
		}
	}
}
