// Package stream maintains the live seat-update subscription for one
// concert.  The backend pushes seat status changes over Server-Sent
// Events; this client parses the wire format, survives transport drops
// with exponential backoff, and exposes an explicit connection-state
// machine so the view can render an accurate status badge.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stagepass/seatsync/internal/logger"
	"github.com/stagepass/seatsync/internal/model"
)

// State is the connection state of the subscription.
//
// Transitions: CLOSED -> CONNECTING -> CONNECTED <-> RECONNECTING ->
// (CONNECTED | ERROR); any state -> CLOSED via Close or Disconnect.
type State string

const (
	StateClosed       State = "CLOSED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateError        State = "ERROR"
)

// ErrRetriesExhausted is handed to OnError once the configured number
// of reconnect attempts has been used up.  The subscription then sits
// in StateError until a manual Reconnect.
var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

// TokenProvider yields the current session token at connect time, or
// "" for anonymous access.  The underlying transport cannot carry
// headers, so a non-empty token is appended to the subscription URL.
type TokenProvider func() string

// Callbacks are the hooks the owning view supplies.  Any of them may
// be nil; all of them can be swapped while the client runs and the
// most recently supplied one is always the one invoked.
type Callbacks struct {
	OnSeatUpdate       func(seatID string, status model.SeatStatus)
	OnConnectionChange func(State)
	OnError            func(error)
}

// Options tune the reconnect behaviour.  Zero values fall back to one
// second base delay, thirty seconds ceiling and five attempts.
type Options struct {
	BaseWait   time.Duration
	MaxWait    time.Duration
	MaxRetries int
	Token      TokenProvider
	HTTPClient *http.Client
}

// reconnectDelay is used by manual Reconnect, independent of the
// backoff counter.
const reconnectDelay = 250 * time.Millisecond

// eventSeatUpdate is the typed event name the backend uses for seat
// status notifications.
const eventSeatUpdate = "seat-update"

// Client is a resilient subscription to one concert's seat events.
// Exactly one Client is active per concert view; switching concerts
// tears the old one down before creating a new one.
type Client struct {
	streamURL string
	opts      Options

	mu       sync.Mutex
	cb       Callbacks
	state    State
	attempts int
	gen      int // connection generation, invalidates stale drop handling
	closed   bool
	manual   bool // reconnection suppressed by Disconnect
	cancel   context.CancelFunc
	retryTmr *time.Timer

	log *zap.Logger
}

// New builds a Client for the concert-scoped stream endpoint under
// baseURL.  The subscription is not opened until Connect.
func New(baseURL, concertID string, cb Callbacks, opts Options) *Client {
	if opts.BaseWait <= 0 {
		opts.BaseWait = time.Second
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.HTTPClient == nil {
		// No overall timeout: the stream is long-lived by design.
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		streamURL: strings.TrimRight(baseURL, "/") + "/v1/concerts/" + concertID + "/stream",
		opts:      opts,
		cb:        cb,
		state:     StateClosed,
		log:       logger.With(zap.String("concert_id", concertID)),
	}
}

// Connect opens the subscription.  It returns immediately; delivery
// and reconnection happen on a background goroutine.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.manual = false
	c.mu.Unlock()
	go c.connect()
}

// Reconnect drops the current connection, if any, and opens a fresh
// one after a short fixed delay.  It resets the backoff counter and
// clears a previous Disconnect or exhausted-retries condition.
func (c *Client) Reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.manual = false
	c.attempts = 0
	c.dropLocked()
	c.retryTmr = time.AfterFunc(reconnectDelay, c.connect)
	c.mu.Unlock()
}

// Disconnect tears the connection down and suppresses automatic
// reconnection until Reconnect or Connect is called again.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.manual = true
	c.dropLocked()
	c.setStateLocked(StateClosed)
	c.mu.Unlock()
}

// Close is the idempotent teardown: it cancels any pending reconnect
// timer, closes the connection and moves to StateClosed.  No callback
// fires after Close returns.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.dropLocked()
	c.setStateLocked(StateClosed)
	c.closed = true
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetOnSeatUpdate swaps the seat-update hook; the client dereferences
// hooks at delivery time, never at creation time.
func (c *Client) SetOnSeatUpdate(fn func(seatID string, status model.SeatStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb.OnSeatUpdate = fn
}

// SetOnConnectionChange swaps the connection-state hook.
func (c *Client) SetOnConnectionChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb.OnConnectionChange = fn
}

// SetOnError swaps the error hook.
func (c *Client) SetOnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb.OnError = fn
}

// dropLocked cancels the pending reconnect timer and the in-flight
// connection.  Callers must hold c.mu.
func (c *Client) dropLocked() {
	c.gen++
	if c.retryTmr != nil {
		c.retryTmr.Stop()
		c.retryTmr = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// setStateLocked records a state change and notifies the hook.  The
// hook runs outside the lock.  Callers must hold c.mu.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	fn := c.cb.OnConnectionChange
	if fn == nil {
		return
	}
	c.mu.Unlock()
	fn(s)
	c.mu.Lock()
}

// connect performs one connection attempt and, on success, blocks in
// the read loop until the transport drops.
func (c *Client) connect() {
	c.mu.Lock()
	if c.closed || c.manual {
		c.mu.Unlock()
		return
	}
	if c.state != StateReconnecting {
		c.setStateLocked(StateConnecting)
	}
	if c.closed || c.manual { // state hook may have torn us down
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()

	resp, err := c.open(ctx)
	if err != nil {
		cancel()
		c.handleDrop(gen, err)
		return
	}
	defer resp.Body.Close()

	c.mu.Lock()
	if c.closed || c.manual || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	err = c.readLoop(resp)
	cancel()
	c.handleDrop(gen, err)
}

// open issues the subscription request.  The session token, when the
// provider yields one, travels as a query parameter because the
// stream transport cannot carry custom headers.
func (c *Client) open(ctx context.Context) (*http.Response, error) {
	target := c.streamURL
	if c.opts.Token != nil {
		if t := c.opts.Token(); t != "" {
			target += "?token=" + url.QueryEscape(t)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream open: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream open: unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}

// readLoop consumes the event stream until it breaks.  It returns the
// transport error that ended it.
func (c *Client) readLoop(resp *http.Response) error {
	var event, data string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Blank line dispatches the accumulated event.
			if data != "" {
				c.dispatch(event, data)
			}
			event, data = "", ""
		case strings.HasPrefix(line, ":"):
			// Comment line, used by the backend as a heartbeat.
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			if data != "" {
				data += "\n"
			}
			data += strings.TrimSpace(line[len("data:"):])
		}
		// id: and retry: fields are irrelevant to this client.
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return errors.New("stream closed by server")
}

// seatEvent is the payload of a seat status notification.
type seatEvent struct {
	SeatID    string `json:"seat_id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// dispatch routes one parsed wire event.  Typed seat-update events are
// delivered directly; untyped events whose payload happens to carry
// both seat_id and status are treated the same, because the backend's
// older stream endpoint emits them without an event name.  Payloads
// that do not parse are dropped: heartbeats and other noise are
// expected on this channel.
func (c *Client) dispatch(event, data string) {
	var ev seatEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		c.log.Debug("dropping unparseable stream payload", zap.Error(err))
		return
	}
	switch event {
	case eventSeatUpdate:
		if ev.SeatID == "" || ev.Status == "" {
			return
		}
	case "", "message":
		// Generic fallback: only payloads carrying both fields count.
		if ev.SeatID == "" || ev.Status == "" {
			return
		}
	default:
		return
	}
	c.emitSeatUpdate(ev.SeatID, model.SeatStatus(ev.Status))
}

// emitSeatUpdate invokes the current seat-update hook unless the
// client has been torn down.
func (c *Client) emitSeatUpdate(seatID string, status model.SeatStatus) {
	c.mu.Lock()
	if c.closed || c.manual {
		c.mu.Unlock()
		return
	}
	fn := c.cb.OnSeatUpdate
	c.mu.Unlock()
	if fn != nil {
		fn(seatID, status)
	}
}

// handleDrop reacts to a broken transport: it schedules the next
// attempt with exponential backoff, or gives up and surfaces the
// exhaustion once the attempt budget is spent.  A generation mismatch
// means a newer connection superseded this one and the drop is stale.
func (c *Client) handleDrop(gen int, cause error) {
	c.mu.Lock()
	if c.closed || c.manual || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.cancel = nil

	if c.attempts >= c.opts.MaxRetries {
		c.setStateLocked(StateError)
		fn := c.cb.OnError
		c.mu.Unlock()
		c.log.Warn("stream retries exhausted", zap.Error(cause))
		if fn != nil {
			fn(ErrRetriesExhausted)
		}
		return
	}

	c.attempts++
	delay := backoff(c.opts.BaseWait, c.opts.MaxWait, c.attempts)
	c.setStateLocked(StateReconnecting)
	if c.closed || c.manual {
		c.mu.Unlock()
		return
	}
	c.retryTmr = time.AfterFunc(delay, c.connect)
	c.mu.Unlock()

	c.log.Info("stream dropped, reconnecting",
		zap.Error(cause),
		zap.Int("attempt", c.attempts),
		zap.Duration("delay", delay),
	)
}

// backoff computes min(base * 2^(attempt-1), max) for attempt >= 1.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
