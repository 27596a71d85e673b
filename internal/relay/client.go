// Package relay manages the long-lived bidirectional connection to the
// transcription relay: connect/ready/reconnect/close lifecycle, audio
// forwarding with buffering across reconnects, and transcript events.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/classlive/platform/internal/errors"
	"github.com/classlive/platform/internal/observability/metrics"
	"github.com/classlive/platform/internal/resilience"
)

// Chunk is one captured audio frame. Ownership transfers to the client,
// which either transmits it immediately or queues it until Streaming.
type Chunk struct {
	Seq        uint64
	Data       []byte
	CapturedAt time.Time
}

// Conn abstracts the websocket connection so the lifecycle machinery can
// be driven by scripted connections in tests.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	WriteBinary(ctx context.Context, data []byte) error
	WriteText(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a relay connection.
type Dialer func(ctx context.Context, url, apiKey string) (Conn, error)

// CredentialValidator checks the API key before any connection attempt.
type CredentialValidator func(ctx context.Context, apiKey string) error

// Handlers receive client events. OnStateChange and OnTranscript are
// invoked from client goroutines and must not call back into the client.
type Handlers struct {
	OnTranscript  func(TranscriptEvent)
	OnStateChange func(from, to State)
	OnError       func(error)
	OnClosed      func(reason string)
}

// Config holds relay client settings.
type Config struct {
	URL                  string
	APIKey               string
	MinChunkBytes        int
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	MaxConnectionAge     time.Duration // proactive reconnect threshold

	Dial                Dialer
	ValidateCredentials CredentialValidator
}

func (c Config) withDefaults() Config {
	if c.MinChunkBytes <= 0 {
		c.MinChunkBytes = 1024
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 3
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 2 * time.Second
	}
	if c.MaxConnectionAge <= 0 {
		c.MaxConnectionAge = 55 * time.Second
	}
	if c.Dial == nil {
		c.Dial = DialWebsocket
	}
	if c.ValidateCredentials == nil {
		c.ValidateCredentials = func(_ context.Context, apiKey string) error {
			if apiKey == "" {
				return errors.New(errors.CodeCredentialInvalid, "relay API key is empty")
			}
			return nil
		}
	}
	return c
}

// Client is the transcription stream client. One mutex guards all
// lifecycle state; every websocket write happens under it, preserving
// FIFO order between queued flushes and live chunks.
type Client struct {
	cfg      Config
	handlers Handlers
	metrics  *metrics.Metrics

	mu       sync.Mutex
	state    State
	conn     Conn
	queue    []Chunk // FIFO, unbounded within a session
	attempts int     // reconnect attempts consumed since last ready
	gen      int     // connection generation; stale read loops are ignored
	closing  bool    // user-initiated shutdown in progress
	ageTimer *time.Timer
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewClient creates a relay client.
func NewClient(cfg Config, handlers Handlers) *Client {
	return &Client{
		cfg:      cfg.withDefaults(),
		handlers: handlers,
		metrics:  metrics.Default,
		state:    StateIdle,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the client is actively streaming.
func (c *Client) IsConnected() bool {
	return c.State() == StateStreaming
}

// QueueLen returns the number of chunks buffered for the next Streaming
// transition.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// ReconnectAttempts returns attempts consumed since the last ready.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect validates credentials and establishes the stream. A client in
// a terminal state starts over as a fresh machine with an empty queue.
// Credential failures are fatal and never retried; dial failures enter
// the standard bounded backoff path.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.Terminal() && c.state != StateIdle {
		c.mu.Unlock()
		return errors.Newf(errors.CodeInvalidArgument, "connect called in state %s", c.state)
	}
	c.setStateLocked(StateIdle)
	c.closing = false
	c.queue = nil
	c.attempts = 0
	sctx, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = sctx, cancel
	c.setStateLocked(StateValidatingCredentials)
	c.mu.Unlock()

	if err := c.cfg.ValidateCredentials(sctx, c.cfg.APIKey); err != nil {
		appErr := errors.Wrap(err, errors.CodeCredentialInvalid, "credential validation failed").
			WithRemediation("Verify the transcription API key in the platform settings and reconnect.")
		c.fail(appErr)
		return appErr
	}

	c.mu.Lock()
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if err := c.dial(sctx); err != nil {
		if !c.runReconnect(sctx) {
			return errors.Wrap(err, errors.CodeReconnectExhausted, "could not establish relay connection")
		}
	}
	return nil
}

// SendAudio forwards one chunk. While not Streaming the chunk is queued;
// in a terminal state it is dropped. Chunks below the minimum byte size
// are discarded as silence before any of that.
func (c *Client) SendAudio(chunk Chunk) {
	if len(chunk.Data) < c.cfg.MinChunkBytes {
		c.metrics.ChunksDiscarded.Inc()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateStreaming:
		if err := c.conn.WriteBinary(c.ctx, chunk.Data); err != nil {
			// Keep the chunk; the flush after reconnect picks it up.
			c.queue = append(c.queue, chunk)
			c.metrics.ChunksQueued.Inc()
			gen := c.gen
			go c.handleDisconnect(gen, errors.Wrap(err, errors.CodeRelayUnavailable, "audio write failed"))
			return
		}
		c.metrics.ChunksSent.Inc()
		c.metrics.AudioBytesSent.Add(float64(len(chunk.Data)))

	case StateIdle, StateClosed, StateFailed:
		slog.Debug("dropping audio chunk in terminal state", "state", c.state.String(), "seq", chunk.Seq)

	default:
		c.queue = append(c.queue, chunk)
		c.metrics.ChunksQueued.Inc()
	}
}

// Disconnect is the single authoritative cancellation path: terminal,
// idempotent, safe from any state. It suppresses in-flight reconnects,
// requests a graceful close if the channel is open, and empties the
// queue so a subsequent Connect starts fresh.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.stopAgeTimerLocked()
	conn := c.conn
	c.conn = nil
	c.gen++
	c.queue = nil
	cancel := c.cancel
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if conn != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = conn.WriteText(closeCtx, EncodeCloseStream())
		closeCancel()
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	if c.handlers.OnClosed != nil {
		c.handlers.OnClosed("disconnected by user")
	}
}

func (c *Client) dial(ctx context.Context) error {
	conn, err := c.cfg.Dial(ctx, c.cfg.URL, c.cfg.APIKey)
	if err != nil {
		return errors.Wrap(err, errors.CodeRelayUnavailable, "relay dial failed")
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.setStateLocked(StateAwaitingReady)
	c.mu.Unlock()

	c.metrics.RelayConnects.Inc()
	go c.readLoop(ctx, conn, gen)
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn Conn, gen int) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.handleDisconnect(gen, errors.Wrap(err, errors.CodeRelayUnavailable, "relay read failed"))
			return
		}

		msg, err := DecodeServerMessage(data)
		if err != nil {
			slog.Debug("ignoring malformed relay message", "error", err)
			continue
		}

		switch msg.Kind {
		case KindReady:
			c.handleReady(gen)

		case KindTranscript:
			if c.handlers.OnTranscript != nil {
				c.handlers.OnTranscript(*msg.Transcript)
			}

		case KindError:
			if msg.CanRetry {
				c.handleDisconnect(gen, errors.Newf(errors.CodeRelayUnavailable, "relay error: %s", msg.ErrorMessage))
				return
			}
			c.fail(errors.Newf(errors.CodeRelayClosed, "relay rejected the stream: %s", msg.ErrorMessage))
			return

		case KindClosed:
			c.handleDisconnect(gen, errors.Newf(errors.CodeRelayClosed, "relay closed the stream: %s", msg.CloseReason))
			return
		}
	}
}

// handleReady flushes the queued-audio FIFO in original order, then live
// chunks flow directly. Holding the lock for the whole flush keeps queued
// and live chunks strictly ordered.
func (c *Client) handleReady(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.closing {
		c.mu.Unlock()
		return
	}

	c.setStateLocked(StateStreaming)
	c.attempts = 0
	c.armAgeTimerLocked()

	for len(c.queue) > 0 {
		chunk := c.queue[0]
		if err := c.conn.WriteBinary(c.ctx, chunk.Data); err != nil {
			g := c.gen
			c.mu.Unlock()
			c.handleDisconnect(g, errors.Wrap(err, errors.CodeRelayUnavailable, "queued audio flush failed"))
			return
		}
		c.queue = c.queue[1:]
		c.metrics.ChunksSent.Inc()
		c.metrics.AudioBytesSent.Add(float64(len(chunk.Data)))
	}
	c.mu.Unlock()

	slog.Info("relay streaming", "generation", gen)
}

// handleDisconnect reacts to an unexpected close or retryable error by
// entering the bounded reconnect path. Audio capture is not touched;
// chunks arriving meanwhile are queued.
func (c *Client) handleDisconnect(gen int, cause error) {
	c.mu.Lock()
	if c.closing || gen != c.gen || c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.stopAgeTimerLocked()
	c.setStateLocked(StateReconnecting)
	ctx := c.ctx
	c.mu.Unlock()

	slog.Warn("relay connection lost", "error", cause)
	c.runReconnect(ctx)
}

// runReconnect drives bounded reconnection with exponential backoff.
// Returns true once a new connection is dialing (the ready handshake
// completes asynchronously), false on exhaustion or shutdown.
func (c *Client) runReconnect(ctx context.Context) bool {
	backoff := resilience.RelayRetryConfig()
	backoff.BaseDelay = c.cfg.ReconnectBaseDelay
	backoff.MaxDelay = c.cfg.ReconnectBaseDelay << uint(c.cfg.MaxReconnectAttempts)

	for {
		c.mu.Lock()
		if c.closing || c.state.Terminal() {
			c.mu.Unlock()
			return false
		}
		if c.attempts >= c.cfg.MaxReconnectAttempts {
			c.mu.Unlock()
			c.fail(errors.New(errors.CodeReconnectExhausted, "relay reconnect attempts exhausted").
				WithRemediation("Check network connectivity and relay availability, then reconnect."))
			return false
		}
		attempt := c.attempts
		c.attempts++
		c.setStateLocked(StateReconnecting)
		c.mu.Unlock()

		delay := resilience.BackoffDelay(backoff, attempt)
		slog.Info("relay reconnecting", "attempt", attempt+1, "max", c.cfg.MaxReconnectAttempts, "delay", delay)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		c.metrics.RelayReconnects.WithLabelValues("recovery").Inc()
		if err := c.dial(ctx); err == nil {
			return true
		}
	}
}

// proactiveReconnect fires when connection age reaches the threshold,
// before the provider's hard limit forces a disconnect. It closes the
// control channel gracefully and re-dials without consuming reconnect
// attempts; audio capture keeps running and gap chunks queue up.
func (c *Client) proactiveReconnect() {
	c.mu.Lock()
	if c.closing || c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	saved := c.attempts
	conn := c.conn
	c.conn = nil
	c.gen++
	c.setStateLocked(StateReconnecting)
	ctx := c.ctx
	c.mu.Unlock()

	if conn != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = conn.WriteText(closeCtx, EncodeCloseStream())
		closeCancel()
		_ = conn.Close()
	}

	c.metrics.RelayReconnects.WithLabelValues("proactive").Inc()
	slog.Info("proactive relay reconnect", "age_limit", c.cfg.MaxConnectionAge)

	if err := c.dial(ctx); err != nil {
		// Restore the pre-reconnect counter and fall through to the
		// standard backoff path.
		c.mu.Lock()
		c.attempts = saved
		c.mu.Unlock()
		c.runReconnect(ctx)
	}
}

func (c *Client) fail(cause error) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.stopAgeTimerLocked()
	c.setStateLocked(StateFailed)
	c.mu.Unlock()

	c.metrics.RelayFailures.Inc()
	slog.Error("relay session failed", "error", cause)
	if c.handlers.OnError != nil {
		c.handlers.OnError(cause)
	}
}

func (c *Client) armAgeTimerLocked() {
	c.stopAgeTimerLocked()
	c.ageTimer = time.AfterFunc(c.cfg.MaxConnectionAge, c.proactiveReconnect)
}

func (c *Client) stopAgeTimerLocked() {
	if c.ageTimer != nil {
		c.ageTimer.Stop()
		c.ageTimer = nil
	}
}

func (c *Client) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	slog.Debug("relay state", "from", from.String(), "to", to.String())
	if c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(from, to)
	}
}

// wsConn adapts coder/websocket to the Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

// DialWebsocket is the production dialer.
func DialWebsocket(ctx context.Context, url, apiKey string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Token "+apiKey)

	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	// Lecture sessions stream unbounded audio; disable the read limit.
	conn.SetReadLimit(-1)
	return &wsConn{conn: conn}, nil
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

func (w *wsConn) WriteBinary(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageBinary, data)
}

func (w *wsConn) WriteText(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "")
}
