package savecair

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Default timeouts and intervals for gateway communication.
const (
	// DefaultURL is the Systemair cloud gateway.
	DefaultURL = "wss://homesolutions.systemair.com/ws/"

	// defaultReconnectInterval is the fixed delay between reconnection attempts.
	defaultReconnectInterval = 60 * time.Second

	// defaultHandshakeTimeout bounds the websocket opening handshake.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 5 * time.Second

	// closeGracePeriod bounds the close frame written on shutdown.
	closeGracePeriod = time.Second
)

// State is the connection state of a Transport.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// TransportConfig holds gateway connection configuration.
type TransportConfig struct {
	// URL is the gateway websocket endpoint.
	// Default: DefaultURL.
	URL string

	// Reconnect enables the fixed-interval reconnect policy.
	Reconnect bool

	// ReconnectInterval is the delay before each reconnection attempt.
	// Default: 60 seconds.
	ReconnectInterval time.Duration

	// HandshakeTimeout bounds the opening handshake.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	// Default: 5 seconds.
	WriteTimeout time.Duration
}

// TransportStats holds operational statistics.
type TransportStats struct {
	FramesTx        uint64
	FramesRx        uint64
	DecodeErrors    uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64 // Connection attempts made by the reconnect policy
	LastActivity    time.Time
	State           State
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Transport owns the websocket to the gateway.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Observers run on the receive goroutine (message, error, close) or on
//     the goroutine that called Connect (open, and error/close after a
//     failed dial), in registration order. Panics are recovered and logged.
//
// Reconnection:
//   - After every close, if Reconnect is set, the transport waits
//     ReconnectInterval and connects again. There is no backoff growth and
//     no retry limit. Reconnection stops only when Close() is called.
type Transport struct {
	cfg    TransportConfig
	dialer *websocket.Dialer

	connMu sync.RWMutex
	conn   *websocket.Conn
	state  atomic.Int32

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex

	reconnectPending atomic.Bool

	// pending is the pending-response signal: set after every inbound
	// frame and every transport error.
	pending *event

	observerMu sync.RWMutex
	onOpen     []func()
	onClose    []func()
	onError    []func(error)
	onMessage  []func(Message)

	// lifeMu orders goroutine starts against Close.
	lifeMu sync.Mutex
	done   *closeOnce
	wg     sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	decodeErrors    atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix timestamp
}

// NewTransport creates a disconnected transport. Call Connect to dial.
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		pending: newEvent(),
		done:    newCloseOnce(),
	}
}

// Connect dials the gateway.
//
// Network and handshake failures are not returned: they are reported to
// the error observers, followed by the close observers, and the reconnect
// policy decides what happens next. Connect on an already open or
// connecting transport is a no-op.
//
// Parameters:
//   - ctx: Context for the dial
//
// Returns:
//   - error: ErrInvalidURL for an unusable URL, ErrClosed after Close
func (t *Transport) Connect(ctx context.Context) error {
	if t.isClosed() {
		return ErrClosed
	}
	if err := validateURL(t.cfg.URL); err != nil {
		return err
	}
	if !t.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return nil
	}

	t.logDebug("connecting to gateway", "url", t.cfg.URL)

	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.state.Store(int32(StateDisconnected))
		t.errorsTotal.Add(1)
		t.logError("dial failed", err)
		t.fireError(err)
		t.pending.Set()
		t.fireClose()
		t.scheduleReconnect()
		return nil
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	t.state.Store(int32(StateOpen))
	t.lastActivity.Store(time.Now().Unix())
	t.logInfo("connected to gateway", "url", t.cfg.URL)

	t.fireOpen()

	if !t.spawn(func() { t.receiveLoop(conn) }) {
		conn.Close()
		t.dropConn(conn)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("%w: unsupported scheme %q (use ws or wss)", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// spawn starts fn on a tracked goroutine unless the transport is closed.
func (t *Transport) spawn(fn func()) bool {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()
	if t.isClosed() {
		return false
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
	return true
}

func (t *Transport) receiveLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleReadError(conn, err)
			return
		}

		t.framesRx.Add(1)
		t.lastActivity.Store(time.Now().Unix())

		msg, err := Decode(data)
		if err != nil {
			t.decodeErrors.Add(1)
			t.logWarn("frame from gateway is not JSON", "error", err)
			t.pending.Set()
			continue
		}

		t.fireMessage(msg)
		t.pending.Set()
	}
}

// handleReadError tears down conn after the receive loop stops.
// A clean close (1000/1001) or a requested shutdown fires only the close
// observers; anything else fires the error observers first.
func (t *Transport) handleReadError(conn *websocket.Conn, err error) {
	clean := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)

	if !clean && !t.isClosed() {
		t.errorsTotal.Add(1)
		t.logError("connection lost", err)
		t.fireError(err)
	} else {
		t.logInfo("connection closed by gateway")
	}

	// A waiter woken by pending must already see the connection as gone.
	conn.Close()
	t.dropConn(conn)
	t.pending.Set()
	t.fireClose()
	t.scheduleReconnect()
}

// dropConn forgets conn if it is still the current connection.
func (t *Transport) dropConn(conn *websocket.Conn) {
	t.connMu.Lock()
	if t.conn == conn {
		t.conn = nil
		t.state.Store(int32(StateDisconnected))
	}
	t.connMu.Unlock()
}

func (t *Transport) scheduleReconnect() {
	if !t.cfg.Reconnect || t.isClosed() {
		return
	}
	if !t.reconnectPending.CompareAndSwap(false, true) {
		return
	}

	t.logWarn("attempting to reconnect to gateway", "interval", t.cfg.ReconnectInterval.String())

	started := t.spawn(func() {
		timer := time.NewTimer(t.cfg.ReconnectInterval)
		defer timer.Stop()

		select {
		case <-t.done.Done():
			t.reconnectPending.Store(false)
			return
		case <-timer.C:
		}

		// Cancel an in-flight dial if Close is called.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-t.done.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		t.reconnectsTotal.Add(1)
		t.reconnectPending.Store(false)
		if err := t.Connect(ctx); err != nil && !errors.Is(err, ErrClosed) {
			t.logError("reconnect failed", err)
		}
	})
	if !started {
		t.reconnectPending.Store(false)
	}
}

// Send writes one frame.
//
// Returns false, after logging a warning, when no connection is open or
// the write fails. The write is bounded by WriteTimeout and ctx's deadline.
func (t *Transport) Send(ctx context.Context, frame Frame) bool {
	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()

	if conn == nil || t.State() != StateOpen {
		t.logWarn("tried to send frame without an open connection")
		return false
	}

	select {
	case <-ctx.Done():
		t.logWarn("send cancelled", "error", ctx.Err())
		return false
	default:
	}

	deadline := time.Now().Add(t.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		t.errorsTotal.Add(1)
		t.logError("set write deadline failed", err)
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.errorsTotal.Add(1)
		t.logError("write frame failed", err)
		return false
	}

	t.framesTx.Add(1)
	t.lastActivity.Store(time.Now().Unix())
	return true
}

// Close stops reconnection, closes the socket and waits for the receive
// loop to finish. Safe to call multiple times.
func (t *Transport) Close() error {
	t.lifeMu.Lock()
	t.done.Close()
	t.lifeMu.Unlock()

	t.connMu.Lock()
	conn := t.conn
	if conn != nil {
		t.state.Store(int32(StateClosing))
	}
	t.connMu.Unlock()

	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		t.writeMu.Unlock()
		conn.Close()
	}

	t.wg.Wait()
	t.state.Store(int32(StateDisconnected))

	t.logInfo("transport closed")
	return nil
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.done.Done():
		return true
	default:
		return false
	}
}

// OnOpen registers an observer for a successful connect.
func (t *Transport) OnOpen(fn func()) {
	t.observerMu.Lock()
	t.onOpen = append(t.onOpen, fn)
	t.observerMu.Unlock()
}

// OnClose registers an observer for connection close, clean or not.
func (t *Transport) OnClose(fn func()) {
	t.observerMu.Lock()
	t.onClose = append(t.onClose, fn)
	t.observerMu.Unlock()
}

// OnError registers an observer for dial failures and abrupt disconnects.
func (t *Transport) OnError(fn func(error)) {
	t.observerMu.Lock()
	t.onError = append(t.onError, fn)
	t.observerMu.Unlock()
}

// OnMessage registers an observer for decoded inbound frames.
func (t *Transport) OnMessage(fn func(Message)) {
	t.observerMu.Lock()
	t.onMessage = append(t.onMessage, fn)
	t.observerMu.Unlock()
}

func (t *Transport) fireOpen() {
	t.observerMu.RLock()
	observers := append([]func(){}, t.onOpen...)
	t.observerMu.RUnlock()

	for _, fn := range observers {
		t.safeCall("open", fn)
	}
}

func (t *Transport) fireClose() {
	t.observerMu.RLock()
	observers := append([]func(){}, t.onClose...)
	t.observerMu.RUnlock()

	for _, fn := range observers {
		t.safeCall("close", fn)
	}
}

func (t *Transport) fireError(err error) {
	t.observerMu.RLock()
	observers := append([]func(error){}, t.onError...)
	t.observerMu.RUnlock()

	for _, fn := range observers {
		t.safeCall("error", func() { fn(err) })
	}
}

func (t *Transport) fireMessage(msg Message) {
	t.observerMu.RLock()
	observers := append([]func(Message){}, t.onMessage...)
	t.observerMu.RUnlock()

	for _, fn := range observers {
		t.safeCall("message", func() { fn(msg) })
	}
}

func (t *Transport) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logError(kind+" observer panic", fmt.Errorf("%v", r))
		}
	}()
	fn()
}

// SetLogger sets the logger for this transport.
func (t *Transport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// URL returns the configured gateway URL.
func (t *Transport) URL() string {
	return t.cfg.URL
}

// State returns the current connection state.
func (t *Transport) State() State {
	return State(t.state.Load())
}

// IsOpen returns true if a connection is open.
func (t *Transport) IsOpen() bool {
	return t.State() == StateOpen
}

// Stats returns current operational statistics.
func (t *Transport) Stats() TransportStats {
	return TransportStats{
		FramesTx:        t.framesTx.Load(),
		FramesRx:        t.framesRx.Load(),
		DecodeErrors:    t.decodeErrors.Load(),
		ErrorsTotal:     t.errorsTotal.Load(),
		ReconnectsTotal: t.reconnectsTotal.Load(),
		LastActivity:    time.Unix(t.lastActivity.Load(), 0),
		State:           t.State(),
	}
}

// HealthCheck verifies the connection is open.
func (t *Transport) HealthCheck(_ context.Context) error {
	if !t.IsOpen() {
		return ErrNotConnected
	}
	return nil
}

func (t *Transport) currentLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}

func (t *Transport) logDebug(msg string, keysAndValues ...any) {
	if logger := t.currentLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (t *Transport) logInfo(msg string, keysAndValues ...any) {
	if logger := t.currentLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (t *Transport) logWarn(msg string, keysAndValues ...any) {
	if logger := t.currentLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (t *Transport) logError(msg string, err error) {
	if logger := t.currentLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
