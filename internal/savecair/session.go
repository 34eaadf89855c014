package savecair

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// defaultPollInterval is the delay between sensor reads.
const defaultPollInterval = 60 * time.Second

// SessionConfig holds session configuration.
type SessionConfig struct {
	// Transport configures the websocket connection.
	Transport TransportConfig

	// IAMID and Password are the default login credentials.
	IAMID    string
	Password string

	// PollInterval is the delay between sensor reads once logged in.
	// Default: 60 seconds.
	PollInterval time.Duration

	// LoadAll subscribes to every available sensor and ignores Sensors.
	LoadAll bool

	// Sensors is the subscribed sensor set. Every key must be available.
	Sensors []string

	// LoginTimeout bounds Login. Zero means no timeout beyond the
	// caller's context.
	LoginTimeout time.Duration
}

// Snapshot is a copy of the session state: register key to last value.
type Snapshot map[string]any

// String returns the value of key if it is a string.
func (s Snapshot) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Float returns the value of key if it is numeric.
func (s Snapshot) Float(key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// ErrorPayload is an ERROR frame pushed by the gateway.
type ErrorPayload struct {
	ErrorTypeID string
	Raw         map[string]any
}

// Session is a logged-in conversation with one ventilation unit.
//
// A Session owns its Transport and registers its handlers on it before
// any other observer, so the snapshot is always merged before host
// observers run.
//
// Lifecycle:
//   - Connect dials; every successful open starts a poll loop that waits
//     for login, reads the subscribed sensors, sleeps PollInterval and
//     repeats until that connection closes.
//   - Login authenticates and opens the authentication gate.
//   - Every close clears the gate, so polling after a reconnect waits for
//     the next Login.
type Session struct {
	cfg        SessionConfig
	transport  *Transport
	subscribed []string

	stateMu sync.RWMutex
	state   map[string]any

	authGate *event

	// pollMu guards connClosed, which is closed when the connection that
	// started the current poll loop goes away. authGate transitions tied to
	// the connection also happen under it.
	pollMu     sync.Mutex
	connClosed chan struct{}

	observerMu sync.RWMutex
	onUpdate   []func(Snapshot)
	onError    []func(ErrorPayload)
	onClose    []func()

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSession creates a session and its transport. Nothing is dialled
// until Connect.
//
// Parameters:
//   - cfg: Session configuration
//
// Returns:
//   - *Session: Session ready to Connect
//   - error: ErrUnknownSensor if Sensors names an unavailable key
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}

	var subscribed []string
	if cfg.LoadAll {
		subscribed = AvailableSensors()
	} else {
		seen := make(map[string]bool, len(cfg.Sensors))
		for _, key := range cfg.Sensors {
			if !IsAvailable(key) {
				return nil, fmt.Errorf("%w: %q", ErrUnknownSensor, key)
			}
			if !seen[key] {
				seen[key] = true
				subscribed = append(subscribed, key)
			}
		}
		sort.Strings(subscribed)
	}

	s := &Session{
		cfg:        cfg,
		transport:  NewTransport(cfg.Transport),
		subscribed: subscribed,
		state:      make(map[string]any),
		authGate:   newEvent(),
		done:       newCloseOnce(),
	}

	s.transport.OnOpen(s.handleOpen)
	s.transport.OnMessage(s.handleMessage)
	s.transport.OnClose(s.handleClose)

	return s, nil
}

// Connect dials the gateway. See Transport.Connect.
func (s *Session) Connect(ctx context.Context) error {
	return s.transport.Connect(ctx)
}

// Close stops the transport and the poll loop.
func (s *Session) Close() error {
	err := s.transport.Close()
	s.done.Close()
	s.wg.Wait()
	return err
}

// Login authenticates with the gateway.
//
// The first frame or transport error after the login frame is taken as
// the response. Empty iamID or password fall back to the configured
// credentials.
//
// Parameters:
//   - ctx: Context for cancellation; LoginTimeout is applied on top
//   - iamID: Unit IAM identifier, or "" for the configured one
//   - password: Unit password, or "" for the configured one
//
// Returns:
//   - Snapshot: State copy including machineID
//   - error: ErrWrongPassword, ErrAccessDenied, ErrDeviceNotConnected,
//     ErrUnknownAuth, ErrNotConnected or ErrLoginTimeout
func (s *Session) Login(ctx context.Context, iamID, password string) (Snapshot, error) {
	if iamID == "" {
		iamID = s.cfg.IAMID
	}
	if password == "" {
		password = s.cfg.Password
	}

	if s.cfg.LoginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LoginTimeout)
		defer cancel()
	}

	frame, err := EncodeLogin(iamID, password)
	if err != nil {
		return nil, err
	}

	s.transport.pending.Clear()
	if !s.transport.Send(ctx, frame) {
		return nil, fmt.Errorf("%w: login frame not sent", ErrNotConnected)
	}

	select {
	case <-s.transport.pending.Wait():
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrLoginTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	}

	s.stateMu.RLock()
	msgType, _ := s.state[KeyType].(MessageType)
	errorTypeID, _ := s.state[KeyErrorTypeID].(string)
	snapshot := s.snapshotLocked()
	s.stateMu.RUnlock()

	if msgType == TypeError {
		return nil, fmt.Errorf("%w: %s", classifyLoginError(errorTypeID), errorTypeID)
	}

	// handleClose clears the gate under pollMu, so a drop racing this
	// check cannot leave the gate set on a dead connection.
	s.pollMu.Lock()
	open := s.connClosed != nil && s.transport.IsOpen()
	if open {
		s.authGate.Set()
	}
	s.pollMu.Unlock()
	if !open {
		return nil, fmt.Errorf("%w: connection lost during login", ErrNotConnected)
	}

	s.logInfo("logged in to gateway", "machine_id", snapshot[KeyMachineID])
	return snapshot, nil
}

// PollNow sends one READ frame for the subscribed sensor set. It does not
// check the authentication gate.
func (s *Session) PollNow(ctx context.Context) bool {
	frame, err := EncodeRead(s.subscribed)
	if err != nil {
		s.logError("encode read frame failed", err)
		return false
	}
	return s.transport.Send(ctx, frame)
}

func (s *Session) handleOpen() {
	closed := make(chan struct{})

	s.pollMu.Lock()
	if s.connClosed != nil {
		close(s.connClosed)
	}
	s.connClosed = closed
	s.pollMu.Unlock()

	s.wg.Add(1)
	go s.pollLoop(closed)
}

func (s *Session) handleClose() {
	s.pollMu.Lock()
	s.authGate.Clear()
	if s.connClosed != nil {
		close(s.connClosed)
		s.connClosed = nil
	}
	s.pollMu.Unlock()

	s.observerMu.RLock()
	observers := append([]func(){}, s.onClose...)
	s.observerMu.RUnlock()

	for _, fn := range observers {
		fn()
	}
}

// pollLoop polls until closed is closed or the transport is no longer open.
func (s *Session) pollLoop(closed <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-closed:
			return
		case <-s.done.Done():
			return
		case <-s.authGate.Wait():
		}

		if !s.transport.IsOpen() {
			return
		}

		s.logDebug("updating sensors", "count", len(s.subscribed))
		s.PollNow(context.Background())

		timer := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-closed:
			timer.Stop()
			return
		case <-s.done.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Session) handleMessage(msg Message) {
	var (
		updated  bool
		snapshot Snapshot
		payload  *ErrorPayload
	)

	s.stateMu.Lock()
	if msg.HasType {
		s.state[KeyType] = msg.Type
	}

	switch msg.Kind() {
	case TypeLoggedIn:
		s.mergeLocked(map[string]any{KeyMachineID: msg.MachineID})
		updated = true
	case TypeRead:
		if msg.ReadValues != nil {
			s.mergeLocked(msg.ReadValues)
			updated = true
		}
	case TypeValueChanged:
		if msg.ChangedValues != nil {
			s.mergeLocked(msg.ChangedValues)
			updated = true
		}
	case TypeError:
		s.state[KeyType] = TypeError
		s.state[KeyErrorTypeID] = msg.ErrorTypeID
		payload = &ErrorPayload{ErrorTypeID: msg.ErrorTypeID, Raw: msg.Raw}
	}

	if updated {
		snapshot = s.snapshotLocked()
	}
	s.stateMu.Unlock()

	switch {
	case updated:
		s.logDebug("state updated", "type", msg.Type, "keys", len(snapshot))
		s.notifyUpdate(snapshot)
	case payload != nil:
		s.logWarn("gateway reported error", "error_type", payload.ErrorTypeID)
		s.notifyError(*payload)
	default:
		s.logWarn("ignoring unhandled frame", "type", msg.Type)
	}
}

// mergeLocked stores normalised values and recomputes the synthetic keys.
// Caller holds stateMu.
func (s *Session) mergeLocked(values map[string]any) {
	for k, v := range values {
		s.state[k] = Normalize(k, v)
	}
	s.deriveLocked()
}

// deriveLocked sets custom_fan_mode and custom_operation from the current
// user mode. Modes outside the timed set, including ones the unit reports
// but cannot be asked for such as cooker_hood, collapse to "off".
func (s *Session) deriveLocked() {
	current, ok := s.state[SensorCurrentOperation]
	if !ok {
		return
	}

	name, _ := current.(string)
	if field, ok := customFanField(OperationMode(name)); ok {
		if fan, ok := s.state[field]; ok {
			s.state[KeyCustomFanMode] = fan
		}
		s.state[KeyCustomOperation] = string(OperationAuto)
		return
	}

	s.state[KeyCustomFanMode] = string(FanOff)
	s.state[KeyCustomOperation] = string(OperationOff)
}

func (s *Session) snapshotLocked() Snapshot {
	out := make(Snapshot, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

func (s *Session) notifyUpdate(snapshot Snapshot) {
	s.observerMu.RLock()
	observers := append([]func(Snapshot){}, s.onUpdate...)
	s.observerMu.RUnlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

func (s *Session) notifyError(payload ErrorPayload) {
	s.observerMu.RLock()
	observers := append([]func(ErrorPayload){}, s.onError...)
	s.observerMu.RUnlock()

	for _, fn := range observers {
		fn(payload)
	}
}

// Set routes a logical register write to its command.
//
// Supported keys are main_temperature_offset (Celsius), mode_change_request
// (an OperationMode), main_airflow (a FanMode) and custom_operation ("auto"
// or "off"). Other keys are ignored without error.
func (s *Session) Set(ctx context.Context, key string, value any) error {
	switch key {
	case SensorTargetTemperature:
		celsius, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%w: temperature %v", ErrInvalidValue, value)
		}
		return s.SetTemperature(ctx, celsius)
	case SensorModeChangeRequest:
		return s.SetOperationMode(ctx, OperationMode(fmt.Sprint(value)))
	case SensorCurrentFanMode:
		return s.SetFanMode(ctx, FanMode(fmt.Sprint(value)))
	case KeyCustomOperation:
		return s.setCustomOperation(ctx, OperationMode(fmt.Sprint(value)))
	default:
		s.logDebug("ignoring set for unsupported key", "key", key)
		return nil
	}
}

// setCustomOperation handles the two-state hvac shortcut: "off" is manual
// mode with the fan off, "auto" is auto mode. Other values are ignored.
func (s *Session) setCustomOperation(ctx context.Context, mode OperationMode) error {
	switch mode {
	case OperationOff:
		if err := s.SetOperationMode(ctx, OperationManual); err != nil {
			return err
		}
		return s.SetFanMode(ctx, FanOff)
	case OperationAuto:
		return s.SetOperationMode(ctx, OperationAuto)
	default:
		s.logDebug("ignoring unsupported custom operation", "value", mode)
		return nil
	}
}

// SetTemperature writes the target temperature in degrees Celsius.
func (s *Session) SetTemperature(ctx context.Context, celsius float64) error {
	return s.write(ctx, map[string]any{SensorTargetTemperature: celsius})
}

// SetOperationMode switches the unit's user mode. Timed modes are written
// with their default duration in the same frame.
//
// Returns ErrOperationModeNotExist, without sending, for an unknown mode.
func (s *Session) SetOperationMode(ctx context.Context, mode OperationMode) error {
	fields, err := operationWrites(mode)
	if err != nil {
		return err
	}
	return s.write(ctx, fields)
}

// SetFanMode sets the manual airflow level.
//
// Returns ErrFanModeNotExist, without sending, for an unknown mode.
func (s *Session) SetFanMode(ctx context.Context, mode FanMode) error {
	fields, err := fanWrites(mode)
	if err != nil {
		return err
	}
	return s.write(ctx, fields)
}

func (s *Session) write(ctx context.Context, fields map[string]any) error {
	frame, err := EncodeWrite(fields)
	if err != nil {
		return err
	}
	if !s.transport.Send(ctx, frame) {
		return fmt.Errorf("%w: %w", ErrSendFailed, ErrNotConnected)
	}
	return nil
}

// Get returns the last known value of key.
func (s *Session) Get(key string) (any, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	v, ok := s.state[key]
	return v, ok
}

// Snapshot returns a copy of the full state.
func (s *Session) Snapshot() Snapshot {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.snapshotLocked()
}

// CurrentOperation returns the unit's current user mode.
func (s *Session) CurrentOperation() (OperationMode, bool) {
	v, ok := s.Get(SensorCurrentOperation)
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	if !ok {
		return "", false
	}
	return OperationMode(name), true
}

// MachineID returns the machine identity assigned at login, or "".
func (s *Session) MachineID() string {
	v, _ := s.Get(KeyMachineID)
	id, _ := v.(string)
	return id
}

// IsAuthenticated reports whether the authentication gate is open.
func (s *Session) IsAuthenticated() bool {
	return s.authGate.IsSet()
}

// Subscribed returns the subscribed sensor keys, sorted.
func (s *Session) Subscribed() []string {
	return append([]string(nil), s.subscribed...)
}

// IsConnected reports whether the gateway connection is open.
func (s *Session) IsConnected() bool {
	return s.transport.IsOpen()
}

// Stats returns the transport statistics.
func (s *Session) Stats() TransportStats {
	return s.transport.Stats()
}

// Transport returns the underlying transport.
func (s *Session) Transport() *Transport {
	return s.transport
}

// OnUpdate registers an observer called with a state copy after every
// merge. Observers run on the receive goroutine.
func (s *Session) OnUpdate(fn func(Snapshot)) {
	s.observerMu.Lock()
	s.onUpdate = append(s.onUpdate, fn)
	s.observerMu.Unlock()
}

// OnError registers an observer for ERROR frames pushed by the gateway.
func (s *Session) OnError(fn func(ErrorPayload)) {
	s.observerMu.Lock()
	s.onError = append(s.onError, fn)
	s.observerMu.Unlock()
}

// OnClose registers an observer for connection close.
func (s *Session) OnClose(fn func()) {
	s.observerMu.Lock()
	s.onClose = append(s.onClose, fn)
	s.observerMu.Unlock()
}

// SetLogger sets the logger for the session and its transport.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
	s.transport.SetLogger(logger)
}

func (s *Session) currentLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if logger := s.currentLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if logger := s.currentLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (s *Session) logWarn(msg string, keysAndValues ...any) {
	if logger := s.currentLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (s *Session) logError(msg string, err error) {
	if logger := s.currentLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
