package climate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/savecair-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/savecair-bridge/internal/savecair"
)

// Bridge operation constants.
const (
	// commandTimeout bounds the gateway write for one command.
	commandTimeout = 5 * time.Second

	// commandQoS is used for the command subscription and acks.
	commandQoS = 1
)

// Bridge mirrors a savecair session onto MQTT.
// It handles:
//   - Publishing every session update as retained state
//   - Executing commands received on the command topic, with acks
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	id      string
	mqtt    MQTTClient
	gateway Gateway
	entity  *Entity
	health  *HealthReporter
	topics  mqtt.Topics

	// Last published per-sensor values, for change detection.
	stateCache   map[string]any
	stateCacheMu sync.Mutex

	lifeMu    sync.Mutex // guards done against wg.Add
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	statesPublished atomic.Uint64
	commandsTotal   atomic.Uint64
	commandsFailed  atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// Gateway is the savecair session surface the bridge needs.
// *savecair.Session satisfies it.
type Gateway interface {
	Device
	MachineID() string
	IsConnected() bool
	IsAuthenticated() bool
	Stats() savecair.TransportStats
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// BridgeID scopes every topic: savecair/{BridgeID}/...
	BridgeID string

	// Version is reported in health messages.
	Version string

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	MQTTClient MQTTClient
	Gateway    Gateway

	// Logger is optional.
	Logger Logger
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.BridgeID == "" {
		return nil, fmt.Errorf("bridge id is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		id:         opts.BridgeID,
		mqtt:       opts.MQTTClient,
		gateway:    opts.Gateway,
		entity:     NewEntity(opts.BridgeID, opts.Gateway),
		stateCache: make(map[string]any),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Gateway:   opts.Gateway,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
		b.entity.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to the command topic and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := b.topics.BridgeCommand(b.id)
	if err := b.mqtt.Subscribe(commandTopic, commandQoS, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.health.Start(ctx)

	b.logInfo("bridge started", "bridge_id", b.id)
	return nil
}

// Stop cancels in-flight commands, stops health reporting and waits for
// pending handlers.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.lifeMu.Lock()
		close(b.done)
		b.lifeMu.Unlock()
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Entity returns the climate entity backed by the gateway.
func (b *Bridge) Entity() *Entity {
	return b.entity
}

// Health returns the current health message.
func (b *Bridge) Health() HealthMessage {
	return b.health.Current()
}

// HandleUpdate publishes a session snapshot: the full state, every sensor
// value that changed since the last publish, and the climate attributes.
// All three are retained.
func (b *Bridge) HandleUpdate(snapshot savecair.Snapshot) {
	if !b.mqtt.IsConnected() {
		b.logDebug("skipping state publish, MQTT disconnected")
		return
	}

	if err := b.publishJSON(b.topics.BridgeState(b.id), NewStateMessage(b.id, snapshot), true); err != nil {
		b.logError("failed to publish state", err)
	} else {
		b.statesPublished.Add(1)
	}

	for _, key := range b.changedKeys(snapshot) {
		if err := b.publishJSON(b.topics.BridgeSensorState(b.id, key), snapshot[key], true); err != nil {
			b.logError("failed to publish sensor state", err)
			b.forget(key)
		}
	}

	if err := b.publishJSON(b.topics.BridgeClimate(b.id), b.entity.State(), true); err != nil {
		b.logError("failed to publish climate state", err)
	}
}

// HandleError publishes a gateway protocol error.
func (b *Bridge) HandleError(payload savecair.ErrorPayload) {
	msg := ErrorMessage{
		Bridge:      b.id,
		Timestamp:   time.Now().UTC(),
		ErrorTypeID: payload.ErrorTypeID,
	}
	if err := b.publishJSON(b.topics.BridgeError(b.id), msg, false); err != nil {
		b.logError("failed to publish gateway error", err)
	}
}

// changedKeys returns the sorted sensor keys whose value differs from the
// last publish, and records the new values.
func (b *Bridge) changedKeys(snapshot savecair.Snapshot) []string {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	var changed []string
	for key, v := range snapshot {
		switch key {
		case savecair.KeyType, savecair.KeyErrorTypeID, savecair.KeyMachineID:
			continue
		}
		if old, ok := b.stateCache[key]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		b.stateCache[key] = v
		changed = append(changed, key)
	}
	sort.Strings(changed)
	return changed
}

func (b *Bridge) forget(key string) {
	b.stateCacheMu.Lock()
	delete(b.stateCache, key)
	b.stateCacheMu.Unlock()
}

// ClearStateCache forces the next update to republish every sensor.
// Call after the MQTT connection is re-established.
func (b *Bridge) ClearStateCache() {
	b.stateCacheMu.Lock()
	b.stateCache = make(map[string]any)
	b.stateCacheMu.Unlock()
}

// handleMQTTMessage parses and executes a command, then publishes its ack.
func (b *Bridge) handleMQTTMessage(_ string, payload []byte) {
	if !b.beginCommand() {
		return
	}
	defer b.wg.Done()

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		b.publishAck(NewAckError(CommandMessage{ID: uuid.NewString()}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)))
		return
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}

	b.publishAck(b.Execute(b.ctx, cmd))
}

// beginCommand registers an in-flight command with wg. It reports false
// once Stop has begun, so no Add races Stop's Wait.
func (b *Bridge) beginCommand() bool {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	select {
	case <-b.done:
		return false
	default:
	}
	b.wg.Add(1)
	return true
}

// Execute runs a command against the gateway and returns its
// acknowledgement. A missing command ID is filled with a new UUID.
func (b *Bridge) Execute(ctx context.Context, cmd CommandMessage) AckMessage {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	b.commandsTotal.Add(1)

	b.logInfo("received command",
		"command_id", cmd.ID,
		"command", cmd.Command,
		"key", cmd.Key,
		"source", cmd.Source)

	if err := b.executeCommand(ctx, cmd); err != nil {
		b.commandsFailed.Add(1)
		b.logWarn("command failed", "command_id", cmd.ID, "error", err)
		return NewAckError(cmd, err)
	}
	return NewAckMessage(cmd)
}

func (b *Bridge) executeCommand(ctx context.Context, cmd CommandMessage) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd.Command {
	case CommandSet:
		return b.gateway.Set(ctx, cmd.Key, cmd.Value)
	case CommandClimate:
		return b.entity.Apply(ctx, *cmd.Settings)
	case CommandPoll:
		if !b.gateway.PollNow(ctx) {
			return fmt.Errorf("%w: poll", savecair.ErrNotConnected)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, cmd.Command)
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	if err := b.publishJSON(b.topics.BridgeAck(b.id), ack, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return b.mqtt.Publish(topic, payload, commandQoS, retained)
}

// BridgeMetrics contains counters for the API metrics endpoint.
type BridgeMetrics struct {
	Connected       bool
	Authenticated   bool
	Status          HealthStatus
	StatesPublished uint64
	CommandsTotal   uint64
	CommandsFailed  uint64
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() BridgeMetrics {
	status, _ := b.health.determineStatus()
	return BridgeMetrics{
		Connected:       b.gateway.IsConnected(),
		Authenticated:   b.gateway.IsAuthenticated(),
		Status:          status,
		StatesPublished: b.statesPublished.Load(),
		CommandsTotal:   b.commandsTotal.Load(),
		CommandsFailed:  b.commandsFailed.Load(),
	}
}

// IsCommandError reports whether err came from command validation rather
// than the gateway.
func IsCommandError(err error) bool {
	return errors.Is(err, ErrInvalidCommand) || errors.Is(err, ErrUnsupportedValue)
}

// SetLogger sets the logger for the bridge, its entity and health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
	b.entity.SetLogger(logger)
}

func (b *Bridge) currentLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.currentLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.currentLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.currentLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.currentLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
