package climate

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/savecair-bridge/internal/savecair"
)

// MQTT message types exchanged on savecair/{bridge_id}/*.

// Command names accepted on the command topic.
const (
	// CommandSet writes one register through Session.Set.
	CommandSet = "set"

	// CommandClimate applies climate Settings.
	CommandClimate = "climate"

	// CommandPoll requests an immediate read of the subscribed sensors.
	CommandPoll = "poll"
)

// CommandMessage is received on savecair/{bridge_id}/command.
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. The bridge
	// assigns one when it is empty.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// Command is one of "set", "climate" or "poll".
	Command string `json:"command"`

	// Key and Value are used by "set".
	Key   string `json:"key,omitempty"`
	Value any    `json:"value,omitempty"`

	// Settings is used by "climate".
	Settings *Settings `json:"settings,omitempty"`

	// Source indicates where the command originated ("mqtt", "api").
	Source string `json:"source,omitempty"`
}

// UnmarshalJSON accepts an empty or RFC 3339 timestamp.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// Validate checks the fields required by the command.
func (m CommandMessage) Validate() error {
	switch m.Command {
	case CommandSet:
		if m.Key == "" {
			return fmt.Errorf("%w: set requires key", ErrInvalidCommand)
		}
	case CommandClimate:
		if m.Settings == nil {
			return fmt.Errorf("%w: climate requires settings", ErrInvalidCommand)
		}
	case CommandPoll:
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, m.Command)
	}
	return nil
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was written to the gateway.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeUnsupportedMode   = "UNSUPPORTED_MODE"
	ErrCodeNotConnected      = "NOT_CONNECTED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage is published on savecair/{bridge_id}/ack.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates a successful acknowledgement.
func NewAckMessage(cmd CommandMessage) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Command:   cmd.Command,
		Status:    AckAccepted,
	}
}

// NewAckError creates a failed acknowledgement with a code derived from err.
func NewAckError(cmd CommandMessage, err error) AckMessage {
	ack := NewAckMessage(cmd)
	ack.Status = AckFailed
	ack.Error = &AckError{Code: ErrorCode(err), Message: err.Error()}
	return ack
}

// ErrorCode classifies a command error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, savecair.ErrInvalidValue):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrUnsupportedValue),
		errors.Is(err, savecair.ErrOperationModeNotExist),
		errors.Is(err, savecair.ErrFanModeNotExist):
		return ErrCodeUnsupportedMode
	case errors.Is(err, savecair.ErrSendFailed),
		errors.Is(err, savecair.ErrNotConnected):
		return ErrCodeNotConnected
	default:
		return ErrCodeBridgeError
	}
}

// StateMessage is published retained on savecair/{bridge_id}/state.
type StateMessage struct {
	Bridge    string         `json:"bridge"`
	MachineID string         `json:"machine_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
}

// NewStateMessage creates a state message from a session snapshot.
// Bookkeeping keys are dropped from the published state.
func NewStateMessage(bridgeID string, snapshot savecair.Snapshot) StateMessage {
	state := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		switch k {
		case savecair.KeyType, savecair.KeyErrorTypeID, savecair.KeyMachineID:
			continue
		}
		state[k] = v
	}
	machineID, _ := snapshot.String(savecair.KeyMachineID)
	return StateMessage{
		Bridge:    bridgeID,
		MachineID: machineID,
		Timestamp: time.Now().UTC(),
		State:     state,
	}
}

// ErrorMessage is published on savecair/{bridge_id}/error when the
// gateway reports a protocol error.
type ErrorMessage struct {
	Bridge      string    `json:"bridge"`
	Timestamp   time.Time `json:"timestamp"`
	ErrorTypeID string    `json:"error_type_id"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on savecair/{bridge_id}/health.
type HealthMessage struct {
	Bridge        string             `json:"bridge"`
	Timestamp     time.Time          `json:"timestamp"`
	Status        HealthStatus       `json:"status"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Gateway       *GatewayStatus     `json:"gateway,omitempty"`
	Statistics    *GatewayStatistics `json:"statistics,omitempty"`
	Reason        string             `json:"reason,omitempty"`
}

// GatewayStatus describes the savecair gateway connection.
type GatewayStatus struct {
	// Status is "connected" or "disconnected".
	Status        string     `json:"status"`
	Authenticated bool       `json:"authenticated"`
	MachineID     string     `json:"machine_id,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}

// GatewayStatistics contains transport counters.
type GatewayStatistics struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	DecodeErrors   uint64 `json:"decode_errors"`
	Errors         uint64 `json:"errors"`
	Reconnects     uint64 `json:"reconnects"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, gw Gateway, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}
	if gw == nil {
		return msg
	}

	stats := gw.Stats()
	msg.Gateway = &GatewayStatus{
		Status:        "disconnected",
		Authenticated: gw.IsAuthenticated(),
		MachineID:     gw.MachineID(),
	}
	if gw.IsConnected() {
		msg.Gateway.Status = "connected"
	}
	if !stats.LastActivity.IsZero() && stats.LastActivity.Unix() > 0 {
		last := stats.LastActivity.UTC()
		msg.Gateway.LastActivity = &last
	}
	msg.Statistics = &GatewayStatistics{
		FramesReceived: stats.FramesRx,
		FramesSent:     stats.FramesTx,
		DecodeErrors:   stats.DecodeErrors,
		Errors:         stats.ErrorsTotal,
		Reconnects:     stats.ReconnectsTotal,
	}
	return msg
}
