package climate

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/savecair-bridge/internal/savecair"
)

func TestCommandMessageUnmarshal(t *testing.T) {
	cmd := decode[CommandMessage](t, []byte(`{"id":"c1","timestamp":"2026-03-01T10:00:00Z","command":"set","key":"main_airflow","value":"high"}`))

	if cmd.ID != "c1" || cmd.Command != CommandSet || cmd.Key != "main_airflow" || cmd.Value != "high" {
		t.Errorf("decoded = %+v", cmd)
	}
	if !cmd.Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", cmd.Timestamp)
	}

	settings := decode[CommandMessage](t, []byte(`{"command":"climate","settings":{"fan_mode":"low","temperature":20}}`))
	if settings.Settings == nil || *settings.Settings.FanMode != "low" || *settings.Settings.Temperature != 20 {
		t.Errorf("settings = %+v", settings.Settings)
	}
	if !settings.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero when omitted", settings.Timestamp)
	}

	var bad CommandMessage
	if err := bad.UnmarshalJSON([]byte(`{"timestamp":"yesterday"}`)); err == nil {
		t.Error("expected error for invalid timestamp")
	}
}

func TestCommandMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     CommandMessage
		wantErr bool
	}{
		{"set", CommandMessage{Command: CommandSet, Key: "main_airflow"}, false},
		{"set without key", CommandMessage{Command: CommandSet}, true},
		{"climate", CommandMessage{Command: CommandClimate, Settings: &Settings{}}, false},
		{"climate without settings", CommandMessage{Command: CommandClimate}, true},
		{"poll", CommandMessage{Command: CommandPoll}, false},
		{"unknown", CommandMessage{Command: "reboot"}, true},
		{"empty", CommandMessage{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("Validate() error = %v, want ErrInvalidCommand", err)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInvalidCommand, ErrCodeInvalidCommand},
		{fmt.Errorf("%w: temperature x", savecair.ErrInvalidValue), ErrCodeInvalidParameters},
		{ErrUnsupportedValue, ErrCodeUnsupportedMode},
		{fmt.Errorf("set preset_mode: %w", savecair.ErrOperationModeNotExist), ErrCodeUnsupportedMode},
		{savecair.ErrFanModeNotExist, ErrCodeUnsupportedMode},
		{fmt.Errorf("%w: %w", savecair.ErrSendFailed, savecair.ErrNotConnected), ErrCodeNotConnected},
		{errors.New("boom"), ErrCodeBridgeError},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestNewAckError(t *testing.T) {
	ack := NewAckError(CommandMessage{ID: "c9", Command: CommandSet}, savecair.ErrFanModeNotExist)

	if ack.CommandID != "c9" || ack.Status != AckFailed || ack.Command != CommandSet {
		t.Errorf("ack = %+v", ack)
	}
	if ack.Error == nil || ack.Error.Code != ErrCodeUnsupportedMode {
		t.Errorf("ack.Error = %+v", ack.Error)
	}
}

func TestNewStateMessageDropsBookkeeping(t *testing.T) {
	msg := NewStateMessage("savecair-01", savecair.Snapshot{
		"main_airflow": "normal",
		"machineID":    "IAM_1",
		"type":         "READ",
		"errorTypeId":  "X",
	})

	if msg.MachineID != "IAM_1" || msg.Bridge != "savecair-01" {
		t.Errorf("msg = %+v", msg)
	}
	if len(msg.State) != 1 || msg.State["main_airflow"] != "normal" {
		t.Errorf("State = %v, want only main_airflow", msg.State)
	}
}

func TestNewHealthMessage(t *testing.T) {
	gw := newMockGateway()
	gw.stats = savecair.TransportStats{FramesRx: 5, FramesTx: 3, ReconnectsTotal: 1, LastActivity: time.Unix(1700000000, 0)}

	msg := NewHealthMessage("savecair-01", "1.2.3", HealthHealthy, gw, time.Now().Add(-time.Minute))

	if msg.UptimeSeconds < 59 {
		t.Errorf("UptimeSeconds = %d", msg.UptimeSeconds)
	}
	if msg.Gateway == nil || msg.Gateway.Status != "connected" || !msg.Gateway.Authenticated || msg.Gateway.MachineID != "IAM_1" {
		t.Errorf("Gateway = %+v", msg.Gateway)
	}
	if msg.Gateway.LastActivity == nil {
		t.Error("LastActivity not set")
	}
	if msg.Statistics.FramesReceived != 5 || msg.Statistics.FramesSent != 3 || msg.Statistics.Reconnects != 1 {
		t.Errorf("Statistics = %+v", msg.Statistics)
	}

	bare := NewHealthMessage("savecair-01", "1.2.3", HealthStarting, nil, time.Now())
	if bare.Gateway != nil || bare.Statistics != nil {
		t.Error("nil gateway must leave connection details empty")
	}
}
