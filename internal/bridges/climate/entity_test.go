package climate

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/nerrad567/savecair-bridge/internal/savecair"
)

func ptr[T any](v T) *T { return &v }

func TestEntityGetTranslatesValues(t *testing.T) {
	gw := newMockGateway()
	gw.values = map[string]any{
		savecair.SensorTemperatureExtract: 20.5,
		savecair.SensorTargetTemperature:  21.0,
		savecair.SensorCurrentOperation:   "away",
		savecair.KeyCustomFanMode:         "normal",
		savecair.KeyCustomOperation:       "auto",
		savecair.SensorCurrentHumidity:    41,
	}
	e := NewEntity("savecair", gw)

	tests := []struct {
		attr string
		want any
	}{
		{AttrTemperature, 20.5},
		{AttrTargetTemperature, 21.0},
		{AttrPresetMode, PresetIdle},
		{AttrFanMode, FanMedium},
		{AttrHVACMode, HVACAuto},
		{AttrCurrentHumidity, 41},
	}
	for _, tt := range tests {
		t.Run(tt.attr, func(t *testing.T) {
			got, ok := e.Get(tt.attr)
			if !ok || got != tt.want {
				t.Errorf("Get(%q) = %v, %v, want %v", tt.attr, got, ok, tt.want)
			}
		})
	}

	if _, ok := e.Get("swing_mode"); ok {
		t.Error("Get(unknown attribute) reported present")
	}
}

func TestEntityMissingAttributeWarns(t *testing.T) {
	e := NewEntity("savecair", newMockGateway())
	logger := &mockLogger{}
	e.SetLogger(logger)

	if v, ok := e.Get(AttrCurrentHumidity); ok {
		t.Errorf("Get() = %v, want absent", v)
	}
	if !logger.contains("WARN: missing attribute") || !logger.contains(savecair.SensorCurrentHumidity) {
		t.Errorf("expected missing attribute warning naming the register, got %v", logger.lines)
	}
}

func TestEntityState(t *testing.T) {
	gw := newMockGateway()
	gw.values = map[string]any{
		savecair.SensorTemperatureExtract: 20.5,
		savecair.SensorCurrentHumidity:    41,
		savecair.SensorCurrentOperation:   "refresh",
		savecair.KeyCustomFanMode:         "high",
		savecair.KeyCustomOperation:       "auto",
	}
	st := NewEntity("savecair", gw).State()

	if st.CurrentTemperature == nil || *st.CurrentTemperature != 20.5 {
		t.Errorf("CurrentTemperature = %v, want 20.5", st.CurrentTemperature)
	}
	if st.CurrentHumidity == nil || *st.CurrentHumidity != 41 {
		t.Errorf("CurrentHumidity = %v, want 41", st.CurrentHumidity)
	}
	if st.TargetTemperature != nil {
		t.Errorf("TargetTemperature = %v, want nil when unreported", *st.TargetTemperature)
	}
	if st.PresetMode != PresetRefresh || st.FanMode != FanHigh || st.HVACMode != HVACAuto {
		t.Errorf("modes = %s/%s/%s", st.PresetMode, st.FanMode, st.HVACMode)
	}
	if st.TemperatureUnit != "celsius" || st.TargetTemperatureStep != 1 {
		t.Errorf("unit/step = %s/%v", st.TemperatureUnit, st.TargetTemperatureStep)
	}
	if !reflect.DeepEqual(st.HVACModes, []string{"auto", "off"}) {
		t.Errorf("HVACModes = %v", st.HVACModes)
	}
	if !reflect.DeepEqual(st.FanModes, []string{"off", "low", "medium", "high", "maximum"}) {
		t.Errorf("FanModes = %v", st.FanModes)
	}
	if len(st.PresetModes) != 7 {
		t.Errorf("PresetModes = %v", st.PresetModes)
	}
}

func TestEntityApplyOrderAndTranslation(t *testing.T) {
	gw := newMockGateway()
	e := NewEntity("savecair", gw)

	err := e.Apply(context.Background(), Settings{
		PresetMode:  ptr(PresetIdle),
		FanMode:     ptr(FanMedium),
		Temperature: ptr(21.5),
		HVACMode:    ptr(HVACOff),
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := []setCall{
		{savecair.KeyCustomOperation, "off"},
		{savecair.SensorTargetTemperature, 21.5},
		{savecair.SensorCurrentFanMode, "normal"},
		{savecair.SensorModeChangeRequest, "away"},
	}
	if got := gw.setCalls(); !reflect.DeepEqual(got, want) {
		t.Errorf("set calls = %v, want %v", got, want)
	}
}

func TestEntityApplyRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
	}{
		{"hvac heat", Settings{HVACMode: ptr("heat")}},
		{"fan turbo", Settings{FanMode: ptr("turbo")}},
		{"preset away", Settings{PresetMode: ptr("away")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newMockGateway()
			err := NewEntity("savecair", gw).Apply(context.Background(), tt.settings)
			if !errors.Is(err, ErrUnsupportedValue) {
				t.Errorf("Apply() error = %v, want ErrUnsupportedValue", err)
			}
			if n := len(gw.setCalls()); n != 0 {
				t.Errorf("set calls = %d, want 0", n)
			}
		})
	}
}

func TestEntityApplyStopsAtFirstFailure(t *testing.T) {
	gw := newMockGateway()
	gw.setErr[savecair.SensorTargetTemperature] = savecair.ErrSendFailed
	e := NewEntity("savecair", gw)

	err := e.Apply(context.Background(), Settings{HVACMode: ptr(HVACAuto), Temperature: ptr(20.0), FanMode: ptr(FanLow)})
	if !errors.Is(err, savecair.ErrSendFailed) {
		t.Fatalf("Apply() error = %v, want ErrSendFailed", err)
	}
	if got := gw.setCalls(); len(got) != 1 || got[0].Key != savecair.KeyCustomOperation {
		t.Errorf("set calls = %v, want only custom_operation", got)
	}
}

func TestEntitySetters(t *testing.T) {
	gw := newMockGateway()
	e := NewEntity("savecair", gw)
	ctx := context.Background()

	if err := e.SetHVACMode(ctx, HVACAuto); err != nil {
		t.Fatal(err)
	}
	if err := e.SetTemperature(ctx, 19); err != nil {
		t.Fatal(err)
	}
	if err := e.SetFanMode(ctx, FanMaximum); err != nil {
		t.Fatal(err)
	}
	if err := e.SetPresetMode(ctx, PresetFireplace); err != nil {
		t.Fatal(err)
	}

	got := gw.setCalls()
	if len(got) != 4 {
		t.Fatalf("set calls = %v", got)
	}
	if got[2].Value != "maximum" {
		t.Errorf("fan value = %v, want maximum passed through", got[2].Value)
	}
	if got[3].Value != "fireplace" {
		t.Errorf("preset value = %v, want fireplace", got[3].Value)
	}

	if !e.Update(ctx) || gw.polls != 1 {
		t.Errorf("Update() polls = %d, want 1", gw.polls)
	}
}
