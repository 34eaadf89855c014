package climate

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/savecair-bridge/internal/savecair"
)

// Climate attribute names.
const (
	AttrTemperature       = "temperature"
	AttrTargetTemperature = "target_temperature"
	AttrPresetMode        = "preset_mode"
	AttrFanMode           = "fan_mode"
	AttrHVACMode          = "hvac_mode"
	AttrCurrentHumidity   = "current_humidity"
)

// HVAC modes.
const (
	HVACAuto = "auto"
	HVACOff  = "off"
)

// Fan modes. FanMaximum is reported by the unit but cannot be selected.
const (
	FanOff     = "off"
	FanLow     = "low"
	FanMedium  = "medium"
	FanHigh    = "high"
	FanMaximum = "maximum"
)

// Presets.
const (
	PresetAuto      = "auto"
	PresetManual    = "manual"
	PresetCrowded   = "crowded"
	PresetRefresh   = "refresh"
	PresetFireplace = "fireplace"
	PresetHoliday   = "holiday"
	PresetIdle      = "idle"
)

const (
	// TemperatureUnit is the unit of every temperature attribute.
	TemperatureUnit = "celsius"

	// TargetTemperatureStep is the setpoint resolution in degrees.
	TargetTemperatureStep = 1.0
)

// readKeys maps climate attributes onto snapshot keys.
var readKeys = map[string]string{
	AttrTemperature:       savecair.SensorTemperatureExtract,
	AttrTargetTemperature: savecair.SensorTargetTemperature,
	AttrPresetMode:        savecair.SensorCurrentOperation,
	AttrFanMode:           savecair.KeyCustomFanMode,
	AttrHVACMode:          savecair.KeyCustomOperation,
	AttrCurrentHumidity:   savecair.SensorCurrentHumidity,
}

// writeOrder lists settable attributes with their register, in the order
// they are applied.
var writeOrder = []struct {
	attr string
	key  string
}{
	{AttrHVACMode, savecair.KeyCustomOperation},
	{AttrTemperature, savecair.SensorTargetTemperature},
	{AttrFanMode, savecair.SensorCurrentFanMode},
	{AttrPresetMode, savecair.SensorModeChangeRequest},
}

// Device is the savecair session surface the entity drives.
type Device interface {
	Get(key string) (any, bool)
	Set(ctx context.Context, key string, value any) error
	PollNow(ctx context.Context) bool
}

// HVACModes returns the supported hvac modes.
func HVACModes() []string { return []string{HVACAuto, HVACOff} }

// FanModes returns the fan modes shown to users.
func FanModes() []string { return []string{FanOff, FanLow, FanMedium, FanHigh, FanMaximum} }

// PresetModes returns the supported presets.
func PresetModes() []string {
	return []string{PresetAuto, PresetManual, PresetCrowded, PresetRefresh, PresetFireplace, PresetHoliday, PresetIdle}
}

// State is a point-in-time view of the climate entity.
// Attributes the unit has not reported are nil or empty.
type State struct {
	Name                  string   `json:"name"`
	CurrentTemperature    *float64 `json:"current_temperature,omitempty"`
	TargetTemperature     *float64 `json:"target_temperature,omitempty"`
	CurrentHumidity       *float64 `json:"current_humidity,omitempty"`
	HVACMode              string   `json:"hvac_mode,omitempty"`
	FanMode               string   `json:"fan_mode,omitempty"`
	PresetMode            string   `json:"preset_mode,omitempty"`
	HVACModes             []string `json:"hvac_modes"`
	FanModes              []string `json:"fan_modes"`
	PresetModes           []string `json:"preset_modes"`
	TemperatureUnit       string   `json:"temperature_unit"`
	TargetTemperatureStep float64  `json:"target_temperature_step"`
}

// Settings is a partial update of the climate entity. Nil fields are left
// unchanged.
type Settings struct {
	HVACMode    *string  `json:"hvac_mode,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	FanMode     *string  `json:"fan_mode,omitempty"`
	PresetMode  *string  `json:"preset_mode,omitempty"`
}

// Entity is a thermostat-like view of one ventilation unit.
type Entity struct {
	name   string
	device Device

	logger   Logger
	loggerMu sync.RWMutex
}

// NewEntity creates an entity named name over device.
func NewEntity(name string, device Device) *Entity {
	return &Entity{name: name, device: device}
}

// Name returns the entity name.
func (e *Entity) Name() string {
	return e.name
}

// SetLogger sets the logger used for missing-attribute warnings.
func (e *Entity) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

// Get returns the climate value of attr. A value the unit has not reported
// yet is logged as a warning and reported absent.
func (e *Entity) Get(attr string) (any, bool) {
	key, ok := readKeys[attr]
	if !ok {
		return nil, false
	}

	v, ok := e.device.Get(key)
	if !ok {
		e.logWarn("missing attribute", "attribute", attr, "key", key)
		return nil, false
	}
	e.logDebug("read attribute", "attribute", attr, "key", key, "value", v)

	switch attr {
	case AttrFanMode:
		return fanModeFromDevice(fmt.Sprint(v)), true
	case AttrPresetMode:
		return presetFromDevice(fmt.Sprint(v)), true
	}
	return v, true
}

// State returns all climate attributes together with the supported lists.
func (e *Entity) State() State {
	st := State{
		Name:                  e.name,
		HVACModes:             HVACModes(),
		FanModes:              FanModes(),
		PresetModes:           PresetModes(),
		TemperatureUnit:       TemperatureUnit,
		TargetTemperatureStep: TargetTemperatureStep,
	}

	st.CurrentTemperature = e.number(AttrTemperature)
	st.TargetTemperature = e.number(AttrTargetTemperature)
	st.CurrentHumidity = e.number(AttrCurrentHumidity)
	st.HVACMode = e.text(AttrHVACMode)
	st.FanMode = e.text(AttrFanMode)
	st.PresetMode = e.text(AttrPresetMode)
	return st
}

func (e *Entity) number(attr string) *float64 {
	v, ok := e.Get(attr)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	}
	return nil
}

func (e *Entity) text(attr string) string {
	v, ok := e.Get(attr)
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

// Apply writes settings to the unit, one attribute at a time in the order
// hvac_mode, temperature, fan_mode, preset_mode. It stops at the first
// failure.
func (e *Entity) Apply(ctx context.Context, settings Settings) error {
	values := map[string]any{}
	if settings.HVACMode != nil {
		if !slices.Contains(HVACModes(), *settings.HVACMode) {
			return fmt.Errorf("%w: hvac_mode %q", ErrUnsupportedValue, *settings.HVACMode)
		}
		values[AttrHVACMode] = *settings.HVACMode
	}
	if settings.Temperature != nil {
		values[AttrTemperature] = *settings.Temperature
	}
	if settings.FanMode != nil {
		if !slices.Contains(FanModes(), *settings.FanMode) {
			return fmt.Errorf("%w: fan_mode %q", ErrUnsupportedValue, *settings.FanMode)
		}
		values[AttrFanMode] = fanModeToDevice(*settings.FanMode)
	}
	if settings.PresetMode != nil {
		if !slices.Contains(PresetModes(), *settings.PresetMode) {
			return fmt.Errorf("%w: preset_mode %q", ErrUnsupportedValue, *settings.PresetMode)
		}
		values[AttrPresetMode] = presetToDevice(*settings.PresetMode)
	}

	for _, w := range writeOrder {
		v, ok := values[w.attr]
		if !ok {
			continue
		}
		e.logDebug("set attribute", "attribute", w.attr, "key", w.key, "value", v)
		if err := e.device.Set(ctx, w.key, v); err != nil {
			return fmt.Errorf("set %s: %w", w.attr, err)
		}
	}
	return nil
}

// SetHVACMode sets the hvac mode.
func (e *Entity) SetHVACMode(ctx context.Context, mode string) error {
	return e.Apply(ctx, Settings{HVACMode: &mode})
}

// SetTemperature sets the target temperature.
func (e *Entity) SetTemperature(ctx context.Context, celsius float64) error {
	return e.Apply(ctx, Settings{Temperature: &celsius})
}

// SetFanMode sets the fan mode.
func (e *Entity) SetFanMode(ctx context.Context, mode string) error {
	return e.Apply(ctx, Settings{FanMode: &mode})
}

// SetPresetMode sets the preset.
func (e *Entity) SetPresetMode(ctx context.Context, preset string) error {
	return e.Apply(ctx, Settings{PresetMode: &preset})
}

// Update asks the unit for fresh values.
func (e *Entity) Update(ctx context.Context) bool {
	return e.device.PollNow(ctx)
}

func fanModeFromDevice(v string) string {
	if v == string(savecair.FanNormal) {
		return FanMedium
	}
	return v
}

func fanModeToDevice(v string) string {
	if v == FanMedium {
		return string(savecair.FanNormal)
	}
	return v
}

func presetFromDevice(v string) string {
	if v == string(savecair.OperationAway) {
		return PresetIdle
	}
	return v
}

func presetToDevice(v string) string {
	if v == PresetIdle {
		return string(savecair.OperationAway)
	}
	return v
}

func (e *Entity) currentLogger() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

func (e *Entity) logWarn(msg string, keysAndValues ...any) {
	if logger := e.currentLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (e *Entity) logDebug(msg string, keysAndValues ...any) {
	if logger := e.currentLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
