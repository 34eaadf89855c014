package savecair

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Register keys understood by the gateway.
const (
	SensorTargetTemperature   = "main_temperature_offset"
	SensorModeChangeRequest   = "mode_change_request"
	SensorCurrentFanMode      = "main_airflow"
	SensorCurrentOperation    = "main_user_mode"
	SensorTemperatureExtract  = "pdm_input_temp_value"
	SensorTemperatureOutdoor  = "outdoor_air_temp"
	SensorTemperatureSupply   = "supply_air_temp"
	SensorTemperatureOverheat = "overheat_temp"
	SensorCurrentHumidity     = "rh_sensor"
	SensorRemainingTime       = "user_mode_remaining_time"
	SensorFilterTimeLeft      = "components_filter_time_left"
	SensorEcoMode             = "eco_mode"

	SensorCrowdedDuration   = "user_mode_crowded_duration"
	SensorRefreshDuration   = "user_mode_refresh_duration"
	SensorFireplaceDuration = "user_mode_fireplace_duration"
	SensorAwayDuration      = "user_mode_away_duration"
	SensorHolidayDuration   = "user_mode_holiday_duration"

	SensorAutoSupply      = "user_mode_auto_supply"
	SensorCrowdedSupply   = "user_mode_crowded_supply"
	SensorRefreshSupply   = "user_mode_refresh_supply"
	SensorFireplaceSupply = "user_mode_fireplace_supply"
	SensorAwaySupply      = "user_mode_away_supply"
	SensorHolidaySupply   = "user_mode_holiday_supply"
)

// Synthetic and bookkeeping keys written by the session, never polled.
const (
	KeyCustomFanMode   = "custom_fan_mode"
	KeyCustomOperation = "custom_operation"
	KeyMachineID       = "machineID"
	KeyType            = "type"
	KeyErrorTypeID     = "errorTypeId"
)

// sensorSpec describes how a register's values are read and written.
type sensorSpec struct {
	// normalize converts a decoded wire value to its snapshot value.
	normalize func(any) any
	// encode converts a command value to its wire value.
	encode func(any) (any, error)
}

var (
	temperatureSpec = sensorSpec{normalize: normalizeTenths, encode: encodeTenths}
	durationSpec    = sensorSpec{normalize: normalizeInt, encode: encodeDecimalString}
	airflowSpec     = sensorSpec{normalize: normalizeAirflow, encode: encodeDecimalString}
)

// registry is the Available Sensor Set. Built once, read-only.
var registry = map[string]sensorSpec{
	SensorTargetTemperature:   temperatureSpec,
	SensorModeChangeRequest:   {encode: encodeDecimalString},
	SensorCurrentFanMode:      airflowSpec,
	SensorCurrentOperation:    {normalize: normalizeUserMode},
	SensorTemperatureExtract:  temperatureSpec,
	SensorTemperatureOutdoor:  temperatureSpec,
	SensorTemperatureSupply:   temperatureSpec,
	SensorTemperatureOverheat: temperatureSpec,
	SensorCurrentHumidity:     {normalize: normalizeInt},
	SensorRemainingTime:       {normalize: normalizeInt},
	SensorFilterTimeLeft:      {normalize: normalizeInt},
	SensorEcoMode:             {normalize: normalizeBool},

	SensorCrowdedDuration:   durationSpec,
	SensorRefreshDuration:   durationSpec,
	SensorFireplaceDuration: durationSpec,
	SensorAwayDuration:      durationSpec,
	SensorHolidayDuration:   durationSpec,

	SensorAutoSupply:      airflowSpec,
	SensorCrowdedSupply:   airflowSpec,
	SensorRefreshSupply:   airflowSpec,
	SensorFireplaceSupply: airflowSpec,
	SensorAwaySupply:      airflowSpec,
	SensorHolidaySupply:   airflowSpec,
}

// AvailableSensors returns every register key the client knows, sorted.
func AvailableSensors() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsAvailable reports whether key is a known register.
func IsAvailable(key string) bool {
	_, ok := registry[key]
	return ok
}

// ClimateSensors returns the registers a climate entity needs.
func ClimateSensors() []string {
	return []string{
		SensorTargetTemperature,
		SensorCurrentFanMode,
		SensorCurrentOperation,
		SensorTemperatureExtract,
		SensorCurrentHumidity,
		SensorAutoSupply,
		SensorCrowdedSupply,
		SensorRefreshSupply,
		SensorFireplaceSupply,
		SensorAwaySupply,
		SensorHolidaySupply,
	}
}

// Normalize applies the key's normaliser to a decoded wire value.
// Keys without one are returned unchanged.
func Normalize(key string, v any) any {
	spec, ok := registry[key]
	if !ok || spec.normalize == nil {
		return v
	}
	return spec.normalize(v)
}

// encodeValue applies the key's write encoder.
func encodeValue(key string, v any) (any, error) {
	spec, ok := registry[key]
	if !ok || spec.encode == nil {
		return v, nil
	}
	return spec.encode(v)
}

func normalizeTenths(v any) any {
	f, ok := toFloat(v)
	if !ok {
		return v
	}
	return f / 10
}

func normalizeInt(v any) any {
	n, ok := toInt(v)
	if !ok {
		return v
	}
	return n
}

func normalizeBool(v any) any {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	if n, ok := toInt(v); ok {
		return n != 0
	}
	return v
}

func normalizeUserMode(v any) any {
	n, ok := toInt(v)
	if !ok {
		return v
	}
	if mode, ok := userModeNames[n]; ok {
		return string(mode)
	}
	return n
}

func normalizeAirflow(v any) any {
	n, ok := toInt(v)
	if !ok {
		return v
	}
	if fan, ok := airflowNames[n]; ok {
		return string(fan)
	}
	return n
}

// encodeTenths scales a Celsius value to the gateway's fixed-point tenths.
func encodeTenths(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%w: %v is not a number", ErrInvalidValue, v)
	}
	scaled := math.Round(f * 10)
	if !inRegisterRange(scaled) {
		return nil, fmt.Errorf("%w: %v is out of range", ErrInvalidValue, v)
	}
	return int(scaled), nil
}

func encodeDecimalString(v any) (any, error) {
	n, ok := toInt(v)
	if !ok {
		return nil, fmt.Errorf("%w: %v is not a whole number", ErrInvalidValue, v)
	}
	if !inRegisterRange(float64(n)) {
		return nil, fmt.Errorf("%w: %v is out of range", ErrInvalidValue, v)
	}
	return strconv.Itoa(n), nil
}

// inRegisterRange reports whether f is finite and fits a 32-bit register.
func inRegisterRange(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f >= math.MinInt32 && f <= math.MaxInt32
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || !inRegisterRange(f) {
		return 0, false
	}
	return int(f), true
}
