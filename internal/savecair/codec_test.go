package savecair

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
)

func decodeFrame(t *testing.T, f Frame) map[string]any {
	t.Helper()
	var obj map[string]any
	if err := json.Unmarshal(f, &obj); err != nil {
		t.Fatalf("frame %s is not JSON: %v", f, err)
	}
	return obj
}

func TestEncodeLogin(t *testing.T) {
	f, err := EncodeLogin("IAM_0001", "1234")
	if err != nil {
		t.Fatalf("EncodeLogin() error = %v", err)
	}

	want := `{"type":"LOGIN","machine":"IAM_0001","passCode":"1234"}`
	if f.String() != want {
		t.Errorf("EncodeLogin() = %s, want %s", f, want)
	}
}

func TestEncodeRead(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{
			name: "sorted",
			keys: []string{"main_user_mode", "main_airflow"},
			want: `{"type":"READ","idsToRead":["main_airflow","main_user_mode"]}`,
		},
		{
			name: "empty set still produces a frame",
			keys: nil,
			want: `{"type":"READ","idsToRead":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := EncodeRead(tt.keys)
			if err != nil {
				t.Fatalf("EncodeRead() error = %v", err)
			}
			if f.String() != tt.want {
				t.Errorf("EncodeRead() = %s, want %s", f, tt.want)
			}
		})
	}
}

func TestEncodeReadDoesNotReorderInput(t *testing.T) {
	keys := []string{"b", "a"}
	if _, err := EncodeRead(keys); err != nil {
		t.Fatalf("EncodeRead() error = %v", err)
	}
	if keys[0] != "b" {
		t.Errorf("EncodeRead() reordered caller slice: %v", keys)
	}
}

func TestEncodeWrite(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   map[string]any
	}{
		{
			name:   "temperature as tenths",
			fields: map[string]any{SensorTargetTemperature: 21.5},
			want:   map[string]any{SensorTargetTemperature: float64(215)},
		},
		{
			name:   "temperature rounds instead of truncating",
			fields: map[string]any{SensorTargetTemperature: 21.7},
			want:   map[string]any{SensorTargetTemperature: float64(217)},
		},
		{
			name:   "mode and duration as decimal strings",
			fields: map[string]any{SensorModeChangeRequest: 3, SensorRefreshDuration: 240},
			want:   map[string]any{SensorModeChangeRequest: "3", SensorRefreshDuration: "240"},
		},
		{
			name:   "airflow string passes through as string",
			fields: map[string]any{SensorCurrentFanMode: "3"},
			want:   map[string]any{SensorCurrentFanMode: "3"},
		},
		{
			name:   "unregistered key unchanged",
			fields: map[string]any{"some_key": true},
			want:   map[string]any{"some_key": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := EncodeWrite(tt.fields)
			if err != nil {
				t.Fatalf("EncodeWrite() error = %v", err)
			}

			obj := decodeFrame(t, f)
			if obj["type"] != "WRITE" {
				t.Errorf("type = %v, want WRITE", obj["type"])
			}
			got, _ := obj["valuesToWrite"].(map[string]any)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("valuesToWrite = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeWriteInvalidValue(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"temperature not a number", SensorTargetTemperature, "warm"},
		{"temperature NaN string", SensorTargetTemperature, "NaN"},
		{"temperature Inf string", SensorTargetTemperature, "Inf"},
		{"temperature NaN", SensorTargetTemperature, math.NaN()},
		{"temperature -Inf", SensorTargetTemperature, math.Inf(-1)},
		{"temperature overflow", SensorTargetTemperature, 1e30},
		{"temperature past int32", SensorTargetTemperature, 214748365.0},
		{"duration overflow", SensorRefreshDuration, 1e30},
		{"duration Inf", SensorRefreshDuration, "+Inf"},
		{"duration string overflow", SensorRefreshDuration, "99999999999"},
		{"duration fraction", SensorRefreshDuration, 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeWrite(map[string]any{tt.key: tt.value})
			if !errors.Is(err, ErrEncode) {
				t.Errorf("EncodeWrite() error = %v, want ErrEncode", err)
			}
			if !errors.Is(err, ErrInvalidValue) {
				t.Errorf("EncodeWrite() error = %v, want ErrInvalidValue", err)
			}
			if frame != nil {
				t.Errorf("EncodeWrite() frame = %s, want nil", frame)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind MessageType
		check    func(t *testing.T, m Message)
	}{
		{
			name:     "logged in",
			raw:      `{"type":"LOGGED_IN","loggedinToMachineId":"IAM_0001"}`,
			wantKind: TypeLoggedIn,
			check: func(t *testing.T, m Message) {
				if m.MachineID != "IAM_0001" {
					t.Errorf("MachineID = %q, want IAM_0001", m.MachineID)
				}
			},
		},
		{
			name:     "read values",
			raw:      `{"type":"READ","readValues":{"main_airflow":"3"}}`,
			wantKind: TypeRead,
			check: func(t *testing.T, m Message) {
				if m.ReadValues["main_airflow"] != "3" {
					t.Errorf("ReadValues = %v", m.ReadValues)
				}
			},
		},
		{
			name:     "value changed",
			raw:      `{"type":"VALUE_CHANGED","changedValues":{"rh_sensor":"41"}}`,
			wantKind: TypeValueChanged,
			check: func(t *testing.T, m Message) {
				if m.ChangedValues["rh_sensor"] != "41" {
					t.Errorf("ChangedValues = %v", m.ChangedValues)
				}
			},
		},
		{
			name:     "error",
			raw:      `{"type":"ERROR","errorTypeId":"WRONG_PASSWORD"}`,
			wantKind: TypeError,
			check: func(t *testing.T, m Message) {
				if m.ErrorTypeID != ErrorTypeWrongPassword {
					t.Errorf("ErrorTypeID = %q", m.ErrorTypeID)
				}
			},
		},
		{
			name:     "numeric machine id",
			raw:      `{"type":"LOGGED_IN","loggedinToMachineId":42}`,
			wantKind: TypeLoggedIn,
			check: func(t *testing.T, m Message) {
				if m.MachineID != "42" {
					t.Errorf("MachineID = %q, want 42", m.MachineID)
				}
			},
		},
		{
			name:     "large numeric machine id",
			raw:      `{"type":"LOGGED_IN","loggedinToMachineId":123456789}`,
			wantKind: TypeLoggedIn,
			check: func(t *testing.T, m Message) {
				if m.MachineID != "123456789" {
					t.Errorf("MachineID = %q, want 123456789", m.MachineID)
				}
			},
		},
		{
			name:     "unknown type",
			raw:      `{"type":"PING"}`,
			wantKind: TypeUnknown,
			check: func(t *testing.T, m Message) {
				if m.Type != "PING" || !m.HasType {
					t.Errorf("Type = %q HasType = %v", m.Type, m.HasType)
				}
			},
		},
		{
			name:     "missing type",
			raw:      `{"readValues":{}}`,
			wantKind: TypeUnknown,
			check: func(t *testing.T, m Message) {
				if m.HasType {
					t.Error("HasType = true, want false")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if m.Kind() != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", m.Kind(), tt.wantKind)
			}
			tt.check(t, m)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{"not json", `["READ"]`, `null`, `"READ"`, ``} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrDecode) {
			t.Errorf("Decode(%q) error = %v, want ErrDecode", raw, err)
		}
	}
}
