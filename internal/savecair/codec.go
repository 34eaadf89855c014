package savecair

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Frame is one encoded outbound text frame.
type Frame []byte

// String returns the frame as text.
func (f Frame) String() string {
	return string(f)
}

// MessageType is the "type" discriminator of a frame.
type MessageType string

// Frame types.
const (
	TypeLogin        MessageType = "LOGIN"
	TypeRead         MessageType = "READ"
	TypeWrite        MessageType = "WRITE"
	TypeLoggedIn     MessageType = "LOGGED_IN"
	TypeValueChanged MessageType = "VALUE_CHANGED"
	TypeError        MessageType = "ERROR"
	TypeUnknown      MessageType = "UNKNOWN"
)

// Message is a decoded inbound frame.
type Message struct {
	// Type is the raw discriminator. Empty when HasType is false.
	Type MessageType

	// HasType is false when the frame had no string "type" field.
	HasType bool

	// MachineID is loggedinToMachineId from a LOGGED_IN frame.
	MachineID string

	// ReadValues is readValues from a READ frame, nil when absent.
	ReadValues map[string]any

	// ChangedValues is changedValues from a VALUE_CHANGED frame, nil when absent.
	ChangedValues map[string]any

	// ErrorTypeID is errorTypeId from an ERROR frame.
	ErrorTypeID string

	// Raw is the whole decoded object.
	Raw map[string]any
}

// Kind returns the message type, or TypeUnknown for anything the session
// does not handle.
func (m Message) Kind() MessageType {
	switch m.Type {
	case TypeLoggedIn, TypeRead, TypeValueChanged, TypeError:
		return m.Type
	default:
		return TypeUnknown
	}
}

type loginFrame struct {
	Type     MessageType `json:"type"`
	Machine  string      `json:"machine"`
	PassCode string      `json:"passCode"`
}

type readFrame struct {
	Type      MessageType `json:"type"`
	IDsToRead []string    `json:"idsToRead"`
}

type writeFrame struct {
	Type          MessageType    `json:"type"`
	ValuesToWrite map[string]any `json:"valuesToWrite"`
}

// EncodeLogin builds a LOGIN frame.
func EncodeLogin(iamID, password string) (Frame, error) {
	return marshalFrame(loginFrame{Type: TypeLogin, Machine: iamID, PassCode: password})
}

// EncodeRead builds a READ frame for keys. Keys are sorted so the same set
// always yields the same frame. An empty set still yields a frame.
func EncodeRead(keys []string) (Frame, error) {
	ids := make([]string, len(keys))
	copy(ids, keys)
	sort.Strings(ids)
	return marshalFrame(readFrame{Type: TypeRead, IDsToRead: ids})
}

// EncodeWrite builds a single WRITE frame carrying every field.
//
// Values are converted with the register's write encoder: temperatures
// become integer tenths of a degree, mode, duration and airflow codes
// become decimal strings. Keys without an encoder are sent as given.
//
// Parameters:
//   - fields: Register key to value
//
// Returns:
//   - Frame: Encoded frame
//   - error: ErrEncode if a value does not fit its register
func EncodeWrite(fields map[string]any) (Frame, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		encoded, err := encodeValue(k, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEncode, k, err)
		}
		values[k] = encoded
	}
	return marshalFrame(writeFrame{Type: TypeWrite, ValuesToWrite: values})
}

func marshalFrame(v any) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return Frame(data), nil
}

// Decode parses an inbound frame.
//
// Anything that is not a JSON object fails with ErrDecode. Missing or
// mistyped payload fields are tolerated and left zero.
func Decode(raw []byte) (Message, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if obj == nil {
		return Message{}, fmt.Errorf("%w: not an object", ErrDecode)
	}

	msg := Message{Raw: obj}
	if t, ok := obj["type"].(string); ok {
		msg.Type = MessageType(t)
		msg.HasType = true
	}

	switch id := obj["loggedinToMachineId"].(type) {
	case string:
		msg.MachineID = id
	case float64:
		msg.MachineID = strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
	default:
		msg.MachineID = fmt.Sprint(id)
	}

	if values, ok := obj["readValues"].(map[string]any); ok {
		msg.ReadValues = values
	}
	if values, ok := obj["changedValues"].(map[string]any); ok {
		msg.ChangedValues = values
	}
	if id, ok := obj["errorTypeId"].(string); ok {
		msg.ErrorTypeID = id
	}

	return msg, nil
}
