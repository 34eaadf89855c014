package climate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/savecair-bridge/internal/savecair"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]func(topic string, payload []byte)
	connected  bool
	publishErr error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// deliver invokes the handler subscribed to topic.
func (m *MockMQTTClient) deliver(t *testing.T, topic string, payload string) {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[topic]
	m.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler subscribed to %s", topic)
	}
	h(topic, []byte(payload))
}

// publishedTo returns messages published to topic, in order.
func (m *MockMQTTClient) publishedTo(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) reset() {
	m.mu.Lock()
	m.published = nil
	m.mu.Unlock()
}

// setCall records one Gateway.Set call.
type setCall struct {
	Key   string
	Value any
}

// mockGateway implements Gateway over an in-memory snapshot.
type mockGateway struct {
	mu            sync.Mutex
	values        map[string]any
	sets          []setCall
	setErr        map[string]error
	polls         int
	pollOK        bool
	connected     bool
	authenticated bool
	machineID     string
	stats         savecair.TransportStats
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		values:        make(map[string]any),
		setErr:        make(map[string]error),
		pollOK:        true,
		connected:     true,
		authenticated: true,
		machineID:     "IAM_1",
	}
}

func (g *mockGateway) Get(key string) (any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.values[key]
	return v, ok
}

func (g *mockGateway) Set(_ context.Context, key string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.setErr[key]; err != nil {
		return err
	}
	g.sets = append(g.sets, setCall{Key: key, Value: value})
	return nil
}

func (g *mockGateway) PollNow(context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls++
	return g.pollOK
}

func (g *mockGateway) MachineID() string              { return g.machineID }
func (g *mockGateway) Stats() savecair.TransportStats { return g.stats }

func (g *mockGateway) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

func (g *mockGateway) IsAuthenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authenticated
}

func (g *mockGateway) setCalls() []setCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]setCall(nil), g.sets...)
}

// mockLogger records log lines.
type mockLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *mockLogger) log(level, msg string, kv ...any) {
	l.mu.Lock()
	l.lines = append(l.lines, fmt.Sprintf("%s: %s %v", level, msg, kv))
	l.mu.Unlock()
}

func (l *mockLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv...) }
func (l *mockLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv...) }
func (l *mockLogger) Warn(msg string, kv ...any)  { l.log("WARN", msg, kv...) }
func (l *mockLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv...) }

func (l *mockLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func decode[T any](t *testing.T, payload []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", payload, err)
	}
	return v
}
