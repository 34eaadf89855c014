package savecair

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testTimeout = 2 * time.Second

// fakeGateway is an in-process savecair gateway. Every frame it receives
// is pushed to frames; respond, if set, may answer it.
type fakeGateway struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	conns   []*websocket.Conn
	writeMu sync.Mutex

	frames   chan map[string]any
	connects atomic.Int32

	respond func(g *fakeGateway, conn *websocket.Conn, frame map[string]any)
}

func newFakeGateway(t *testing.T, respond func(g *fakeGateway, conn *websocket.Conn, frame map[string]any)) *fakeGateway {
	t.Helper()

	g := &fakeGateway{
		t:       t,
		frames:  make(chan map[string]any, 100),
		respond: respond,
	}

	upgrader := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.mu.Lock()
		g.conns = append(g.conns, conn)
		g.mu.Unlock()
		g.connects.Add(1)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]any
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			g.frames <- frame
			if g.respond != nil {
				g.respond(g, conn, frame)
			}
		}
	}))

	t.Cleanup(func() {
		g.dropAll()
		g.srv.Close()
	})
	return g
}

func (g *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

// send writes v as JSON to conn.
func (g *fakeGateway) send(conn *websocket.Conn, v any) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		g.t.Logf("fake gateway write: %v", err)
	}
}

// sendRaw writes a text frame to conn.
func (g *fakeGateway) sendRaw(conn *websocket.Conn, data string) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		g.t.Logf("fake gateway write: %v", err)
	}
}

// latest returns the most recent connection, waiting for one to exist.
func (g *fakeGateway) latest() *websocket.Conn {
	g.t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		n := len(g.conns)
		var conn *websocket.Conn
		if n > 0 {
			conn = g.conns[n-1]
		}
		g.mu.Unlock()
		if conn != nil {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	g.t.Fatal("no connection to fake gateway")
	return nil
}

// dropAll closes every connection without a close frame.
func (g *fakeGateway) dropAll() {
	g.mu.Lock()
	conns := g.conns
	g.conns = nil
	g.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// closeCleanly sends a normal close frame on the latest connection.
func (g *fakeGateway) closeCleanly() {
	conn := g.latest()
	g.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	g.writeMu.Unlock()
}

// nextFrame waits for the next received frame.
func (g *fakeGateway) nextFrame() map[string]any {
	g.t.Helper()
	select {
	case f := <-g.frames:
		return f
	case <-time.After(testTimeout):
		g.t.Fatal("timed out waiting for frame")
		return nil
	}
}

// nextFrameOfType skips frames until one has the given type.
func (g *fakeGateway) nextFrameOfType(typ string) map[string]any {
	g.t.Helper()
	for {
		f := g.nextFrame()
		if f["type"] == typ {
			return f
		}
	}
}

// expectNoFrame fails if a frame arrives within d.
func (g *fakeGateway) expectNoFrame(d time.Duration) {
	g.t.Helper()
	select {
	case f := <-g.frames:
		g.t.Errorf("unexpected frame: %v", f)
	case <-time.After(d):
	}
}

// loginResponder accepts passCode "secret" for any machine and answers
// READ frames with fixed values.
func loginResponder(g *fakeGateway, conn *websocket.Conn, frame map[string]any) {
	switch frame["type"] {
	case "LOGIN":
		if frame["passCode"] == "secret" {
			g.send(conn, map[string]any{"type": "LOGGED_IN", "loggedinToMachineId": frame["machine"]})
			return
		}
		g.send(conn, map[string]any{"type": "ERROR", "errorTypeId": "WRONG_PASSWORD"})
	case "READ":
		g.send(conn, map[string]any{
			"type":       "READ",
			"readValues": map[string]any{"main_user_mode": "1", "main_airflow": "2"},
		})
	}
}

// waitFor polls cond until it is true or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// recordingLogger collects log lines for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+": "+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
