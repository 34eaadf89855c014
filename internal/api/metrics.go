package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the JSON metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	Gateway       GatewayMetrics  `json:"gateway"`
	Bridge        *BridgeCounters `json:"bridge,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// GatewayMetrics contains savecair transport statistics.
type GatewayMetrics struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	MachineID     string `json:"machine_id,omitempty"`
	FramesTx      uint64 `json:"frames_tx"`
	FramesRx      uint64 `json:"frames_rx"`
	DecodeErrors  uint64 `json:"decode_errors"`
	Errors        uint64 `json:"errors"`
	Reconnects    uint64 `json:"reconnects"`
	LastActivity  string `json:"last_activity,omitempty"`
}

// BridgeCounters contains MQTT bridge statistics.
type BridgeCounters struct {
	Status          string `json:"status"`
	StatesPublished uint64 `json:"states_published"`
	CommandsTotal   uint64 `json:"commands_total"`
	CommandsFailed  uint64 `json:"commands_failed"`
}

// handleMetrics returns system metrics as JSON. Prometheus scrapes /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := s.gateway.Stats()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Gateway: GatewayMetrics{
			State:         stats.State.String(),
			Authenticated: s.gateway.IsAuthenticated(),
			MachineID:     s.gateway.MachineID(),
			FramesTx:      stats.FramesTx,
			FramesRx:      stats.FramesRx,
			DecodeErrors:  stats.DecodeErrors,
			Errors:        stats.ErrorsTotal,
			Reconnects:    stats.ReconnectsTotal,
		},
	}
	if !stats.LastActivity.IsZero() {
		metrics.Gateway.LastActivity = stats.LastActivity.UTC().Format(time.RFC3339)
	}

	if s.bridge != nil {
		bm := s.bridge.GetMetrics()
		metrics.Bridge = &BridgeCounters{
			Status:          string(bm.Status),
			StatesPublished: bm.StatesPublished,
			CommandsTotal:   bm.CommandsTotal,
			CommandsFailed:  bm.CommandsFailed,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
