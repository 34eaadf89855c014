package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/savecair-bridge/internal/savecair"
)

const metricsNamespace = "savecair"

// Metrics holds the Prometheus collectors for one gateway.
//
// Numeric and boolean snapshot values become savecair_sensor_value{key}.
// String values (modes) become savecair_sensor_state{key,value} = 1, with
// the previous value's series removed. Transport and bridge counters are
// read at scrape time.
type Metrics struct {
	registry *prometheus.Registry

	sensorValue   *prometheus.GaugeVec
	sensorState   *prometheus.GaugeVec
	updatesTotal  prometheus.Counter
	lastUpdate    prometheus.Gauge
	gatewayErrors *prometheus.CounterVec
}

// NewMetrics creates a dedicated registry so the scrape output carries
// only bridge metrics. bridge may be nil.
func NewMetrics(gw Gateway, bridge Bridge, hub *Hub) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sensorValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sensor_value",
				Help:      "Last numeric value of a savecair register (booleans as 0/1)",
			},
			[]string{"key"},
		),
		sensorState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sensor_state",
				Help:      "Current textual value of a savecair register (1 for the active value)",
			},
			[]string{"key", "value"},
		),
		updatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "updates_total",
				Help:      "Session state updates received from the gateway",
			},
		),
		lastUpdate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_update_timestamp_seconds",
				Help:      "Unix timestamp of the last session state update",
			},
		),
		gatewayErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "gateway_errors_total",
				Help:      "ERROR frames received from the gateway",
			},
			[]string{"error_type"},
		),
	}

	m.registry.MustRegister(m.sensorValue, m.sensorState, m.updatesTotal, m.lastUpdate, m.gatewayErrors)

	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "gateway_connected",
			Help:      "1 if the websocket to the gateway is open",
		}, func() float64 { return boolGauge(gw.IsConnected()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "gateway_authenticated",
			Help:      "1 if the session is logged in",
		}, func() float64 { return boolGauge(gw.IsAuthenticated()) }),
		transportCounter("frames_sent_total", "Frames sent to the gateway", gw,
			func(s savecair.TransportStats) uint64 { return s.FramesTx }),
		transportCounter("frames_received_total", "Frames received from the gateway", gw,
			func(s savecair.TransportStats) uint64 { return s.FramesRx }),
		transportCounter("decode_errors_total", "Frames that could not be decoded", gw,
			func(s savecair.TransportStats) uint64 { return s.DecodeErrors }),
		transportCounter("transport_errors_total", "Transport errors", gw,
			func(s savecair.TransportStats) uint64 { return s.ErrorsTotal }),
		transportCounter("reconnects_total", "Reconnect attempts", gw,
			func(s savecair.TransportStats) uint64 { return s.ReconnectsTotal }),
	)

	if hub != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket UI clients",
		}, func() float64 { return float64(hub.ClientCount()) }))
	}

	if bridge != nil {
		m.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "mqtt_states_published_total",
				Help:      "State messages published to MQTT",
			}, func() float64 { return float64(bridge.GetMetrics().StatesPublished) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_total",
				Help:      "Commands executed by the bridge",
			}, func() float64 { return float64(bridge.GetMetrics().CommandsTotal) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_failed_total",
				Help:      "Commands that failed",
			}, func() float64 { return float64(bridge.GetMetrics().CommandsFailed) }),
		)
	}

	return m
}

func transportCounter(name, help string, gw Gateway, pick func(savecair.TransportStats) uint64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(pick(gw.Stats())) })
}

// Registry returns the registry to serve with promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records a session snapshot.
func (m *Metrics) Observe(snapshot savecair.Snapshot) {
	m.updatesTotal.Inc()
	m.lastUpdate.SetToCurrentTime()

	for key, v := range snapshot {
		switch key {
		case savecair.KeyType, savecair.KeyErrorTypeID, savecair.KeyMachineID:
			continue
		}
		switch val := v.(type) {
		case float64:
			m.sensorValue.WithLabelValues(key).Set(val)
		case int:
			m.sensorValue.WithLabelValues(key).Set(float64(val))
		case bool:
			m.sensorValue.WithLabelValues(key).Set(boolGauge(val))
		case string:
			m.sensorState.DeletePartialMatch(prometheus.Labels{"key": key})
			m.sensorState.WithLabelValues(key, val).Set(1)
		}
	}
}

// ObserveError counts a gateway ERROR frame.
func (m *Metrics) ObserveError(payload savecair.ErrorPayload) {
	errType := payload.ErrorTypeID
	if errType == "" {
		errType = "unknown"
	}
	m.gatewayErrors.WithLabelValues(errType).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
