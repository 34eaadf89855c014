package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/savecair-bridge/internal/savecair"
)

// Measurement names.
const (
	MeasurementSensors   = "savecair_sensors"
	MeasurementTransport = "savecair_transport"
)

// Snapshot keys that are carried as tags or not recorded at all.
const (
	machineIDKey   = "machineID"
	frameTypeKey   = "type"
	errorTypeIDKey = "errorTypeId"
)

// modeKeys hold mode names. A code the normaliser does not know arrives
// as a number and is written as its decimal string so the field stays a
// string field.
var modeKeys = map[string]bool{
	savecair.SensorCurrentOperation: true,
	savecair.SensorCurrentFanMode:   true,
	savecair.KeyCustomFanMode:       true,
	savecair.KeyCustomOperation:     true,
}

// WriteSnapshot records one point holding every value of a sensor snapshot.
//
// Numbers are written as float fields so a sensor keeps one field type even
// when the gateway switches between integer and fractional readings.
// Booleans are written as-is and mode fields are always strings. The machine ID becomes a tag.
// Nothing is written for a snapshot without recordable values.
//
// Parameters:
//   - bridgeID: Bridge identifier, used as the bridge_id tag
//   - snapshot: Normalised sensor values keyed by sensor name
//   - ts: Point timestamp
func (c *Client) WriteSnapshot(bridgeID string, snapshot map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := snapshotPoint(bridgeID, snapshot, ts)
	if point == nil {
		return
	}
	c.writeAPI.WritePoint(point)
}

func snapshotPoint(bridgeID string, snapshot map[string]any, ts time.Time) *write.Point {
	tags := map[string]string{"bridge_id": bridgeID}
	fields := make(map[string]interface{}, len(snapshot))

	for key, v := range snapshot {
		switch key {
		case machineIDKey:
			if s, ok := v.(string); ok && s != "" {
				tags["machine_id"] = s
			}
			continue
		case frameTypeKey, errorTypeIDKey:
			continue
		}

		if modeKeys[key] {
			if name, ok := modeField(v); ok {
				fields[key] = name
			}
			continue
		}

		switch val := v.(type) {
		case float64:
			fields[key] = val
		case float32:
			fields[key] = float64(val)
		case int:
			fields[key] = float64(val)
		case int64:
			fields[key] = float64(val)
		case bool:
			fields[key] = val
		case string:
			fields[key] = val
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return write.NewPoint(MeasurementSensors, tags, fields, ts)
}

func modeField(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}

// WriteTransportStats records gateway connection counters.
//
// Example:
//
//	client.WriteTransportStats("savecair-01", map[string]interface{}{
//	    "frames_rx": uint64(120), "reconnects_total": uint64(1)})
func (c *Client) WriteTransportStats(bridgeID string, counters map[string]interface{}) {
	c.WritePoint(MeasurementTransport, map[string]string{"bridge_id": bridgeID}, counters)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
