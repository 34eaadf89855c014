// Package influxdb records savecair sensor history in InfluxDB v2.
//
// Every merged snapshot from the gateway session becomes one point in the
// savecair_sensors measurement, tagged with the bridge and machine ID.
// Transport counters go to savecair_transport.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSnapshot("savecair-01", snapshot, time.Now())
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Batch
// failures are delivered asynchronously to the SetOnError callback.
// Connection and health check errors are returned directly.
package influxdb
