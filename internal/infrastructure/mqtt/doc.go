// Package mqtt provides MQTT client connectivity for the savecair bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The bridge mirrors the ventilation unit's state onto MQTT so home
// automation hosts can consume it without speaking the savecair protocol:
//
//	savecair gateway ↔ savecair-bridge ↔ MQTT broker ↔ automation hosts
//
// # Topics
//
//	savecair/{bridge_id}/state            retained JSON snapshot
//	savecair/{bridge_id}/state/{sensor}   retained single value
//	savecair/{bridge_id}/climate          retained climate attributes
//	savecair/{bridge_id}/command          inbound commands
//	savecair/{bridge_id}/ack              command results
//	savecair/{bridge_id}/health           retained bridge health
//	savecair/system/status                online/offline and LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommand("savecair-01"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleCommand(payload)
//	    })
package mqtt
