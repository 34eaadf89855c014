package mqtt

import "fmt"

// Topic prefixes for the savecair bridge.
//
// Bridge topics are scoped by bridge ID: savecair/{bridge_id}/{category}[/{key}]
const (
	// TopicPrefix is the base for all savecair topics.
	TopicPrefix = "savecair"

	// TopicPrefixSystem is the base for process-level topics.
	TopicPrefixSystem = "savecair/system"
)

// Topics provides builders for savecair MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("savecair-01")
//	// Returns: "savecair/savecair-01/state"
type Topics struct{}

// BridgeState returns the retained topic carrying the full sensor snapshot.
//
// Example: savecair/savecair-01/state
func (Topics) BridgeState(bridgeID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefix, bridgeID)
}

// BridgeSensorState returns the retained topic for a single sensor value.
//
// Example: savecair/savecair-01/state/main_airflow
func (Topics) BridgeSensorState(bridgeID, key string) string {
	return fmt.Sprintf("%s/%s/state/%s", TopicPrefix, bridgeID, key)
}

// BridgeClimate returns the retained topic for the climate entity attributes.
//
// Example: savecair/savecair-01/climate
func (Topics) BridgeClimate(bridgeID string) string {
	return fmt.Sprintf("%s/%s/climate", TopicPrefix, bridgeID)
}

// BridgeCommand returns the topic the bridge listens on for commands.
//
// Example: savecair/savecair-01/command
func (Topics) BridgeCommand(bridgeID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefix, bridgeID)
}

// BridgeAck returns the topic for command acknowledgements.
//
// Example: savecair/savecair-01/ack
func (Topics) BridgeAck(bridgeID string) string {
	return fmt.Sprintf("%s/%s/ack", TopicPrefix, bridgeID)
}

// BridgeHealth returns the retained topic for bridge health status.
//
// Example: savecair/savecair-01/health
func (Topics) BridgeHealth(bridgeID string) string {
	return fmt.Sprintf("%s/%s/health", TopicPrefix, bridgeID)
}

// BridgeError returns the topic for protocol errors reported by the gateway.
//
// Example: savecair/savecair-01/error
func (Topics) BridgeError(bridgeID string) string {
	return fmt.Sprintf("%s/%s/error", TopicPrefix, bridgeID)
}

// SystemStatus returns the process status topic used for online/offline and LWT.
//
// Example: savecair/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllBridgeStates matches the snapshot topic of every bridge.
//
// Pattern: savecair/+/state
func (Topics) AllBridgeStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefix)
}

// AllBridgeCommands matches the command topic of every bridge.
//
// Pattern: savecair/+/command
func (Topics) AllBridgeCommands() string {
	return fmt.Sprintf("%s/+/command", TopicPrefix)
}

// AllBridgeHealth matches the health topic of every bridge.
//
// Pattern: savecair/+/health
func (Topics) AllBridgeHealth() string {
	return fmt.Sprintf("%s/+/health", TopicPrefix)
}

// AllTopics matches every savecair topic.
//
// Pattern: savecair/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
