// Package climate exposes a savecair ventilation unit as a thermostat-like
// climate entity and bridges it onto MQTT.
//
// The Entity translates between climate attributes (hvac_mode, fan_mode,
// preset_mode, temperatures, humidity) and the unit's registers. The Bridge
// publishes every session update as retained state, executes commands
// received on savecair/{bridge_id}/command and reports its health.
//
//	savecair.Session ──OnUpdate──▶ Bridge ──▶ savecair/{id}/state, /climate
//	                  ◀──Set────── Bridge ◀── savecair/{id}/command
package climate
