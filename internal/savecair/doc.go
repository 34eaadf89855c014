// Package savecair implements a client for the Systemair SAVE "savecair"
// websocket gateway.
//
// The gateway speaks JSON text frames over a single websocket. A session
// logs in with the unit's IAM identifier and password, then periodically
// reads a set of registers ("sensors") and receives unsolicited
// VALUE_CHANGED pushes when the unit changes state.
//
// # Architecture
//
//	┌──────────────┐  Set/Get   ┌──────────────┐  frames  ┌──────────────┐
//	│ climate/MQTT │◄──────────►│   Session    │◄────────►│  Transport   │◄──► gateway
//	│    / API     │  OnUpdate  │ (state, poll)│          │ (websocket)  │
//	└──────────────┘            └──────────────┘          └──────────────┘
//
// # Wire Format
//
// Outbound frames:
//
//	{"type":"LOGIN","machine":"IAM_123","passCode":"secret"}
//	{"type":"READ","idsToRead":["main_airflow","main_user_mode"]}
//	{"type":"WRITE","valuesToWrite":{"mode_change_request":"3","user_mode_refresh_duration":"240"}}
//
// Inbound frames carry a "type" discriminator: LOGGED_IN, READ (readValues),
// VALUE_CHANGED (changedValues) or ERROR (errorTypeId).
//
// # Login Correlation
//
// The protocol has no request identifiers. Login treats the first inbound
// frame (or transport error) after the login frame as its response.
//
// # Thread Safety
//
// Session and Transport are safe for concurrent use. Observer callbacks run
// on the transport's receive goroutine in registration order.
package savecair
