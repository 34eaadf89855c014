// Package api implements the HTTP REST API and WebSocket push server for the
// savecair bridge.
//
// This package provides:
//   - REST endpoints for the session snapshot, single registers, the climate
//     entity, on-demand polling and bridge commands
//   - WebSocket hub broadcasting state updates to UI clients
//   - Prometheus scrape endpoint backed by a dedicated registry
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, bearer auth)
//
// # Routes
//
//	GET  /metrics                  Prometheus exposition
//	GET  /api/v1/health            gateway and bridge health
//	GET  /api/v1/metrics           JSON runtime and transport counters
//	POST /api/v1/auth/login        admin credentials, returns an access token
//	POST /api/v1/auth/ws-ticket    single-use WebSocket ticket (60s)
//	GET  /api/v1/state             full snapshot
//	GET  /api/v1/state/{key}       one register
//	PUT  /api/v1/state/{key}       write one register {"value": ...}
//	GET  /api/v1/climate           climate entity attributes
//	PUT  /api/v1/climate           apply climate settings
//	POST /api/v1/poll              read subscribed sensors now
//	POST /api/v1/command           bridge command message, returns the ack
//	GET  /api/v1/ws?ticket=...     WebSocket (channels: state.updated,
//	                               climate.updated, gateway.error)
//
// # Authentication
//
// Everything except health, metrics and login needs an
// "Authorization: Bearer <token>" header carrying an HS256 access token.
// Browsers cannot set headers on a WebSocket handshake, so the WebSocket
// endpoint takes a ticket from /auth/ws-ticket instead.
//
// # Graceful Degradation
//
// The server runs without the MQTT bridge: reads, writes and WebSocket
// push work, only POST /command returns 503.
package api
