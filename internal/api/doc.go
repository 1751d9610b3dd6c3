// Package api implements the HTTP REST API and WebSocket server for the EMS console.
//
// This package provides:
//   - REST endpoints for device and register CRUD under /api/v1
//   - connection toggling, dashboard stats and configuration push
//   - a WebSocket hub relaying console change events
//   - JWT authentication for operators declared in configuration
//
// # Errors
//
// Failed requests answer {"error": {"code", "message", "details"}}.
// Validation failures use 422 and list every message under
// details.messages, in the order the console UI displays them.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and the push backend are optional. Without them the API
// still serves CRUD; /push answers 503 when no backend is configured.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
