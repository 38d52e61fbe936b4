// Package api implements the CareWatch view server: a REST API and a
// WebSocket relay in front of the entity cache and aggregation scope.
//
// This package provides:
//   - Read endpoints for persons, devices, mappings, selection and the
//     aggregated scope view (alerts, overview, detections, history)
//   - Write-path proxies for devices and mappings that update the cache
//     optimistically on success
//   - A WebSocket hub relaying live radar telemetry and fall alerts
//   - Middleware stack (request ID, logging, recovery, CORS, JWT)
//
// # Architecture
//
// The server sits between the dashboard and the care backend. Reads are
// served from the entity cache and scope; failures degrade to the last
// known (possibly empty) collection plus a normalised problem. Writes go
// straight to the backend and propagate its problem to the caller.
//
// Radar gateways publish telemetry over MQTT. The server records vitals
// to InfluxDB and broadcasts every frame to subscribed WebSocket clients.
//
// # Security
//
// When a JWT secret is configured every route except health requires a
// bearer token. WebSocket connections then authenticate with single-use
// tickets so the token never appears in a URL.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and the snapshot database are optional. Without them the
// REST surface keeps working; only live telemetry is missing.
package api
