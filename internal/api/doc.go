// Package api implements the HTTP REST API and WebSocket server for Gray Logic Home.
//
// This package provides:
//   - REST endpoints for devices, control, device logs, usage statistics
//     and schedules under /api/v1
//   - a WebSocket hub that relays the "device_updates" channel
//   - Prometheus metrics at /api/v1/metrics
//   - Middleware stack (request ID, logging, recovery, CORS, acting user)
//
// # Identity
//
// Requests may carry "Authorization: Bearer <jwt>" signed with the
// configured secret. The token subject becomes the acting user recorded in
// device logs and owning schedules. Requests without a token act as the
// anonymous user. Issuing tokens is outside this package.
//
// # Errors
//
// Errors are returned as {"status", "code", "message"}. Unknown resources
// map to 404 and validation failures to 400. A control request whose wire
// command failed still succeeds; the outcome is in the "dispatch" field.
package api
