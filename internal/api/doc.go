// Package api implements the HTTP REST API and WebSocket server for the
// litter box bridge.
//
// This package provides:
//   - REST endpoints for the litter box snapshot, switches, buttons,
//     snapshot history and usage history
//   - Account discovery for first-time setup
//   - WebSocket hub pushing snapshots as the controller publishes them
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Security
//
// Users are declared in configuration; POST /api/v1/auth/login exchanges a
// username and password for a bearer token. Each route requires a
// permission derived from the token's role. WebSocket connections use
// single-use tickets so the token never appears in a URL.
//
// # Graceful Degradation
//
// The API serves the last known snapshot while the vendor cloud is
// unreachable; commands fail with 502 until it returns.
package api
