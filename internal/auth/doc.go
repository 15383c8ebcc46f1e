// Package auth provides authentication and authorisation for the litter box
// bridge's HTTP API.
//
// API users are declared in configuration with Argon2id password hashes.
// A successful login yields a short-lived HS256 JWT carrying the user's role;
// the API validates it by signature alone. Roles map statically onto
// permissions:
//   - viewer: read device state, history and usage
//   - operator: viewer plus switches, buttons and manual refresh
//   - admin: operator plus account discovery
package auth
