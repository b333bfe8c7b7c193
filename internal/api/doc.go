// Package api provides the REST client for the bot backend.
//
// The sync subsystem only needs the authoritative full fetch:
//   - GET /api/bots      list every bot visible to the token
//   - GET /api/bots/{id} one bot
//   - GET /api/ping      reachability check
//
// Responses use the envelope {success, count, data, message}; a body with
// success=false is a failure even when the HTTP status is 2xx.
package api
