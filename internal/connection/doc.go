// Package connection owns the single push-channel session.
//
// The Manager is a state machine (Disconnected, Connecting, Connected,
// Errored) that:
//   - Opens at most one session at a time, authenticated with the current token
//   - Sends a keepalive ping while connected
//   - Classifies every close reason and reconnects only after transient drops
//   - Keeps at most one reconnect timer pending
//
// The Manager runs on an eventloop.Loop and is not safe for concurrent use.
// WSTransport is the gorilla/websocket implementation of Transport; it does
// its I/O on its own goroutines and posts every callback back to the loop.
package connection
