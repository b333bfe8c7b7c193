// Package botsync assembles one bot synchronization subsystem.
//
// A Syncer owns a connection manager, a room registry, an event router, a
// reconciler and a fallback poll, all driven by a single event loop. It
// wires them together: inbound events flow from the connection into the
// router, the reconciler subscribes to the router, and connection state
// changes re-join rooms and start or stop the fallback poll.
//
// Every component runs on the loop. The Syncer's exported methods are safe
// to call from any goroutine; they hop onto the loop with Loop.Do.
package botsync
