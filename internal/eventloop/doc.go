// Package eventloop provides the single logical thread the sync subsystem
// runs on.
//
// All component state is mutated only by closures executed on a Loop.
// Transport goroutines, timer expirations and fetch completions re-enter
// through Post. Timers is a table of at most one pending timer per
// purpose.
package eventloop
