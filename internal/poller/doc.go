// Package poller implements the fallback scheduler.
//
// While the push channel is connected, the Fallback checks once per
// CheckInterval how long ago the last successful full fetch was. When
// that exceeds StaleAfter it triggers one full fetch. Push-triggered
// fetches reset the clock, so the poll only runs when the push path has
// been silent. The Fallback is stopped whenever the connection is not
// connected.
package poller
