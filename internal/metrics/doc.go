// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Push connection state and lifecycle counters
//   - Inbound event rates by event name
//   - Full fetch counts and failures, time of the last refresh
//   - Bot counts by status, readiness and joined rooms
//   - Activity journal buffer depth, drops and write latency
//
// Collectors are registered with the default registry at init. Gauges and
// counters derived from subsystem state are updated by a Collector that
// samples a snapshot periodically; event counters are incremented as
// events are routed.
package metrics
