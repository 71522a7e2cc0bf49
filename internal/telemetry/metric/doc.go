// Package metric provides Prometheus metrics for storyline.
//
//   - prometheus.go: the metrics registry, recorders and HTTP handler
//   - collector.go: a collector exporting capacity of the key-value stores
//
// Metrics include:
//
//   - Save store operation counts and latencies
//   - Save store lock contention and degraded mode
//   - History length
//   - Session snapshot writes and shrink retries
//
// Recorder methods are safe to call on a nil *Registry so components can
// run without metrics.
package metric
