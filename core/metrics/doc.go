// Package metrics defines the sink interfaces used to record dispatch
// observability data. Implementations live in infra/metrics.
package metrics
