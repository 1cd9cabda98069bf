// Package metrics keeps the engine's counters and the refresh latency
// histogram.
//
// Writes are single atomic adds into padded slots and never allocate.
// [Metrics.Snapshot] copies the current values; the exporters under
// metrics/export read snapshots and never touch the slots directly.
// A disabled Metrics is a no-op on every method.
package metrics
