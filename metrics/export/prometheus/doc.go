// Package prometheus exposes authcore metrics through prometheus/client_golang.
//
// [Collector] reads [authcore.Engine.MetricsSnapshot] on every scrape and
// emits authcore_*_total counters plus the authcore_refresh_latency_seconds
// histogram. Register it on any prometheus.Registerer, or mount
// [Collector.Handler] for a standalone registry.
package prometheus
