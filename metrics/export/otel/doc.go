// Package otel binds authcore metrics to OpenTelemetry instruments.
//
// [NewExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket. One callback reads
// [authcore.Engine.MetricsSnapshot] per collection cycle. Callers own the
// MeterProvider.
package otel
