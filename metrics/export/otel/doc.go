// Package otel binds fitAuth session lifecycle metrics to OpenTelemetry
// observable instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads
// [fitAuth.Client.MetricsSnapshot] on each collection.
//
// Callers own the MeterProvider.
package otel
