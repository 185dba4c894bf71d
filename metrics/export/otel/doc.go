// Package otel provides OpenTelemetry metric bindings for authcore
// counters and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for
// each counter and Int64ObservableGauge instruments per histogram
// bucket. A single callback reads Engine.MetricsSnapshot on each
// collection cycle. The caller supplies the Meter and owns the
// MeterProvider.
package otel
