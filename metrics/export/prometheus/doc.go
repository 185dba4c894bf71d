// Package prometheus renders authcore engine metrics in Prometheus
// text exposition format.
//
// [NewPrometheusExporter] wraps an engine and exposes an http.Handler.
// Counter names are prefixed authcore_*_total; the single histogram is
// authcore_validate_latency_seconds. Nothing is registered globally
// and engine state is never mutated.
package prometheus
