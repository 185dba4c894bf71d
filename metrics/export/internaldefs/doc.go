// Package internaldefs holds the metric name and bucket definitions
// shared by the exporter implementations.
//
// Counter and histogram definitions live here so the Prometheus and
// OTel exporters render identical metric names and bucket boundaries.
// The package imports authcore only for MetricID values and performs
// no I/O.
package internaldefs
