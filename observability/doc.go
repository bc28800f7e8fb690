// Package observability provides an OpenTelemetry-based metrics
// extension for Warren. The MetricsExtension implements lifecycle hooks
// to record counters for request registration, start, restart,
// completion, and removal events, plus histograms for checkpoint size
// and latency.
package observability
