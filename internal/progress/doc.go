// Package progress defines the events the archiver emits while it walks the
// catalog and the hub that stamps and fans them out to sinks such as the
// Prometheus exporter, the structured log, or the in-memory tally behind the
// status endpoint.
package progress
