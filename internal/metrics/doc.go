// Package metrics exposes pipeline counters and histograms through Prometheus.
//
// A Recorder owns its own registry so tests and multiple daemons in one
// process never collide on the default registerer. All Recorder methods are
// safe on a nil receiver, which lets callers treat metrics as optional.
package metrics
