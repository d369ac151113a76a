// Package daemonrun assembles the mediapipe runtime from configuration and
// runs the daemon process until it is signalled to stop.
//
// Build wires the stores, blob backend, transcoder, stage handlers, notifier
// and Orchestrator; the CLI reuses it for one-shot commands. Run adds the
// per-run log file, preflight reporting, the metrics listener and the worker
// pool.
package daemonrun
