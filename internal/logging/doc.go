// Package logging assembles structured slog loggers and formatting helpers used
// across mediapipe.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with asset IDs, job IDs, stages, and correlation IDs. Console
// output is colorized only when written to a terminal. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
