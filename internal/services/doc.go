// Package services defines shared utilities consumed by the pipeline, the
// stage handlers and the external tool wrappers.
//
// Key responsibilities:
//   - Context helpers that stamp asset IDs, job IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. Markers separate
//     retryable tool failures (timeouts, crashes) from terminal ones
//     (unsupported input, validation, vanished assets) and tag exhausted
//     stages as fatal or non-fatal.
//
// Use these helpers when wiring new stage logic so retry decisions and
// failure messages stay uniform across the pipeline.
package services
