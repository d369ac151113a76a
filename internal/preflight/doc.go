// Package preflight provides readiness checks for external services
// and filesystem paths that mediapipe depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check before
//     the worker pool begins claiming jobs.
//   - The CLI "mediapipe status" command renders RunAll and CheckSystemDeps
//     results next to the queue summary.
//
// Each check is gated by its config toggle. Unconfigured sinks are skipped.
package preflight
