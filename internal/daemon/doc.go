// Package daemon coordinates the long-running mediapipe process.
//
// It ties the asset store, the stage queue, the pipeline Orchestrator and the
// workflow worker pool into a single lifecycle guarded by a flock-based lock,
// so only one daemon drains a given data directory. On start it redelivers
// completion events left pending by a previous crash before the workers begin
// claiming jobs. An optional read-only HTTP API exposes daemon status, asset
// status and queue contents.
package daemon
