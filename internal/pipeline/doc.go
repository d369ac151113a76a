// Package pipeline owns the asset state machine.
//
// The Orchestrator is the only writer of asset status. Submit moves a pending
// asset to processing with a compare-and-set update, schedules the optional
// stages on the durable queue, runs Compression in-line and finalizes the
// asset to completed or failed. Only the caller whose terminal update applies
// publishes the completion event, so concurrent or repeated submissions are
// safe no-ops.
//
// Intake (CreateAsset), manual reprocessing, soft deletion and the status
// projection live here too, since each of them starts or observes a
// transition.
package pipeline
