// Package queue persists pipeline stage jobs in SQLite and exposes the claim,
// heartbeat, and retry operations the worker pool drives them with.
//
// A job names an asset and the kind of work to run against it (process,
// thumbnail, metadata). Workers claim pending jobs atomically, heartbeat while
// running, and either complete, reschedule, or fail them. Jobs whose worker
// stopped heartbeating are returned to pending by ReclaimStale, which gives the
// pipeline at-least-once execution across daemon crashes.
//
// The database is transient coordination state, separate from the asset
// records. Schema changes bump schemaVersion; operators clear queue.db to adopt
// a new schema.
package queue
