// Package workflow consumes the durable stage queue.
//
// The Manager runs a fixed pool of workers. Each worker claims one job at a
// time, keeps its heartbeat fresh while it runs, and dispatches by job kind:
// process jobs go to the pipeline Orchestrator, thumbnail and metadata jobs run
// one attempt of their stage handler. Failed optional-stage attempts are
// rescheduled through the queue with exponential backoff until their attempts
// are used up, at which point the failure is logged and the asset keeps its
// status.
//
// On start the Manager returns jobs orphaned by a previous process to pending,
// and a reclaimer periodically does the same for jobs whose heartbeat has gone
// stale.
package workflow
