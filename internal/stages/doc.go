// Package stages implements the per-asset derivation work: Compression,
// Thumbnailing and Metadata extraction.
//
// Every handler receives the asset snapshot loaded immediately before the
// attempt, writes only the fields it owns through a narrow store update, and
// leaves status transitions to the pipeline orchestrator. Stage outputs are
// produced in a scratch directory under the cache dir and then copied into the
// blob store, so a failed attempt never leaves a half-written blob behind.
package stages
