// Package stageexec runs stage handlers with the pipeline's execution rules:
// the asset is reloaded before every attempt, each attempt gets its own
// timeout, retryable failures back off exponentially, and a vanished asset
// ends the run silently.
package stageexec
