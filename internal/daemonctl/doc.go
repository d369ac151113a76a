// Package daemonctl controls a background mediapipe daemon from the CLI.
//
// Liveness comes from the single-instance lock and PID file the daemon holds
// under the data directory. When the daemon exposes its HTTP API, Client reads
// the live status; otherwise Snapshot falls back to the SQLite stores.
package daemonctl
