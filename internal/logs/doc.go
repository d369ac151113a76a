// Package logs reads the daemon log for `mediapipe logs`.
//
// Tail returns the last N matching lines or everything after a byte offset,
// optionally waiting for new lines. AssetFilter narrows output to one asset in
// either the console or the JSON log format.
package logs
