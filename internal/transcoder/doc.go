// Package transcoder wraps the media tooling the pipeline stages depend on:
// ffmpeg and ffprobe for video, the imaging library for still images, and the
// optional drapto AV1 encoder.
//
// External processes run in their own process group so that a stage timeout
// kills ffmpeg together with any helpers it spawned. Failures are classified
// with the services error markers: ErrTimeout when the deadline expires,
// ErrUnsupportedInput when the tool cannot decode the source, ErrExternalTool
// for any other non-zero exit, and ErrConfiguration when the binary is missing.
package transcoder
