// Package config loads, normalizes, and validates mediapipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MEDIAPIPE_S3_SECRET_KEY and NATS_URL. The Config type centralizes every knob
// the daemon and CLI need: storage backend, transcoder targets, worker pool
// sizing, per-stage timeouts, and completion event sinks.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
