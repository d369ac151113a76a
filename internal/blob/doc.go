// Package blob stores original uploads and derived artifacts by relative path.
//
// Two backends implement Store: the local filesystem under paths.blob_dir and
// an S3-compatible bucket. Paths are slash-separated and relative, for example
// media/compressed/2024/05/<uuid>.jpg; the same path is recorded on the asset
// regardless of backend. Resolve materializes a blob as a local file so
// external tools such as ffmpeg can read it.
package blob
