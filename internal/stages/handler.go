package stages

import (
	"context"
	"time"

	"mediapipe/internal/asset"
	"mediapipe/internal/transcoder"
)

// Stage names used in logs, metrics and queue job kinds.
const (
	NameCompression = "compression"
	NameThumbnail   = "thumbnail"
	NameMetadata    = "metadata"
)

// Handler describes the contract the orchestrator and worker pool need from each stage.
type Handler interface {
	Name() string
	// Mandatory stages decide the asset's terminal status.
	Mandatory() bool
	// Timeout bounds a single attempt.
	Timeout() time.Duration
	Run(ctx context.Context, a *asset.Asset) error
	HealthCheck(ctx context.Context) Health
}

// AssetWriter is the slice of the asset store stages may touch.
type AssetWriter interface {
	SetCompressedPath(ctx context.Context, id int64, path string) error
	ReplaceThumbnails(ctx context.Context, id int64, thumbs map[asset.SizeClass]string) error
	UpsertMetadata(ctx context.Context, id int64, meta asset.Metadata) error
}

// MediaTool is the transcoder surface the stages depend on.
type MediaTool interface {
	Transcode(ctx context.Context, src, dst string, spec transcoder.TargetSpec) (string, error)
	Thumbnail(ctx context.Context, src, dst string, box transcoder.Box) (string, error)
	ExtractFrame(ctx context.Context, src, dst, offset string, box transcoder.Box) (string, error)
	Inspect(ctx context.Context, path string) (transcoder.ImageInfo, error)
	Probe(ctx context.Context, path string) (transcoder.VideoProbe, error)
}
