package stages

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"mediapipe/internal/asset"
	"mediapipe/internal/blob"
	"mediapipe/internal/config"
	"mediapipe/internal/logging"
	"mediapipe/internal/transcoder"
)

// Compression produces the size-reduced rendition of the original upload. It
// is the only mandatory stage: its outcome decides the asset's terminal status.
type Compression struct {
	base
}

// NewCompression constructs the compression stage handler.
func NewCompression(cfg *config.Config, assets AssetWriter, blobs blob.Store, media MediaTool, logger *slog.Logger) *Compression {
	return &Compression{base: newBase("compression", cfg, assets, blobs, media, logger)}
}

func (c *Compression) Name() string { return NameCompression }

func (c *Compression) Mandatory() bool { return true }

func (c *Compression) Timeout() time.Duration {
	timeout, _, _ := c.cfg.StageTimeouts()
	return timeout
}

// Run transcodes the original and records the stored rendition's path.
func (c *Compression) Run(ctx context.Context, a *asset.Asset) error {
	logger := logging.WithContext(ctx, c.logger)

	src, err := c.resolveOriginal(ctx, NameCompression, a)
	if err != nil {
		return err
	}
	work, cleanup, err := c.scratch(NameCompression, a.ID)
	if err != nil {
		return err
	}
	defer cleanup()

	spec, ext := c.target(a.Kind)
	out, err := c.media.Transcode(ctx, src, filepath.Join(work, "compressed."+ext), spec)
	if err != nil {
		return err
	}

	stored, err := c.store(ctx, NameCompression, segmentCompressed, out)
	if err != nil {
		return err
	}
	if err := c.assets.SetCompressedPath(ctx, a.ID, stored); err != nil {
		c.discard(ctx, logger, stored)
		return err
	}
	if a.CompressedPath != "" && a.CompressedPath != stored {
		c.discard(ctx, logger, a.CompressedPath)
	}

	logger.Info("compressed rendition stored",
		logging.String(logging.FieldEventType, "compression_stored"),
		logging.String("compressed_path", stored),
		logging.Int64("original_bytes", a.Size),
		logging.Int64("compressed_bytes", fileSize(out)),
	)
	return nil
}

func (c *Compression) target(kind asset.Kind) (transcoder.TargetSpec, string) {
	if kind == asset.KindImage {
		return transcoder.ImageTarget(c.cfg.Transcoder), "jpg"
	}
	return transcoder.VideoTarget(c.cfg.Transcoder), "mp4"
}

// HealthCheck verifies ffmpeg is reachable for video compression.
func (c *Compression) HealthCheck(context.Context) Health {
	return binaryHealth(NameCompression, ffmpegRequirement(c.cfg))
}
