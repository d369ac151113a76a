package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"mediapipe/internal/asset"
	"mediapipe/internal/blob"
	"mediapipe/internal/config"
	"mediapipe/internal/logging"
	"mediapipe/internal/transcoder"
)

// thumbnailBoxes are the square bounds for each size class.
var thumbnailBoxes = map[asset.SizeClass]int{
	asset.SizeSmall:  150,
	asset.SizeMedium: 300,
	asset.SizeLarge:  800,
}

// Thumbnail renders the small, medium and large previews. Images are
// cover-cropped; videos contribute a letterboxed frame.
type Thumbnail struct {
	base
}

// NewThumbnail constructs the thumbnailing stage handler.
func NewThumbnail(cfg *config.Config, assets AssetWriter, blobs blob.Store, media MediaTool, logger *slog.Logger) *Thumbnail {
	return &Thumbnail{base: newBase("thumbnail", cfg, assets, blobs, media, logger)}
}

func (t *Thumbnail) Name() string { return NameThumbnail }

func (t *Thumbnail) Mandatory() bool { return false }

func (t *Thumbnail) Timeout() time.Duration {
	_, timeout, _ := t.cfg.StageTimeouts()
	return timeout
}

// Run renders every size class and replaces the asset's thumbnail set. Sizes
// that fail are left out; the run fails only when none succeeded.
func (t *Thumbnail) Run(ctx context.Context, a *asset.Asset) error {
	logger := logging.WithContext(ctx, t.logger)

	src, err := t.resolveOriginal(ctx, NameThumbnail, a)
	if err != nil {
		return err
	}
	work, cleanup, err := t.scratch(NameThumbnail, a.ID)
	if err != nil {
		return err
	}
	defer cleanup()

	thumbs := make(map[asset.SizeClass]string, len(thumbnailBoxes))
	var errs []error
	for _, class := range asset.SizeClasses() {
		stored, err := t.render(ctx, a, src, filepath.Join(work, string(class)+".jpg"), class)
		if err != nil {
			if ctx.Err() != nil {
				t.discard(ctx, logger, values(thumbs)...)
				return err
			}
			logging.WarnWithContext(logger, "thumbnail size failed", "thumbnail_size_failed",
				logging.String("size_class", string(class)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the original with ffprobe"),
				logging.String(logging.FieldImpact, "size omitted from the thumbnail set"),
			)
			errs = append(errs, fmt.Errorf("%s: %w", class, err))
			continue
		}
		thumbs[class] = stored
	}
	if len(thumbs) == 0 {
		return fmt.Errorf("no thumbnail size succeeded: %w", errors.Join(errs...))
	}

	if err := t.assets.ReplaceThumbnails(ctx, a.ID, thumbs); err != nil {
		t.discard(ctx, logger, values(thumbs)...)
		return err
	}
	for class, previous := range a.Thumbnails {
		if previous != thumbs[class] {
			t.discard(ctx, logger, previous)
		}
	}

	logger.Info("thumbnails stored",
		logging.String(logging.FieldEventType, "thumbnails_stored"),
		logging.Int("sizes", len(thumbs)),
		logging.String("thumbnail_path", thumbs[asset.CanonicalThumbnail]),
	)
	return nil
}

func (t *Thumbnail) render(ctx context.Context, a *asset.Asset, src, local string, class asset.SizeClass) (string, error) {
	side := thumbnailBoxes[class]
	box := transcoder.Box{Width: side, Height: side, Quality: t.cfg.Transcoder.ThumbnailQuality}

	var err error
	if a.Kind == asset.KindImage {
		local, err = t.media.Thumbnail(ctx, src, local, box)
	} else {
		local, err = t.media.ExtractFrame(ctx, src, local, t.cfg.Transcoder.ThumbnailOffset, box)
	}
	if err != nil {
		return "", err
	}
	return t.store(ctx, NameThumbnail, segmentThumbnails, local)
}

// HealthCheck verifies ffmpeg is reachable for video frame extraction.
func (t *Thumbnail) HealthCheck(context.Context) Health {
	return binaryHealth(NameThumbnail, ffmpegRequirement(t.cfg))
}

func values(m map[asset.SizeClass]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
