package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"mediapipe/internal/asset"
	"mediapipe/internal/blob"
	"mediapipe/internal/config"
	"mediapipe/internal/logging"
	"mediapipe/internal/services"
	"mediapipe/internal/textutil"
)

// Blob path segments for derived artifacts.
const (
	segmentCompressed = "compressed"
	segmentThumbnails = "thumbnails"
)

// base carries the collaborators every stage shares.
type base struct {
	cfg    *config.Config
	assets AssetWriter
	blobs  blob.Store
	media  MediaTool
	logger *slog.Logger
	now    func() time.Time
}

func newBase(component string, cfg *config.Config, assets AssetWriter, blobs blob.Store, media MediaTool, logger *slog.Logger) base {
	return base{
		cfg:    cfg,
		assets: assets,
		blobs:  blobs,
		media:  media,
		logger: logging.NewComponentLogger(logger, component),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// resolveOriginal materializes the uploaded original as a local file. A missing
// blob fails the asset: the returned chain must not carry services.ErrNotFound,
// which stage execution treats as a deleted asset.
func (b *base) resolveOriginal(ctx context.Context, stage string, a *asset.Asset) (string, error) {
	local, err := b.blobs.Resolve(ctx, a.Path)
	if err == nil {
		return local, nil
	}
	if services.IsNotFound(err) {
		return "", services.Wrap(services.ErrValidation, stage, "resolve original",
			fmt.Sprintf("original upload %s is missing from the blob store", a.Path), nil)
	}
	return "", services.Wrap(services.ErrTransient, stage, "resolve original", a.Path, err)
}

// scratch creates a private working directory under the cache dir.
func (b *base) scratch(stage string, id int64) (string, func(), error) {
	dir, err := os.MkdirTemp(b.cfg.Paths.CacheDir, fmt.Sprintf("%s-%d-*", stage, id))
	if err != nil {
		return "", nil, services.Wrap(services.ErrTransient, stage, "create scratch dir", "", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// store copies a locally produced artifact into the blob store under segment.
func (b *base) store(ctx context.Context, stage, segment, local string) (string, error) {
	dst := blob.NewPath(segment, textutil.Extension(local), b.now())
	stored, err := blob.WriteFile(ctx, b.blobs, dst, local)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stage, "store artifact", dst, err)
	}
	return stored, nil
}

// discard removes blobs that no record references anymore.
func (b *base) discard(ctx context.Context, logger *slog.Logger, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := b.blobs.Delete(ctx, p); err != nil {
			logging.WarnWithContext(logger, "orphaned blob cleanup failed", "blob_cleanup_failed",
				logging.String("blob_path", p),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the blob manually"),
				logging.String(logging.FieldImpact, "unreferenced file left in storage"),
			)
		}
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
