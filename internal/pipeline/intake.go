package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"slices"
	"strings"

	"mediapipe/internal/asset"
	"mediapipe/internal/blob"
	"mediapipe/internal/logging"
	"mediapipe/internal/queue"
	"mediapipe/internal/services"
	"mediapipe/internal/textutil"
)

// Upload is one file handed to CreateAsset.
type Upload struct {
	OwnerID      int64
	Name         string
	OriginalName string
	MIMEType     string
	// Size is the declared size. The stored size is what Source yields.
	Size   int64
	Source io.Reader
	Tags   []string
}

var fallbackExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"video/mp4":       "mp4",
	"video/mpeg":      "mpeg",
	"video/quicktime": "mov",
	"video/x-msvideo": "avi",
	"video/webm":      "webm",
}

// CreateAsset validates an upload, stores the original, records a pending
// asset and schedules its processing.
func (o *Orchestrator) CreateAsset(ctx context.Context, up Upload) (*asset.Asset, error) {
	mimeType, err := o.validateUpload(up)
	if err != nil {
		return nil, err
	}
	kind := asset.KindForMIME(mimeType)

	ext := textutil.Extension(up.OriginalName)
	if ext == "" {
		ext = fallbackExtensions[mimeType]
	}
	dst := blob.NewPath(string(kind), ext, o.now())

	src := up.Source
	limit := o.cfg.MaxUploadBytes()
	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	counter := &countingReader{r: src}
	stored, err := o.blobs.Write(ctx, dst, counter)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "intake", "store original", "could not store upload", err)
	}
	if limit > 0 && counter.n > limit {
		o.discardBlob(ctx, stored, "rejected upload")
		return nil, fmt.Errorf("upload %q: %w: exceeds %d bytes", up.OriginalName, services.ErrValidation, limit)
	}
	if counter.n == 0 {
		o.discardBlob(ctx, stored, "rejected upload")
		return nil, fmt.Errorf("upload %q: %w: file is empty", up.OriginalName, services.ErrValidation)
	}

	name := strings.TrimSpace(up.Name)
	if name == "" {
		name = textutil.DisplayName(up.OriginalName, "untitled")
	}
	created, err := o.assets.Create(ctx, asset.NewAsset{
		OwnerID:      up.OwnerID,
		Name:         name,
		OriginalName: strings.TrimSpace(up.OriginalName),
		MIMEType:     mimeType,
		Kind:         kind,
		Size:         counter.n,
		Path:         stored,
	})
	if err != nil {
		o.discardBlob(ctx, stored, "rejected upload")
		return nil, err
	}

	ctx = services.WithAssetID(ctx, created.ID)
	logger := logging.WithContext(ctx, o.logger)
	if len(up.Tags) > 0 {
		if err := o.assets.AttachTags(ctx, created.ID, up.Tags...); err != nil {
			return nil, fmt.Errorf("attach tags: %w", err)
		}
	}
	if _, err := o.jobs.Enqueue(ctx, created.ID, queue.KindProcess, o.cfg.Pipeline.MaxAttempts); err != nil {
		logging.WarnWithContext(logger, "processing not scheduled", "process_schedule_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run mediapipe submit for this asset"),
			logging.String(logging.FieldImpact, "asset stays pending until submitted"),
		)
	}
	logger.Info("asset created",
		logging.String(logging.FieldEventType, "asset_created"),
		logging.String("kind", string(kind)),
		logging.Int64("size", counter.n),
		logging.String("path", stored),
	)
	return o.assets.Get(ctx, created.ID)
}

// validateUpload returns the normalized MIME type or a validation error.
func (o *Orchestrator) validateUpload(up Upload) (string, error) {
	if up.Source == nil {
		return "", fmt.Errorf("upload: %w: no content", services.ErrValidation)
	}
	mimeType := normalizeMIME(up.MIMEType)
	if mimeType == "" || !slices.Contains(o.allowedMIMETypes(), mimeType) {
		return "", fmt.Errorf("upload %q: %w: unsupported file type %q", up.OriginalName, services.ErrValidation, up.MIMEType)
	}
	if limit := o.cfg.MaxUploadBytes(); limit > 0 && up.Size > limit {
		return "", fmt.Errorf("upload %q: %w: %d bytes exceeds %d", up.OriginalName, services.ErrValidation, up.Size, limit)
	}
	for _, tag := range up.Tags {
		if strings.TrimSpace(tag) != "" && textutil.Slugify(tag) == "" {
			return "", fmt.Errorf("tag %q: %w: name has no usable characters", tag, services.ErrValidation)
		}
	}
	return mimeType, nil
}

func (o *Orchestrator) allowedMIMETypes() []string {
	out := make([]string, 0, len(o.cfg.Intake.AllowedMIMETypes))
	for _, value := range o.cfg.Intake.AllowedMIMETypes {
		out = append(out, normalizeMIME(value))
	}
	return out
}

func normalizeMIME(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(value); err == nil {
		return parsed
	}
	return strings.ToLower(value)
}

func (o *Orchestrator) discardBlob(ctx context.Context, path, reason string) {
	if o.blobs == nil || path == "" {
		return
	}
	if err := o.blobs.Delete(context.WithoutCancel(ctx), path); err != nil && !errors.Is(err, services.ErrNotFound) {
		logging.WarnWithContext(o.logger, "blob not removed", "blob_cleanup_failed",
			logging.String("path", path),
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldImpact, "orphaned blob remains in storage"),
		)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
