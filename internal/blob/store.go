package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediapipe/internal/config"
	"mediapipe/internal/services"
)

// Store reads and writes blobs addressed by relative path.
type Store interface {
	// Open streams the blob at path. Missing blobs return services.ErrNotFound.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Write stores r at path atomically and returns the stored path.
	Write(ctx context.Context, path string, r io.Reader) (string, error)
	// Resolve returns a local filesystem path holding the blob's bytes.
	Resolve(ctx context.Context, path string) (string, error)
	// Delete removes the blob. Missing blobs are not an error.
	Delete(ctx context.Context, path string) error
}

// New builds the backend selected by storage.backend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageLocal, "":
		return NewLocal(cfg.Paths.BlobDir)
	case config.StorageS3:
		return NewS3(ctx, cfg.Storage, cfg.Paths.CacheDir)
	default:
		return nil, fmt.Errorf("blob store: %w: unsupported backend %q", services.ErrConfiguration, cfg.Storage.Backend)
	}
}

// NewPath builds a fresh blob path of the form
// media/<segment>/YYYY/MM/<uuid>.<ext>.
func NewPath(segment, ext string, now time.Time) string {
	name := uuid.NewString()
	if ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), "."); ext != "" {
		name += "." + ext
	}
	return path.Join("media", segment, now.Format("2006"), now.Format("01"), name)
}

// WriteFile stores the local file at src under dst.
func WriteFile(ctx context.Context, store Store, dst, src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	return store.Write(ctx, dst, f)
}

// cleanPath validates a relative blob path and returns its canonical form.
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", fmt.Errorf("blob path: %w: empty path", services.ErrValidation)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("blob path %q: %w: must be relative", p, services.ErrValidation)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("blob path %q: %w: escapes the store root", p, services.ErrValidation)
	}
	return cleaned, nil
}
