package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mediapipe/internal/services"
)

// Local keeps blobs on the filesystem below a root directory.
type Local struct {
	root string
}

// NewLocal returns a filesystem-backed store rooted at root.
func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local blob store: %w: root directory required", services.ErrConfiguration)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Local{root: root}, nil
}

// Root returns the directory blobs are stored under.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) fullPath(p string) (string, string, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

func (l *Local) Open(_ context.Context, p string) (io.ReadCloser, error) {
	_, full, err := l.fullPath(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", p, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", p, err)
	}
	return f, nil
}

// Write copies r into a temp file next to the target and renames it into
// place, so readers never observe a partial blob.
func (l *Local) Write(ctx context.Context, p string, r io.Reader) (string, error) {
	cleaned, full, err := l.fullPath(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".blob-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		return "", fmt.Errorf("write blob %s: %w", cleaned, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync blob %s: %w", cleaned, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob %s: %w", cleaned, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return "", fmt.Errorf("commit blob %s: %w", cleaned, err)
	}
	committed = true
	return cleaned, nil
}

func (l *Local) Resolve(_ context.Context, p string) (string, error) {
	_, full, err := l.fullPath(p)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("blob %s: %w", p, services.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("stat blob %s: %w", p, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("blob %s: %w: is a directory", p, services.ErrValidation)
	}
	return full, nil
}

func (l *Local) Delete(_ context.Context, p string) error {
	_, full, err := l.fullPath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", p, err)
	}
	return nil
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Store = (*Local)(nil)
