package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"mediapipe/internal/config"
	"mediapipe/internal/services"
)

func TestNewPathLayout(t *testing.T) {
	now := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	got := NewPath("compressed", ".JPG", now)
	pattern := regexp.MustCompile(`^media/compressed/2024/03/[0-9a-f-]{36}\.jpg$`)
	if !pattern.MatchString(got) {
		t.Fatalf("unexpected blob path %q", got)
	}
	if NewPath("compressed", "jpg", now) == got {
		t.Fatal("expected unique blob paths")
	}
}

func TestCleanPathRejectsEscapes(t *testing.T) {
	for _, p := range []string{"", "/etc/passwd", "../secret", "media/../../x", "."} {
		if _, err := cleanPath(p); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("cleanPath(%q) = %v, want validation error", p, err)
		}
	}
	got, err := cleanPath(`media\image\a.png`)
	if err != nil || got != "media/image/a.png" {
		t.Fatalf("cleanPath with backslashes = %q, %v", got, err)
	}
}

func TestLocalRoundTrip(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	ctx := context.Background()

	stored, err := store.Write(ctx, "media/image/2024/01/a.png", strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if stored != "media/image/2024/01/a.png" {
		t.Fatalf("unexpected stored path %q", stored)
	}

	rc, err := store.Open(ctx, stored)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "pixels" {
		t.Fatalf("unexpected blob contents %q", data)
	}

	local, err := store.Resolve(ctx, stored)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if local != filepath.Join(store.Root(), "media", "image", "2024", "01", "a.png") {
		t.Fatalf("unexpected resolved path %q", local)
	}

	entries, err := os.ReadDir(filepath.Dir(local))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}

	if err := store.Delete(ctx, stored); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Resolve(ctx, stored); !services.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := store.Open(ctx, stored); !services.IsNotFound(err) {
		t.Fatalf("expected not found on open after delete, got %v", err)
	}
	if err := store.Delete(ctx, stored); err != nil {
		t.Fatalf("deleting a missing blob should succeed: %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestLocalWriteFailureLeavesNoPartialBlob(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Write(ctx, "media/video/b.mp4", failingReader{}); err == nil {
		t.Fatal("expected write failure")
	}
	entries, err := os.ReadDir(filepath.Join(store.Root(), "media", "video"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, found %d", len(entries))
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.BlobDir = t.TempDir()
	cfg.Paths.CacheDir = t.TempDir()

	store, err := New(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("New(local) failed: %v", err)
	}
	if _, ok := store.(*Local); !ok {
		t.Fatalf("expected local store, got %T", store)
	}

	cfg.Storage.Backend = config.StorageS3
	cfg.Storage.S3Bucket = "media"
	cfg.Storage.S3Prefix = "tenant-a"
	cfg.Storage.S3Endpoint = "http://127.0.0.1:9000"
	cfg.Storage.S3AccessKey = "minio"
	cfg.Storage.S3SecretKey = "minio-secret"
	cfg.Storage.S3PathStyle = true
	store, err = New(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("New(s3) failed: %v", err)
	}
	s3Store, ok := store.(*S3)
	if !ok {
		t.Fatalf("expected s3 store, got %T", store)
	}
	if got := s3Store.key("media/a.jpg"); got != "tenant-a/media/a.jpg" {
		t.Fatalf("unexpected object key %q", got)
	}

	cfg.Storage.Backend = "ftp"
	if _, err := New(context.Background(), &cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
