package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"mediapipe/internal/asset"
	"mediapipe/internal/config"
	"mediapipe/internal/queue"
)

// MustOpenAssetStore opens an asset.Store for tests and registers cleanup.
func MustOpenAssetStore(t testing.TB, cfg *config.Config) *asset.Store {
	t.Helper()

	store, err := asset.Open(cfg)
	if err != nil {
		t.Fatalf("asset.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenQueue opens a queue.Store for tests and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewAsset records a pending asset whose original lives at blobPath.
func NewAsset(t testing.TB, store *asset.Store, kind asset.Kind, blobPath string) *asset.Asset {
	t.Helper()

	mimeType := "image/png"
	if kind == asset.KindVideo {
		mimeType = "video/mp4"
	}
	a, err := store.Create(context.Background(), asset.NewAsset{
		OwnerID:      1,
		OriginalName: filepath.Base(blobPath),
		MIMEType:     mimeType,
		Kind:         kind,
		Size:         1,
		Path:         blobPath,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return a
}
