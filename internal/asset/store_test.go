package asset_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"mediapipe/internal/asset"
	"mediapipe/internal/services"
	"mediapipe/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)
	ctx := context.Background()

	created, err := store.Create(ctx, asset.NewAsset{
		OwnerID:      7,
		OriginalName: "beach.png",
		MIMEType:     "image/png",
		Kind:         asset.KindImage,
		Size:         2048,
		Path:         "media/image/2024/05/abc.png",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected asset ID to be assigned")
	}
	if created.Status != asset.StatusPending {
		t.Fatalf("expected pending status, got %s", created.Status)
	}
	if created.Name != "beach.png" {
		t.Fatalf("expected name to default to original name, got %q", created.Name)
	}
	if created.HasCompressed() || created.HasThumbnails() || created.HasMetadata() {
		t.Fatalf("expected no derived fields on a new asset: %#v", created)
	}

	fetched, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.OwnerID != 7 || fetched.Size != 2048 || fetched.Kind != asset.KindImage {
		t.Fatalf("unexpected fetched asset: %#v", fetched)
	}
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)

	_, err := store.Create(context.Background(), asset.NewAsset{
		OriginalName: "doc.pdf",
		MIMEType:     "application/pdf",
		Kind:         asset.Kind("document"),
		Path:         "media/doc.pdf",
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetMissingAssetIsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)

	if _, err := store.Get(context.Background(), 4242); !services.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBeginProcessingAppliesOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)
	a := testsupport.NewAsset(t, store, asset.KindImage, "media/image/a.png")
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.BeginProcessing(ctx, a.ID)
			if err != nil {
				t.Errorf("BeginProcessing failed: %v", err)
				return
			}
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", winners.Load())
	}
	fetched, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != asset.StatusProcessing {
		t.Fatalf("expected processing, got %s", fetched.Status)
	}
}

func TestTerminalTransitionsKeepErrorMessageInvariant(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)
	ctx := context.Background()

	completed := testsupport.NewAsset(t, store, asset.KindImage, "media/image/ok.png")
	failed := testsupport.NewAsset(t, store, asset.KindVideo, "media/video/bad.mp4")

	for _, id := range []int64{completed.ID, failed.ID} {
		if ok, err := store.BeginProcessing(ctx, id); err != nil || !ok {
			t.Fatalf("BeginProcessing(%d) = %v, %v", id, ok, err)
		}
	}

	if _, err := store.Fail(ctx, failed.ID, "   "); err == nil {
		t.Fatal("expected empty failure message to be rejected")
	}
	if ok, err := store.Fail(ctx, failed.ID, "ffmpeg exited 1"); err != nil || !ok {
		t.Fatalf("Fail = %v, %v", ok, err)
	}
	if ok, err := store.Complete(ctx, completed.ID); err != nil || !ok {
		t.Fatalf("Complete = %v, %v", ok, err)
	}

	// A terminal asset cannot be re-finalized.
	if ok, err := store.Complete(ctx, failed.ID); err != nil || ok {
		t.Fatalf("expected Complete on failed asset to be a no-op, got %v, %v", ok, err)
	}
	if ok, err := store.Fail(ctx, completed.ID, "late failure"); err != nil || ok {
		t.Fatalf("expected Fail on completed asset to be a no-op, got %v, %v", ok, err)
	}

	assets, err := store.List(ctx, asset.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, a := range assets {
		if (a.Status == asset.StatusFailed) != (a.ErrorMessage != "") {
			t.Fatalf("asset %d violates error message invariant: status=%s message=%q", a.ID, a.Status, a.ErrorMessage)
		}
	}

	pending, err := store.PendingNotifications(ctx)
	if err != nil {
		t.Fatalf("PendingNotifications failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected both terminal assets awaiting notification, got %d", len(pending))
	}
	if err := store.ClearNotifyPending(ctx, completed.ID); err != nil {
		t.Fatalf("ClearNotifyPending failed: %v", err)
	}
	pending, err = store.PendingNotifications(ctx)
	if err != nil {
		t.Fatalf("PendingNotifications failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != failed.ID {
		t.Fatalf("expected only failed asset pending, got %#v", pending)
	}
}

func TestResetToPendingClearsFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)
	ctx := context.Background()
	a := testsupport.NewAsset(t, store, asset.KindVideo, "media/video/x.mp4")

	if reset, err := store.ResetToPending(ctx, a.ID); err != nil || reset != nil {
		t.Fatalf("expected reset of a pending asset to be a no-op, got %#v, %v", reset, err)
	}
	if _, err := store.BeginProcessing(ctx, a.ID); err != nil {
		t.Fatalf("BeginProcessing failed: %v", err)
	}
	if _, err := store.Fail(ctx, a.ID, "boom"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	reset, err := store.ResetToPending(ctx, a.ID)
	if err != nil || reset == nil {
		t.Fatalf("ResetToPending = %#v, %v", reset, err)
	}
	if reset.From != asset.StatusFailed {
		t.Fatalf("expected reset from failed, got %s", reset.From)
	}
	fetched, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != asset.StatusPending || fetched.ErrorMessage != "" {
		t.Fatalf("unexpected asset after reset: status=%s message=%q", fetched.Status, fetched.ErrorMessage)
	}
}

func TestResetToPendingDropsDerivatives(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)
	ctx := context.Background()
	a := testsupport.NewAsset(t, store, asset.KindImage, "media/image/photo.jpg")

	if _, err := store.BeginProcessing(ctx, a.ID); err != nil {
		t.Fatalf("BeginProcessing failed: %v", err)
	}
	if err := store.SetCompressedPath(ctx, a.ID, "media/compressed/photo.jpg"); err != nil {
		t.Fatalf("SetCompressedPath failed: %v", err)
	}
	thumbs := map[asset.SizeClass]string{
		asset.SizeSmall:  "media/thumbnails/small/photo.jpg",
		asset.SizeMedium: "media/thumbnails/medium/photo.jpg",
	}
	if err := store.ReplaceThumbnails(ctx, a.ID, thumbs); err != nil {
		t.Fatalf("ReplaceThumbnails failed: %v", err)
	}
	if err := store.UpsertMetadata(ctx, a.ID, asset.Metadata{Width: 640, Height: 480}); err != nil {
		t.Fatalf("UpsertMetadata failed: %v", err)
	}
	if ok, err := store.Complete(ctx, a.ID); err != nil || !ok {
		t.Fatalf("Complete = %v, %v", ok, err)
	}

	reset, err := store.ResetToPending(ctx, a.ID)
	if err != nil || reset == nil {
		t.Fatalf("ResetToPending = %#v, %v", reset, err)
	}
	if reset.From != asset.StatusCompleted {
		t.Fatalf("expected reset from completed, got %s", reset.From)
	}
	if len(reset.Stale) != 3 || reset.Stale[0] != "media/compressed/photo.jpg" {
		t.Fatalf("expected compressed path and both thumbnails as stale, got %v", reset.Stale)
	}

	fetched, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.HasCompressed() || fetched.HasThumbnails() || fetched.HasMetadata() || fetched.ThumbnailPath != "" {
		t.Fatalf("expected derivatives cleared, got %#v", fetched)
	}
	if got := asset.Progress(fetched); got != 0 {
		t.Fatalf("expected progress 0 after reset, got %d", got)
	}
}

func TestFieldWritesAreIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)
	ctx := context.Background()
	a := testsupport.NewAsset(t, store, asset.KindVideo, "media/video/clip.mp4")

	if err := store.SetCompressedPath(ctx, a.ID, "media/compressed/2024/05/c.mp4"); err != nil {
		t.Fatalf("SetCompressedPath failed: %v", err)
	}

	first := map[asset.SizeClass]string{
		asset.SizeSmall:  "media/thumbnails/small/1.jpg",
		asset.SizeMedium: "media/thumbnails/medium/1.jpg",
		asset.SizeLarge:  "media/thumbnails/large/1.jpg",
	}
	second := map[asset.SizeClass]string{
		asset.SizeSmall:  "media/thumbnails/small/2.jpg",
		asset.SizeMedium: "media/thumbnails/medium/2.jpg",
	}
	if err := store.ReplaceThumbnails(ctx, a.ID, first); err != nil {
		t.Fatalf("ReplaceThumbnails failed: %v", err)
	}
	if err := store.ReplaceThumbnails(ctx, a.ID, second); err != nil {
		t.Fatalf("ReplaceThumbnails (second) failed: %v", err)
	}

	meta := asset.Metadata{Width: 1920, Height: 1080, Duration: 12, Codec: "h264", Bitrate: 800000, FrameRate: 29.97}
	if err := store.UpsertMetadata(ctx, a.ID, meta); err != nil {
		t.Fatalf("UpsertMetadata failed: %v", err)
	}
	meta.Width = 1280
	meta.Extra = map[string]any{"format_name": "mov,mp4"}
	if err := store.UpsertMetadata(ctx, a.ID, meta); err != nil {
		t.Fatalf("UpsertMetadata (second) failed: %v", err)
	}

	fetched, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.CompressedPath != "media/compressed/2024/05/c.mp4" {
		t.Fatalf("unexpected compressed path %q", fetched.CompressedPath)
	}
	if len(fetched.Thumbnails) != 2 {
		t.Fatalf("expected thumbnail set to be replaced, got %v", fetched.Thumbnails)
	}
	if fetched.ThumbnailPath != second[asset.SizeMedium] {
		t.Fatalf("expected canonical thumbnail to track medium, got %q", fetched.ThumbnailPath)
	}
	if fetched.Metadata == nil || fetched.Metadata.Width != 1280 || fetched.Metadata.Codec != "h264" {
		t.Fatalf("unexpected metadata: %#v", fetched.Metadata)
	}
	if fetched.Metadata.Extra["format_name"] != "mov,mp4" {
		t.Fatalf("unexpected metadata extras: %#v", fetched.Metadata.Extra)
	}
	if fetched.Status != asset.StatusPending {
		t.Fatalf("field writes must not touch status, got %s", fetched.Status)
	}
}

func TestSoftDeletedAssetIsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)
	ctx := context.Background()
	a := testsupport.NewAsset(t, store, asset.KindImage, "media/image/gone.png")

	if err := store.SoftDelete(ctx, a.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := store.Get(ctx, a.ID); !services.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := store.GetAny(ctx, a.ID); err != nil {
		t.Fatalf("GetAny should still load deleted asset: %v", err)
	}
	if err := store.SetCompressedPath(ctx, a.ID, "x.jpg"); !services.IsNotFound(err) {
		t.Fatalf("expected not found for write on deleted asset, got %v", err)
	}
	if err := store.UpsertMetadata(ctx, a.ID, asset.Metadata{Width: 1}); !services.IsNotFound(err) {
		t.Fatalf("expected not found for metadata on deleted asset, got %v", err)
	}
	if ok, err := store.BeginProcessing(ctx, a.ID); err != nil || ok {
		t.Fatalf("expected BeginProcessing on deleted asset to be a no-op, got %v, %v", ok, err)
	}
	if err := store.SoftDelete(ctx, a.ID); !services.IsNotFound(err) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
}

func TestTagsAndListFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)
	ctx := context.Background()

	beach := testsupport.NewAsset(t, store, asset.KindImage, "media/image/beach.png")
	clip := testsupport.NewAsset(t, store, asset.KindVideo, "media/video/clip.mp4")

	if err := store.AttachTags(ctx, beach.ID, "Summer Trip", "Beach"); err != nil {
		t.Fatalf("AttachTags failed: %v", err)
	}
	if err := store.AttachTags(ctx, clip.ID, "summer trip"); err != nil {
		t.Fatalf("AttachTags failed: %v", err)
	}
	if err := store.AttachTags(ctx, clip.ID, "Summer Trip"); err != nil {
		t.Fatalf("re-attaching an existing tag should be ignored: %v", err)
	}

	tags, err := store.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected tags to dedupe by slug, got %#v", tags)
	}

	tagged, err := store.List(ctx, asset.Filter{Tag: "summer-trip"})
	if err != nil {
		t.Fatalf("List by tag failed: %v", err)
	}
	if len(tagged) != 2 {
		t.Fatalf("expected 2 assets tagged summer-trip, got %d", len(tagged))
	}

	videos, err := store.List(ctx, asset.Filter{Kind: asset.KindVideo})
	if err != nil {
		t.Fatalf("List by kind failed: %v", err)
	}
	if len(videos) != 1 || videos[0].ID != clip.ID {
		t.Fatalf("unexpected video list: %#v", videos)
	}

	searched, err := store.List(ctx, asset.Filter{Search: "beac"})
	if err != nil {
		t.Fatalf("List by search failed: %v", err)
	}
	if len(searched) != 1 || searched[0].ID != beach.ID {
		t.Fatalf("unexpected search results: %#v", searched)
	}

	if err := store.DetachTags(ctx, beach.ID, "beach"); err != nil {
		t.Fatalf("DetachTags failed: %v", err)
	}
	fetched, err := store.Get(ctx, beach.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(fetched.Tags) != 1 || fetched.Tags[0].Slug != "summer-trip" {
		t.Fatalf("unexpected tags after detach: %#v", fetched.Tags)
	}

	if err := store.AttachTags(ctx, beach.ID, "!!!"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unusable tag, got %v", err)
	}
}

func TestStatsCountsLiveAssets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAssetStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewAsset(t, store, asset.KindImage, "media/image/1.png")
	testsupport.NewAsset(t, store, asset.KindImage, "media/image/2.png")
	deleted := testsupport.NewAsset(t, store, asset.KindImage, "media/image/3.png")
	if _, err := store.BeginProcessing(ctx, a.ID); err != nil {
		t.Fatalf("BeginProcessing failed: %v", err)
	}
	if err := store.SoftDelete(ctx, deleted.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[asset.StatusPending] != 1 || stats[asset.StatusProcessing] != 1 || stats[asset.StatusCompleted] != 0 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}
