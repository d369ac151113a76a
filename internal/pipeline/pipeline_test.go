package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mediapipe/internal/asset"
	"mediapipe/internal/blob"
	"mediapipe/internal/config"
	"mediapipe/internal/logging"
	"mediapipe/internal/notifications"
	"mediapipe/internal/pipeline"
	"mediapipe/internal/queue"
	"mediapipe/internal/services"
	"mediapipe/internal/stages"
	"mediapipe/internal/testsupport"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []notifications.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notifications.Event(nil), p.events...)
}

// fakeCompression records a rendition path directly on the asset, or fails
// with the configured error. With hang set it blocks until the attempt's
// deadline.
type fakeCompression struct {
	assets  *asset.Store
	mu      sync.Mutex
	calls   int
	err     error
	hook    func()
	timeout time.Duration
	hang    bool
}

func (f *fakeCompression) Name() string                              { return stages.NameCompression }
func (f *fakeCompression) Mandatory() bool                           { return true }
func (f *fakeCompression) HealthCheck(context.Context) stages.Health { return stages.Healthy(f.Name()) }

func (f *fakeCompression) Timeout() time.Duration {
	if f.timeout > 0 {
		return f.timeout
	}
	return time.Minute
}

func (f *fakeCompression) Run(ctx context.Context, a *asset.Asset) error {
	f.mu.Lock()
	f.calls++
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.assets.SetCompressedPath(ctx, a.ID, "media/compressed/2024/01/fake.jpg")
}

func (f *fakeCompression) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
}

func (r *recordingMetrics) StageAttempt(string, string, time.Duration) {}

func (r *recordingMetrics) Transition(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, status)
}

type harness struct {
	cfg         *config.Config
	assets      *asset.Store
	jobs        *queue.Store
	blobs       *blob.Local
	compression *fakeCompression
	publisher   *recordingPublisher
	metrics     *recordingMetrics
	orch        *pipeline.Orchestrator
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	assets := testsupport.MustOpenAssetStore(t, cfg)
	jobs := testsupport.MustOpenQueue(t, cfg)
	blobs, err := blob.NewLocal(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blob.NewLocal: %v", err)
	}
	h := &harness{
		cfg:         cfg,
		assets:      assets,
		jobs:        jobs,
		blobs:       blobs,
		compression: &fakeCompression{assets: assets},
		publisher:   &recordingPublisher{},
		metrics:     &recordingMetrics{},
	}
	h.orch, err = pipeline.New(pipeline.Options{
		Config:      cfg,
		Assets:      assets,
		Jobs:        jobs,
		Blobs:       blobs,
		Compression: h.compression,
		Notifier:    h.publisher,
		Metrics:     h.metrics,
		Logger:      logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return h
}

func (h *harness) upload(t *testing.T, name, mimeType string, content []byte, tags ...string) *asset.Asset {
	t.Helper()
	created, err := h.orch.CreateAsset(context.Background(), pipeline.Upload{
		OwnerID:      7,
		OriginalName: name,
		MIMEType:     mimeType,
		Size:         int64(len(content)),
		Source:       bytes.NewReader(content),
		Tags:         tags,
	})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	return created
}

func (h *harness) reload(t *testing.T, id int64) *asset.Asset {
	t.Helper()
	a, err := h.assets.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%d): %v", id, err)
	}
	return a
}

func (h *harness) jobKinds(t *testing.T, id int64) map[queue.Kind]int {
	t.Helper()
	jobs, err := h.jobs.ForAsset(context.Background(), id)
	if err != nil {
		t.Fatalf("ForAsset: %v", err)
	}
	kinds := map[queue.Kind]int{}
	for _, job := range jobs {
		kinds[job.Kind]++
	}
	return kinds
}

func (h *harness) blobCount(t *testing.T) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(h.blobs.Root(), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk blobs: %v", err)
	}
	return count
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := pipeline.New(pipeline.Options{}); err == nil {
		t.Fatal("expected error for empty options")
	}
}

func TestSubmitCompletesImageAsset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.upload(t, "Holiday Photo.PNG", "image/png", []byte("png-bytes"), "Beach", "Summer 2024")

	if a.Status != asset.StatusPending {
		t.Fatalf("expected pending after intake, got %s", a.Status)
	}
	if a.Name != "Holiday Photo" || a.Kind != asset.KindImage || a.Size != 9 {
		t.Fatalf("unexpected intake record: %+v", a)
	}
	if !strings.HasPrefix(a.Path, "media/image/") || !strings.HasSuffix(a.Path, ".png") {
		t.Fatalf("unexpected original path %q", a.Path)
	}
	if len(a.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %+v", a.Tags)
	}
	if kinds := h.jobKinds(t, a.ID); kinds[queue.KindProcess] != 1 {
		t.Fatalf("expected a process job, got %v", kinds)
	}

	result, err := h.orch.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.NoOp || result.Status != asset.StatusCompleted {
		t.Fatalf("unexpected result %+v", result)
	}

	got := h.reload(t, a.ID)
	if got.Status != asset.StatusCompleted || got.ErrorMessage != "" || !got.HasCompressed() {
		t.Fatalf("unexpected final asset %+v", got)
	}
	kinds := h.jobKinds(t, a.ID)
	if kinds[queue.KindThumbnail] != 1 || kinds[queue.KindMetadata] != 1 {
		t.Fatalf("expected optional jobs to be scheduled, got %v", kinds)
	}

	events := h.publisher.Events()
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if events[0].Type != notifications.EventCompleted || events[0].AssetID != a.ID {
		t.Fatalf("unexpected event %+v", events[0])
	}
	if pending, err := h.assets.PendingNotifications(ctx); err != nil || len(pending) != 0 {
		t.Fatalf("expected notify flag cleared, got %d (err=%v)", len(pending), err)
	}
	if got := strings.Join(h.metrics.transitions, ","); got != "processing,completed" {
		t.Fatalf("unexpected transitions %q", got)
	}
}

func TestSubmitRecordsCompressionFailure(t *testing.T) {
	h := newHarness(t)
	h.compression.err = services.Wrap(services.ErrUnsupportedInput, stages.NameCompression, "decode", "cannot decode input", errors.New("bad header"))
	a := h.upload(t, "clip.mp4", "video/mp4", []byte("not-a-video"))

	result, err := h.orch.Submit(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Status != asset.StatusFailed || !errors.Is(result.Err, services.ErrFatalStage) {
		t.Fatalf("unexpected result %+v", result)
	}
	if h.compression.Calls() != 1 {
		t.Fatalf("unsupported input must not be retried, got %d calls", h.compression.Calls())
	}

	got := h.reload(t, a.ID)
	if got.Status != asset.StatusFailed || got.ErrorMessage == "" {
		t.Fatalf("expected failed asset with message, got %+v", got)
	}
	if got.HasCompressed() {
		t.Fatal("failed compression must not leave a rendition")
	}
	events := h.publisher.Events()
	if len(events) != 1 || events[0].Type != notifications.EventFailed {
		t.Fatalf("expected one failed event, got %+v", events)
	}
}

func TestSubmitRetriesTransientCompressionFailure(t *testing.T) {
	h := newHarness(t)
	failures := 2
	h.compression.hook = func() {
		h.compression.mu.Lock()
		defer h.compression.mu.Unlock()
		if failures > 0 {
			failures--
			h.compression.err = services.Wrap(services.ErrExternalTool, stages.NameCompression, "ffmpeg", "exit 1", nil)
			return
		}
		h.compression.err = nil
	}
	a := h.upload(t, "clip.mp4", "video/mp4", []byte("video"))

	result, err := h.orch.Submit(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Status != asset.StatusCompleted {
		t.Fatalf("expected completion after retries, got %+v", result)
	}
	if h.compression.Calls() != 3 {
		t.Fatalf("expected 3 attempts, got %d", h.compression.Calls())
	}
}

func TestSubmitIsNoOpOutsidePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))

	if _, err := h.orch.Submit(ctx, a.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	result, err := h.orch.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if !result.NoOp || result.Status != asset.StatusCompleted {
		t.Fatalf("expected no-op on completed asset, got %+v", result)
	}
	if h.compression.Calls() != 1 {
		t.Fatalf("expected a single compression run, got %d", h.compression.Calls())
	}
	if len(h.publisher.Events()) != 1 {
		t.Fatalf("expected no second event, got %d", len(h.publisher.Events()))
	}
}

func TestSubmitMissingAssetIsNotFoundNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.orch.Submit(ctx, 4242)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.NoOp || !result.NotFound {
		t.Fatalf("expected not-found no-op, got %+v", result)
	}

	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))
	if err := h.orch.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	result, err = h.orch.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("Submit deleted: %v", err)
	}
	if !result.NotFound || h.compression.Calls() != 0 {
		t.Fatalf("deleted asset must not be processed: %+v calls=%d", result, h.compression.Calls())
	}
}

func TestSubmitDeletedDuringCompressionPublishesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))
	h.compression.hook = func() {
		if err := h.assets.SoftDelete(ctx, a.ID); err != nil {
			t.Errorf("SoftDelete: %v", err)
		}
	}

	result, err := h.orch.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.NotFound {
		t.Fatalf("expected not-found result, got %+v", result)
	}
	if len(h.publisher.Events()) != 0 {
		t.Fatal("deleted asset must not produce an event")
	}
}

func TestConcurrentSubmitRunsCompressionOnce(t *testing.T) {
	h := newHarness(t)
	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []pipeline.SubmitResult
	)
	start := make(chan struct{})
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := h.orch.Submit(context.Background(), a.ID)
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	noOps := 0
	for _, result := range results {
		if result.NoOp {
			noOps++
		}
	}
	if len(results) != 2 || noOps != 1 {
		t.Fatalf("expected one winner and one no-op, got %+v", results)
	}
	if h.compression.Calls() != 1 {
		t.Fatalf("expected a single compression run, got %d", h.compression.Calls())
	}
	if len(h.publisher.Events()) != 1 {
		t.Fatalf("expected a single event, got %d", len(h.publisher.Events()))
	}
	if got := h.reload(t, a.ID); got.Status != asset.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestSubmitCancelledLeavesAssetProcessing(t *testing.T) {
	h := newHarness(t)
	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))
	ctx, cancel := context.WithCancel(context.Background())
	h.compression.hook = cancel
	h.compression.err = context.Canceled

	if _, err := h.orch.Submit(ctx, a.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if got := h.reload(t, a.ID); got.Status != asset.StatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}
	if len(h.publisher.Events()) != 0 {
		t.Fatal("interrupted run must not publish")
	}
}

func TestResumeFinishesInterruptedAsset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))

	if result, err := h.orch.Resume(ctx, a.ID); err != nil || !result.NoOp || result.Status != asset.StatusPending {
		t.Fatalf("Resume on pending: %+v err=%v", result, err)
	}

	if _, err := h.assets.BeginProcessing(ctx, a.ID); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if _, err := h.jobs.Enqueue(ctx, a.ID, queue.KindThumbnail, 3); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	result, err := h.orch.Resume(ctx, a.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if result.Status != asset.StatusCompleted {
		t.Fatalf("expected completed, got %+v", result)
	}
	kinds := h.jobKinds(t, a.ID)
	if kinds[queue.KindThumbnail] != 1 || kinds[queue.KindMetadata] != 1 {
		t.Fatalf("expected only missing optional jobs added, got %v", kinds)
	}
	if len(h.publisher.Events()) != 1 {
		t.Fatalf("expected one event, got %d", len(h.publisher.Events()))
	}
}

func TestReplayPendingRedeliversUnacknowledgedEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))

	// Simulate a crash between the terminal update and delivery.
	if _, err := h.assets.BeginProcessing(ctx, a.ID); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if _, err := h.assets.Complete(ctx, a.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	h.publisher.err = errors.New("subscriber offline")
	count, err := h.orch.ReplayPending(ctx)
	if err != nil {
		t.Fatalf("ReplayPending: %v", err)
	}
	if count != 1 || len(h.publisher.Events()) != 1 {
		t.Fatalf("expected one replayed event, got count=%d events=%d", count, len(h.publisher.Events()))
	}

	count, err = h.orch.ReplayPending(ctx)
	if err != nil {
		t.Fatalf("second ReplayPending: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected flag cleared after delivery attempt, got %d", count)
	}
}

func TestReprocessResetsTerminalAsset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.compression.err = services.Wrap(services.ErrUnsupportedInput, stages.NameCompression, "decode", "bad input", nil)
	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))

	if result, err := h.orch.Reprocess(ctx, a.ID); err != nil || !result.NoOp {
		t.Fatalf("Reprocess on pending should be a no-op: %+v err=%v", result, err)
	}
	if _, err := h.orch.Submit(ctx, a.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	result, err := h.orch.Reprocess(ctx, a.ID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if result.NoOp || result.Status != asset.StatusPending {
		t.Fatalf("unexpected reprocess result %+v", result)
	}
	got := h.reload(t, a.ID)
	if got.Status != asset.StatusPending || got.ErrorMessage != "" {
		t.Fatalf("expected clean pending asset, got %+v", got)
	}

	h.compression.err = nil
	result, err = h.orch.Submit(ctx, a.ID)
	if err != nil || result.Status != asset.StatusCompleted {
		t.Fatalf("resubmit: %+v err=%v", result, err)
	}
	events := h.publisher.Events()
	if len(events) != 2 || events[1].Type != notifications.EventCompleted {
		t.Fatalf("expected failed then completed events, got %+v", events)
	}
}

func TestReprocessDropsPreviousDerivatives(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))
	if _, err := h.orch.Submit(ctx, a.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	thumb, err := h.blobs.Write(ctx, "media/thumbnails/medium/a.jpg", strings.NewReader("thumb"))
	if err != nil {
		t.Fatalf("Write thumbnail: %v", err)
	}
	if err := h.assets.ReplaceThumbnails(ctx, a.ID, map[asset.SizeClass]string{asset.SizeMedium: thumb}); err != nil {
		t.Fatalf("ReplaceThumbnails: %v", err)
	}
	if err := h.assets.UpsertMetadata(ctx, a.ID, asset.Metadata{Width: 10, Height: 10}); err != nil {
		t.Fatalf("UpsertMetadata: %v", err)
	}

	if _, err := h.orch.Reprocess(ctx, a.ID); err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	view, err := h.orch.Status(ctx, a.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Status != asset.StatusPending || view.Progress != 0 {
		t.Fatalf("expected pending at 0%%, got %+v", view)
	}
	if view.HasCompressed || view.HasThumbnails || view.HasMetadata {
		t.Fatalf("expected previous derivatives cleared, got %+v", view)
	}
	if _, err := h.blobs.Resolve(ctx, thumb); !services.IsNotFound(err) {
		t.Fatalf("expected superseded thumbnail blob removed, got %v", err)
	}
	if _, err := h.blobs.Resolve(ctx, a.Path); err != nil {
		t.Fatalf("original must survive reprocessing: %v", err)
	}
	if got := strings.Join(h.metrics.transitions, ","); got != "processing,completed,pending" {
		t.Fatalf("unexpected transitions %q", got)
	}
}

func TestSubmitCompressionTimeoutFailsAsset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.compression.timeout = 20 * time.Millisecond
	h.compression.hang = true
	a := h.upload(t, "clip.mp4", "video/mp4", []byte("video"))

	// Thumbnails can land before compression gives up.
	if err := h.assets.ReplaceThumbnails(ctx, a.ID, map[asset.SizeClass]string{
		asset.SizeSmall:  "media/thumbnails/small/clip.jpg",
		asset.SizeMedium: "media/thumbnails/medium/clip.jpg",
	}); err != nil {
		t.Fatalf("ReplaceThumbnails: %v", err)
	}

	result, err := h.orch.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Status != asset.StatusFailed || !errors.Is(result.Err, services.ErrFatalStage) {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := h.compression.Calls(); got != h.cfg.Pipeline.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", h.cfg.Pipeline.MaxAttempts, got)
	}

	view, err := h.orch.Status(ctx, a.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Status != asset.StatusFailed || view.ErrorMessage == "" || view.Progress != 0 {
		t.Fatalf("expected failed at 0%% with a message, got %+v", view)
	}
	if got := h.reload(t, a.ID); !got.HasThumbnails() || got.HasCompressed() {
		t.Fatalf("expected thumbnails kept and no rendition, got %+v", got)
	}
	events := h.publisher.Events()
	if len(events) != 1 || events[0].Type != notifications.EventFailed {
		t.Fatalf("expected one failed event, got %+v", events)
	}
}

func TestResumeIgnoresFinishedJobsFromEarlierRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))
	if _, err := h.orch.Submit(ctx, a.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for range 2 {
		job, err := h.jobs.Claim(ctx, queue.KindThumbnail, queue.KindMetadata)
		if err != nil || job == nil {
			t.Fatalf("Claim: %v %v", job, err)
		}
		if err := h.jobs.Complete(ctx, job.ID); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}

	if _, err := h.orch.Reprocess(ctx, a.ID); err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	// Crash after the processing transition, before optional jobs were queued.
	if ok, err := h.assets.BeginProcessing(ctx, a.ID); err != nil || !ok {
		t.Fatalf("BeginProcessing: %v %v", ok, err)
	}
	if _, err := h.orch.Resume(ctx, a.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	kinds := h.jobKinds(t, a.ID)
	if kinds[queue.KindThumbnail] != 2 || kinds[queue.KindMetadata] != 2 {
		t.Fatalf("expected a fresh thumbnail and metadata job, got %v", kinds)
	}
}

func TestStatusProjectsProgress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.upload(t, "a.jpg", "image/jpeg", []byte("jpeg"))

	view, err := h.orch.Status(ctx, a.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Status != asset.StatusPending || view.Progress != 0 || view.HasCompressed {
		t.Fatalf("unexpected pending view %+v", view)
	}

	if _, err := h.assets.BeginProcessing(ctx, a.ID); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if err := h.assets.SetCompressedPath(ctx, a.ID, "media/compressed/x.jpg"); err != nil {
		t.Fatalf("SetCompressedPath: %v", err)
	}
	if err := h.assets.UpsertMetadata(ctx, a.ID, asset.Metadata{Width: 10, Height: 10}); err != nil {
		t.Fatalf("UpsertMetadata: %v", err)
	}
	view, err = h.orch.Status(ctx, a.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Progress != 70 || !view.HasCompressed || !view.HasMetadata || view.HasThumbnails {
		t.Fatalf("unexpected processing view %+v", view)
	}

	if _, err := h.orch.Status(ctx, 999); !services.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
