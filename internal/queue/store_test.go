package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediapipe/internal/services"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	store, err := OpenPath(context.Background(), filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store.now = clock.Now
	return store, clock
}

func TestEnqueueDedupesPendingJobs(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	first, err := store.Enqueue(ctx, 1, KindThumbnail, 3)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	second, err := store.Enqueue(ctx, 1, KindThumbnail, 3)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected pending job to be reused, got %d and %d", first.ID, second.ID)
	}
	other, err := store.Enqueue(ctx, 1, KindMetadata, 3)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if other.ID == first.ID {
		t.Fatal("expected a distinct job for a different kind")
	}
	if first.Status != StatusPending || first.MaxAttempts != 3 || first.Attempts != 0 {
		t.Fatalf("unexpected new job: %#v", first)
	}

	if _, err := store.Enqueue(ctx, 1, Kind("transcode"), 3); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		if _, err := store.Enqueue(ctx, id, KindProcess, 1); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var (
		mu      sync.Mutex
		claimed = map[int64]int{}
		wg      sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.Claim(ctx)
				if err != nil {
					t.Errorf("Claim failed: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != 5 {
		t.Fatalf("expected all 5 jobs claimed, got %d", len(claimed))
	}
	for id, count := range claimed {
		if count != 1 {
			t.Fatalf("job %d claimed %d times", id, count)
		}
	}
}

func TestClaimFiltersByKindAndAvailability(t *testing.T) {
	store, clock := openTestStore(t)
	ctx := context.Background()

	thumb, _ := store.Enqueue(ctx, 1, KindThumbnail, 3)
	if _, err := store.Enqueue(ctx, 1, KindMetadata, 3); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	job, err := store.Claim(ctx, KindThumbnail)
	if err != nil || job == nil || job.ID != thumb.ID {
		t.Fatalf("Claim(thumbnail) = %#v, %v", job, err)
	}
	if job.Status != StatusRunning || job.Attempts != 1 || job.HeartbeatAt == nil {
		t.Fatalf("unexpected claimed job: %#v", job)
	}

	if err := store.Retry(ctx, job.ID, "ffmpeg exited 1", 4*time.Second); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if again, err := store.Claim(ctx, KindThumbnail); err != nil || again != nil {
		t.Fatalf("expected delayed job to be unavailable, got %#v, %v", again, err)
	}

	clock.Advance(5 * time.Second)
	again, err := store.Claim(ctx, KindThumbnail)
	if err != nil || again == nil {
		t.Fatalf("expected delayed job after backoff, got %#v, %v", again, err)
	}
	if again.Attempts != 2 || again.LastError != "ffmpeg exited 1" {
		t.Fatalf("unexpected retried job: %#v", again)
	}
	if !again.AttemptsLeft() {
		t.Fatal("expected a third attempt to remain")
	}
}

func TestCompleteAndFail(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	a, _ := store.Enqueue(ctx, 1, KindMetadata, 1)
	b, _ := store.Enqueue(ctx, 2, KindMetadata, 1)
	for range 2 {
		if _, err := store.Claim(ctx); err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
	}
	if err := store.Complete(ctx, a.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := store.Fail(ctx, b.ID, "unsupported input"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Done != 1 || health.Failed != 1 || health.Total != 2 {
		t.Fatalf("unexpected health: %#v", health)
	}

	retried, err := store.RetryFailed(ctx)
	if err != nil || retried != 1 {
		t.Fatalf("RetryFailed = %d, %v", retried, err)
	}
	job, err := store.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != StatusPending || job.Attempts != 0 || job.LastError != "" {
		t.Fatalf("unexpected retried job: %#v", job)
	}

	cleared, err := store.ClearFinished(ctx)
	if err != nil || cleared != 1 {
		t.Fatalf("ClearFinished = %d, %v", cleared, err)
	}
	if _, err := store.Get(ctx, a.ID); !services.IsNotFound(err) {
		t.Fatalf("expected cleared job to be gone, got %v", err)
	}
}

func TestReclaimStale(t *testing.T) {
	store, clock := openTestStore(t)
	ctx := context.Background()

	stale, _ := store.Enqueue(ctx, 1, KindProcess, 3)
	fresh, _ := store.Enqueue(ctx, 2, KindProcess, 3)
	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := store.Heartbeat(ctx, fresh.ID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	reclaimed, err := store.ReclaimStale(ctx, time.Minute)
	if err != nil || reclaimed != 1 {
		t.Fatalf("ReclaimStale = %d, %v", reclaimed, err)
	}
	job, err := store.Get(ctx, stale.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != StatusPending || job.Attempts != 1 {
		t.Fatalf("unexpected reclaimed job: %#v", job)
	}

	reset, err := store.ResetRunning(ctx)
	if err != nil || reset != 1 {
		t.Fatalf("ResetRunning = %d, %v", reset, err)
	}
	jobs, err := store.ForAsset(ctx, 2)
	if err != nil || len(jobs) != 1 || jobs[0].Status != StatusPending {
		t.Fatalf("ForAsset = %#v, %v", jobs, err)
	}
}
