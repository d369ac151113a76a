package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediapipe/internal/asset"
	"mediapipe/internal/blob"
	"mediapipe/internal/config"
	"mediapipe/internal/logging"
	"mediapipe/internal/notifications"
	"mediapipe/internal/queue"
	"mediapipe/internal/services"
	"mediapipe/internal/stageexec"
	"mediapipe/internal/stages"
)

// Publisher delivers completion events.
type Publisher interface {
	Publish(ctx context.Context, event notifications.Event) error
}

// Recorder receives stage and transition metrics.
type Recorder interface {
	stageexec.Observer
	Transition(status string)
}

// Options wires an Orchestrator.
type Options struct {
	Config      *config.Config
	Assets      *asset.Store
	Jobs        *queue.Store
	Blobs       blob.Store
	Compression stages.Handler
	Notifier    Publisher
	Metrics     Recorder
	Logger      *slog.Logger
}

// Orchestrator drives assets through the processing state machine.
type Orchestrator struct {
	cfg         *config.Config
	assets      *asset.Store
	jobs        *queue.Store
	blobs       blob.Store
	compression stages.Handler
	notifier    Publisher
	metrics     Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// SubmitResult reports what a Submit, Resume or Reprocess call did.
type SubmitResult struct {
	// NoOp is set when the call found the asset in a state it does not act on.
	NoOp bool
	// NotFound is set when the asset is missing or soft-deleted.
	NotFound bool
	// Status is the asset status after the call.
	Status asset.Status
	// Err is the compression failure recorded on a failed asset.
	Err error
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("pipeline: config is required")
	case opts.Assets == nil:
		return nil, errors.New("pipeline: asset store is required")
	case opts.Jobs == nil:
		return nil, errors.New("pipeline: job queue is required")
	case opts.Blobs == nil:
		return nil, errors.New("pipeline: blob store is required")
	case opts.Compression == nil:
		return nil, errors.New("pipeline: compression stage is required")
	}
	return &Orchestrator{
		cfg:         opts.Config,
		assets:      opts.Assets,
		jobs:        opts.Jobs,
		blobs:       opts.Blobs,
		compression: opts.Compression,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		logger:      logging.NewComponentLogger(opts.Logger, "pipeline"),
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Submit starts processing a pending asset. Assets in any other status, and
// missing assets, produce a no-op result and no error.
func (o *Orchestrator) Submit(ctx context.Context, id int64) (SubmitResult, error) {
	ctx = services.WithAssetID(ctx, id)
	logger := logging.WithContext(ctx, o.logger)

	applied, err := o.assets.BeginProcessing(ctx, id)
	if err != nil {
		return SubmitResult{}, err
	}
	if !applied {
		result, err := o.noOp(ctx, id)
		if err == nil {
			logger.Debug("submit ignored",
				logging.String(logging.FieldEventType, "submit_noop"),
				logging.String("status", string(result.Status)),
				logging.Bool("not_found", result.NotFound),
			)
		}
		return result, err
	}
	o.transitioned(logger, asset.StatusPending, asset.StatusProcessing)

	o.scheduleOptional(ctx, logger, id, false)
	return o.compressAndFinalize(ctx, id)
}

// Resume continues an asset whose process job was interrupted. It acts only
// on assets still marked processing.
func (o *Orchestrator) Resume(ctx context.Context, id int64) (SubmitResult, error) {
	ctx = services.WithAssetID(ctx, id)
	a, err := o.assets.Get(ctx, id)
	if services.IsNotFound(err) {
		return SubmitResult{NoOp: true, NotFound: true}, nil
	}
	if err != nil {
		return SubmitResult{}, err
	}
	if a.Status != asset.StatusProcessing {
		return SubmitResult{NoOp: true, Status: a.Status}, nil
	}

	logger := logging.WithContext(ctx, o.logger)
	logger.Info("resuming interrupted processing",
		logging.String(logging.FieldEventType, "processing_resumed"),
	)
	o.scheduleOptional(ctx, logger, id, true)
	return o.compressAndFinalize(ctx, id)
}

func (o *Orchestrator) compressAndFinalize(ctx context.Context, id int64) (SubmitResult, error) {
	compressionErr := stageexec.Run(ctx, stageexec.Options{
		Logger:      o.logger,
		Assets:      o.assets,
		Handler:     o.compression,
		AssetID:     id,
		Observer:    o.metrics,
		MaxAttempts: o.cfg.Pipeline.MaxAttempts,
		Backoff:     o.cfg.RetryBackoff(),
	})
	if ctx.Err() != nil {
		// Shutdown: leave the asset processing for Resume.
		return SubmitResult{Status: asset.StatusProcessing}, ctx.Err()
	}

	return o.finalize(ctx, id, compressionErr)
}

// finalize commits the terminal transition for a processing asset and
// publishes the completion event when this call's update applied. Partial
// stage results are kept either way.
func (o *Orchestrator) finalize(ctx context.Context, id int64, compressionErr error) (SubmitResult, error) {
	logger := logging.WithContext(ctx, o.logger)

	target := asset.StatusCompleted
	var (
		applied bool
		err     error
	)
	if compressionErr == nil {
		applied, err = o.assets.Complete(ctx, id)
	} else {
		target = asset.StatusFailed
		applied, err = o.assets.Fail(ctx, id, services.FailureMessage(compressionErr))
	}
	if err != nil {
		return SubmitResult{}, fmt.Errorf("finalize asset %d: %w", id, err)
	}
	if !applied {
		return o.noOp(ctx, id)
	}
	o.transitioned(logger, asset.StatusProcessing, target)
	result := SubmitResult{Status: target, Err: compressionErr}

	a, err := o.assets.Get(ctx, id)
	if err != nil {
		if services.IsNotFound(err) {
			return result, nil
		}
		return result, fmt.Errorf("load finalized asset: %w", err)
	}
	o.deliver(ctx, a)
	return result, nil
}

// deliver publishes the completion event for a terminal asset and clears its
// pending-notification flag once every subscriber has been tried.
func (o *Orchestrator) deliver(ctx context.Context, a *asset.Asset) {
	if o.notifier != nil {
		if err := o.notifier.Publish(ctx, notifications.NewEvent(a, o.now())); err != nil {
			logging.WithContext(ctx, o.logger).Debug("completion event partially delivered", logging.Error(err))
		}
	}
	if ctx.Err() != nil {
		return
	}
	if err := o.assets.ClearNotifyPending(ctx, a.ID); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "notification flag not cleared", "notify_flag_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the event will be replayed on next daemon start"),
			logging.String(logging.FieldImpact, "subscribers may receive a duplicate event"),
		)
	}
}

// ReplayPending re-publishes completion events that were not acknowledged
// before a crash. It returns the number of events replayed.
func (o *Orchestrator) ReplayPending(ctx context.Context) (int, error) {
	pending, err := o.assets.PendingNotifications(ctx)
	if err != nil {
		return 0, err
	}
	for _, a := range pending {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		o.deliver(services.WithAssetID(ctx, a.ID), a)
	}
	if len(pending) > 0 {
		o.logger.Info("replayed pending completion events",
			logging.String(logging.FieldEventType, "notification_replay"),
			logging.Int("count", len(pending)),
		)
	}
	return len(pending), nil
}

// scheduleOptional enqueues the thumbnail and metadata jobs. With onlyMissing,
// kinds that already have a pending or running job for the asset are skipped;
// finished jobs belong to an earlier run. Scheduling failures
// leave the asset without that derivative and are only logged.
func (o *Orchestrator) scheduleOptional(ctx context.Context, logger *slog.Logger, id int64, onlyMissing bool) {
	existing := map[queue.Kind]bool{}
	if onlyMissing {
		jobs, err := o.jobs.ForAsset(ctx, id)
		if err == nil {
			for _, job := range jobs {
				if job.Status == queue.StatusPending || job.Status == queue.StatusRunning {
					existing[job.Kind] = true
				}
			}
		}
	}
	for _, kind := range []queue.Kind{queue.KindThumbnail, queue.KindMetadata} {
		if existing[kind] {
			continue
		}
		if _, err := o.jobs.Enqueue(ctx, id, kind, o.cfg.Pipeline.MaxAttempts); err != nil {
			logging.WarnWithContext(logger, "optional stage not scheduled", "stage_schedule_failed",
				logging.String("job_kind", string(kind)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run mediapipe reprocess once the queue is healthy"),
				logging.String(logging.FieldImpact, "asset will lack this derivative"),
			)
		}
	}
}

func (o *Orchestrator) noOp(ctx context.Context, id int64) (SubmitResult, error) {
	a, err := o.assets.Get(ctx, id)
	if services.IsNotFound(err) {
		return SubmitResult{NoOp: true, NotFound: true}, nil
	}
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{NoOp: true, Status: a.Status}, nil
}

func (o *Orchestrator) transitioned(logger *slog.Logger, from, to asset.Status) {
	if o.metrics != nil {
		o.metrics.Transition(string(to))
	}
	logger.Info("asset status changed",
		logging.String(logging.FieldEventType, "status_transition"),
		logging.String("from", string(from)),
		logging.String("to", string(to)),
	)
}
