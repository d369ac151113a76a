package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"mediapipe/internal/asset"
	"mediapipe/internal/logging"
	"mediapipe/internal/queue"
	"mediapipe/internal/services"
	"mediapipe/internal/stageexec"
)

func (m *Manager) processJob(ctx context.Context, workerLogger *slog.Logger, job *queue.Job) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithJobID(services.WithAssetID(ctx, job.AssetID), job.ID)
	logger := logging.WithContext(ctx, workerLogger).With(
		logging.String("job_kind", string(job.Kind)),
		logging.Int("job_attempt", job.Attempts),
	)

	m.trackJob(job, 1)
	defer m.trackJob(nil, -1)

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	var err error
	switch job.Kind {
	case queue.KindProcess:
		err = m.runProcess(ctx, logger, job)
	case queue.KindThumbnail, queue.KindMetadata:
		err = m.runOptional(ctx, logger, job)
	default:
		err = fmt.Errorf("job %d: %w: unknown kind %q", job.ID, services.ErrValidation, job.Kind)
		m.finishJob(ctx, logger, job, err)
	}
	if err != nil && ctx.Err() == nil {
		m.setLastError(err)
	}
}

// runProcess drives the mandatory stage. A redelivered job whose asset is
// still processing resumes the interrupted run.
func (m *Manager) runProcess(ctx context.Context, logger *slog.Logger, job *queue.Job) error {
	result, err := m.processor.Submit(ctx, job.AssetID)
	if err == nil && result.NoOp && result.Status == asset.StatusProcessing && job.Attempts > 1 {
		result, err = m.processor.Resume(ctx, job.AssetID)
	}
	if ctx.Err() != nil {
		logger.Debug("job interrupted by shutdown")
		return ctx.Err()
	}
	if err != nil {
		m.retryOrFail(ctx, logger, job, err)
		return err
	}
	if result.NoOp {
		logger.Debug("process job had nothing to do",
			logging.String("asset_status", string(result.Status)),
			logging.Bool("not_found", result.NotFound),
		)
	}
	m.finishJob(ctx, logger, job, nil)
	return nil
}

// runOptional performs one attempt of a best-effort stage. Retries go back
// through the queue so other jobs are not blocked by the backoff.
func (m *Manager) runOptional(ctx context.Context, logger *slog.Logger, job *queue.Job) error {
	handler, ok := m.optional[job.Kind]
	if !ok {
		err := fmt.Errorf("job %d: %w: no handler registered for %s", job.ID, services.ErrConfiguration, job.Kind)
		m.finishJob(ctx, logger, job, err)
		return err
	}

	err := stageexec.Attempt(ctx, stageexec.Options{
		Logger:   m.logger,
		Assets:   m.assets,
		Handler:  handler,
		AssetID:  job.AssetID,
		Observer: m.metrics,
	}, job.Attempts)
	if err == nil || services.IsNotFound(err) {
		m.finishJob(ctx, logger, job, nil)
		return nil
	}
	if ctx.Err() != nil {
		logger.Debug("job interrupted by shutdown")
		return ctx.Err()
	}
	if services.IsRetryable(err) && job.AttemptsLeft() {
		m.retry(ctx, logger, job, err)
		return err
	}

	exhausted := stageexec.Exhausted(handler, job.Attempts, err)
	logging.WarnWithContext(logger, "optional stage gave up; asset keeps its status", "optional_stage_exhausted",
		logging.Error(exhausted),
		logging.String(logging.FieldErrorHint, "run mediapipe reprocess to try again"),
		logging.String(logging.FieldImpact, fmt.Sprintf("asset has no %s derivative", handler.Name())),
	)
	m.finishJob(ctx, logger, job, exhausted)
	return exhausted
}

func (m *Manager) retryOrFail(ctx context.Context, logger *slog.Logger, job *queue.Job, err error) {
	if services.IsRetryable(err) && job.AttemptsLeft() {
		m.retry(ctx, logger, job, err)
		return
	}
	logging.ErrorWithContext(logger, "job failed", "job_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect with mediapipe queue list and retry with mediapipe queue retry"),
	)
	m.finishJob(ctx, logger, job, err)
}

func (m *Manager) retry(ctx context.Context, logger *slog.Logger, job *queue.Job, err error) {
	delay := stageexec.Backoff(m.cfg.RetryBackoff(), job.Attempts)
	if rerr := m.jobs.Retry(ctx, job.ID, services.FailureMessage(err), delay); rerr != nil {
		logger.Error("failed to reschedule job", logging.Error(rerr))
		return
	}
	logger.Info("job rescheduled",
		logging.String(logging.FieldEventType, "job_retry"),
		logging.Duration("retry_in", delay),
		logging.Int("max_attempts", job.MaxAttempts),
	)
}

// finishJob records the final job state. A nil err marks it done.
func (m *Manager) finishJob(ctx context.Context, logger *slog.Logger, job *queue.Job, err error) {
	var ferr error
	if err == nil {
		ferr = m.jobs.Complete(ctx, job.ID)
	} else {
		ferr = m.jobs.Fail(ctx, job.ID, services.FailureMessage(err))
	}
	if ferr != nil {
		logger.Error("failed to record job result", logging.Error(ferr))
	}
}
