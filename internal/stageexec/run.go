package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediapipe/internal/asset"
	"mediapipe/internal/logging"
	"mediapipe/internal/services"
	"mediapipe/internal/stages"
)

// Attempt outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeTimeout = "timeout"
	OutcomeFailure = "failure"
)

// AssetLoader reloads the asset snapshot a stage acts on.
type AssetLoader interface {
	Get(ctx context.Context, id int64) (*asset.Asset, error)
}

// Observer receives one call per finished attempt.
type Observer interface {
	StageAttempt(stage, outcome string, elapsed time.Duration)
}

// Options controls stage execution.
type Options struct {
	Logger   *slog.Logger
	Assets   AssetLoader
	Handler  stages.Handler
	AssetID  int64
	Observer Observer
	// MaxAttempts bounds Run. Values below 1 mean a single attempt.
	MaxAttempts int
	// Backoff is the delay before the second attempt; it doubles each retry.
	Backoff time.Duration
}

// Run executes the handler until it succeeds, fails permanently, or exhausts
// MaxAttempts. A missing or deleted asset returns nil. Exhaustion returns an
// error marked services.ErrFatalStage for mandatory stages and
// services.ErrNonFatalStage otherwise. Cancellation of ctx returns an error
// wrapping the context error and no stage marker, so callers can tell shutdown
// apart from failure.
func Run(ctx context.Context, opts Options) error {
	if err := validate(opts); err != nil {
		return err
	}
	maxAttempts := max(opts.MaxAttempts, 1)
	logger := stageLogger(ctx, opts)

	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		err := Attempt(ctx, opts, attempts)
		if err == nil || services.IsNotFound(err) {
			return nil
		}
		if ctx.Err() != nil {
			return interrupted(opts, ctx.Err())
		}
		lastErr = err
		if !services.IsRetryable(err) || attempts == maxAttempts {
			break
		}
		delay := Backoff(opts.Backoff, attempts)
		logging.WarnWithContext(logger, "stage attempt failed; retrying", "stage_retry",
			logging.Int("attempt", attempts),
			logging.Int("max_attempts", maxAttempts),
			logging.Duration("retry_in", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient failure; the stage will be retried"),
			logging.String(logging.FieldImpact, "stage completion delayed"),
		)
		if err := sleep(ctx, delay); err != nil {
			return interrupted(opts, err)
		}
	}
	return Exhausted(opts.Handler, attempts, lastErr)
}

// Attempt performs one reload-then-run cycle under the handler's timeout.
// The returned error is the handler's own, unclassified; NotFound means the
// asset is gone and the caller should treat the work as done.
func Attempt(ctx context.Context, opts Options, attempt int) error {
	if err := validate(opts); err != nil {
		return err
	}
	name := opts.Handler.Name()
	ctx = services.WithStage(services.WithAssetID(ctx, opts.AssetID), name)
	logger := logging.WithContext(ctx, opts.Logger)

	a, err := opts.Assets.Get(ctx, opts.AssetID)
	if err != nil {
		if services.IsNotFound(err) {
			logger.Info("asset no longer exists; skipping stage",
				logging.String(logging.FieldEventType, "stage_skipped"),
			)
			observe(opts, OutcomeSkipped, 0)
		}
		return err
	}

	attemptCtx := ctx
	if timeout := opts.Handler.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("attempt", attempt),
		logging.String("asset_kind", string(a.Kind)),
		logging.String("asset_status", string(a.Status)),
	)
	start := time.Now()
	err = opts.Handler.Run(attemptCtx, a)
	elapsed := time.Since(start)

	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
		err = services.Wrap(services.ErrTimeout, name, "run", fmt.Sprintf("exceeded %s", opts.Handler.Timeout()), err)
	}

	switch {
	case err == nil:
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("duration", elapsed),
		)
		observe(opts, OutcomeSuccess, elapsed)
	case services.IsNotFound(err):
		logger.Info("asset removed during stage; result discarded",
			logging.String(logging.FieldEventType, "stage_skipped"),
			logging.Duration("duration", elapsed),
		)
		observe(opts, OutcomeSkipped, elapsed)
	default:
		outcome := OutcomeFailure
		if errors.Is(err, services.ErrTimeout) {
			outcome = OutcomeTimeout
		}
		logging.ErrorWithContext(logger, "stage failed", "stage_failure",
			logging.Int("attempt", attempt),
			logging.Bool("retryable", services.IsRetryable(err)),
			logging.Duration("duration", elapsed),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hint(err)),
		)
		observe(opts, outcome, elapsed)
	}
	return err
}

// Exhausted wraps the last failure of a stage whose attempts are used up.
func Exhausted(h stages.Handler, attempts int, err error) error {
	marker := services.ErrNonFatalStage
	if h.Mandatory() {
		marker = services.ErrFatalStage
	}
	return services.Wrap(marker, h.Name(), "run", fmt.Sprintf("gave up after %d attempt(s)", attempts), err)
}

// Backoff returns the delay before retry number attempt (1-based): base,
// then doubling.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 1 {
		return 0
	}
	shift := min(attempt-1, 10)
	return base << shift
}

func interrupted(opts Options, err error) error {
	return fmt.Errorf("stage %s interrupted: %w", opts.Handler.Name(), err)
}

func validate(opts Options) error {
	if opts.Handler == nil {
		return errors.New("stage handler is required")
	}
	if opts.Assets == nil {
		return errors.New("asset loader is required")
	}
	return nil
}

func stageLogger(ctx context.Context, opts Options) *slog.Logger {
	ctx = services.WithStage(services.WithAssetID(ctx, opts.AssetID), opts.Handler.Name())
	return logging.WithContext(ctx, opts.Logger)
}

func observe(opts Options, outcome string, elapsed time.Duration) {
	if opts.Observer != nil {
		opts.Observer.StageAttempt(opts.Handler.Name(), outcome, elapsed)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hint(err error) string {
	switch {
	case errors.Is(err, services.ErrTimeout):
		return "raise the stage timeout or check system load"
	case errors.Is(err, services.ErrUnsupportedInput):
		return "the upload cannot be decoded; re-upload a supported file"
	case errors.Is(err, services.ErrValidation):
		return "the original upload is missing or invalid"
	case errors.Is(err, services.ErrConfiguration):
		return "check transcoder binaries in config"
	default:
		return "check tool output in logs"
	}
}
