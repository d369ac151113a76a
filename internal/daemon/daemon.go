package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"mediapipe/internal/asset"
	"mediapipe/internal/config"
	"mediapipe/internal/deps"
	"mediapipe/internal/logging"
	"mediapipe/internal/pipeline"
	"mediapipe/internal/queue"
	"mediapipe/internal/workflow"
)

// Daemon coordinates background processing and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	assets   *asset.Store
	jobs     *queue.Store
	pipeline *pipeline.Orchestrator
	workflow *workflow.Manager
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Assets       map[asset.Status]int
	AssetDBPath  string
	QueueDBPath  string
	LockFilePath string
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, assets *asset.Store, jobs *queue.Store, orch *pipeline.Orchestrator, wf *workflow.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || assets == nil || jobs == nil || orch == nil || wf == nil {
		return nil, errors.New("daemon requires config, stores, orchestrator, and workflow manager")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		assets:   assets,
		jobs:     jobs,
		pipeline: orch,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, replays unacknowledged completion events
// and launches the worker pool.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediapipe daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if _, err := d.pipeline.ReplayPending(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "completion event replay failed", "notification_replay_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "events stay pending and are replayed on next start"),
		)
	}
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("mediapipe daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mediapipe daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stop"),
	)
}

// Close stops the daemon. The stores are owned by the caller.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.assets.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to read asset stats", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		Assets:       stats,
		AssetDBPath:  d.assets.Path(),
		QueueDBPath:  d.jobs.Path(),
		LockFilePath: d.lockPath,
		Dependencies: deps.CheckBinaries(deps.MediaRequirements(d.cfg.Transcoder)),
	}
}

// APIAddress returns the bound API address, or "" when the API is disabled
// or not running.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}
