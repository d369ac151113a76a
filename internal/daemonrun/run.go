package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"mediapipe/internal/config"
	"mediapipe/internal/daemon"
	"mediapipe/internal/deps"
	"mediapipe/internal/logging"
	"mediapipe/internal/preflight"
	"mediapipe/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the mediapipe daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("mediapipe-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update daemon.log link: %v\n", err)
	}
	logging.PruneLogs(logger, cfg.Paths.LogDir, "mediapipe-*.log", cfg.Logging.RetentionDays, logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logDependencySnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)

	rt, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("runtime wiring failed", logging.Error(err))
		return err
	}
	defer rt.Close()

	manager, err := workflow.NewManager(workflow.Options{
		Config:    cfg,
		Jobs:      rt.Jobs,
		Assets:    rt.Assets,
		Processor: rt.Orchestrator,
		Handlers:  rt.Handlers,
		Metrics:   rt.Metrics,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, rt.Assets, rt.Jobs, rt.Orchestrator, manager, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if cfg.Metrics.Bind != "" {
		go func() {
			if err := rt.Metrics.Serve(signalCtx, cfg.Metrics.Bind, logger); err != nil {
				logging.WarnWithContext(logger, "metrics listener stopped", "metrics_listener_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check metrics.bind for conflicts"),
					logging.String(logging.FieldImpact, "metrics are not scraped"),
				)
			}
		}()
	}

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another running daemon and database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("mediapipe daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported path or endpoint and restart"),
			logging.String(logging.FieldImpact, "related stages or notifications may fail"),
		)
	}
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.String("video_encoder", cfg.Transcoder.VideoEncoder),
		logging.Int("workers", cfg.Pipeline.Workers),
	}
	for _, status := range deps.CheckBinaries(deps.MediaRequirements(cfg.Transcoder)) {
		attrs = append(attrs,
			logging.Bool(status.Command+"_available", status.Available),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "daemon.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
