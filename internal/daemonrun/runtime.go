package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mediapipe/internal/asset"
	"mediapipe/internal/blob"
	"mediapipe/internal/config"
	"mediapipe/internal/metrics"
	"mediapipe/internal/notifications"
	"mediapipe/internal/pipeline"
	"mediapipe/internal/queue"
	"mediapipe/internal/stages"
	"mediapipe/internal/transcoder"
)

// Runtime holds the long-lived components shared by the daemon and the CLI.
type Runtime struct {
	Config       *config.Config
	Logger       *slog.Logger
	Assets       *asset.Store
	Jobs         *queue.Store
	Blobs        blob.Store
	Metrics      *metrics.Recorder
	Notifier     *notifications.Notifier
	Handlers     []stages.Handler
	Orchestrator *pipeline.Orchestrator
}

// Build opens the stores and wires every component. Callers must Close the
// returned Runtime.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	rt := &Runtime{Config: cfg, Logger: logger, Metrics: metrics.New()}

	var err error
	if rt.Assets, err = asset.Open(cfg); err != nil {
		return nil, fmt.Errorf("open asset store: %w", err)
	}
	if rt.Jobs, err = queue.Open(cfg); err != nil {
		rt.Close()
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	if rt.Blobs, err = blob.New(ctx, cfg); err != nil {
		rt.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	if rt.Notifier, err = notifications.FromConfig(cfg, logger); err != nil {
		rt.Close()
		return nil, fmt.Errorf("configure notifications: %w", err)
	}
	rt.Notifier.SetObserver(rt.Metrics)

	media := transcoder.New(cfg.Transcoder, logger)
	compression := stages.NewCompression(cfg, rt.Assets, rt.Blobs, media, logger)
	rt.Handlers = []stages.Handler{
		compression,
		stages.NewThumbnail(cfg, rt.Assets, rt.Blobs, media, logger),
		stages.NewMetadata(cfg, rt.Assets, rt.Blobs, media, logger),
	}

	rt.Orchestrator, err = pipeline.New(pipeline.Options{
		Config:      cfg,
		Assets:      rt.Assets,
		Jobs:        rt.Jobs,
		Blobs:       rt.Blobs,
		Compression: compression,
		Notifier:    rt.Notifier,
		Metrics:     rt.Metrics,
		Logger:      logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close releases the notifier connections and both databases.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	if rt.Notifier != nil {
		errs = append(errs, rt.Notifier.Close())
	}
	if rt.Jobs != nil {
		errs = append(errs, rt.Jobs.Close())
	}
	if rt.Assets != nil {
		errs = append(errs, rt.Assets.Close())
	}
	return errors.Join(errs...)
}
