package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mediapipe/internal/config"
	"mediapipe/internal/logging"
	"mediapipe/internal/pipeline"
	"mediapipe/internal/queue"
	"mediapipe/internal/stageexec"
	"mediapipe/internal/stages"
)

// Processor runs the mandatory part of the pipeline for one asset.
type Processor interface {
	Submit(ctx context.Context, id int64) (pipeline.SubmitResult, error)
	Resume(ctx context.Context, id int64) (pipeline.SubmitResult, error)
}

// Recorder receives worker metrics.
type Recorder interface {
	stageexec.Observer
	QueueDepth(counts map[string]int)
	JobStarted()
	JobFinished()
}

// Options wires a Manager.
type Options struct {
	Config    *config.Config
	Jobs      *queue.Store
	Assets    stageexec.AssetLoader
	Processor Processor
	// Handlers lists every stage handler. Thumbnail and metadata handlers are
	// dispatched from their queue kinds; all of them report health.
	Handlers []stages.Handler
	Metrics  Recorder
	Logger   *slog.Logger
}

// Manager coordinates the worker pool that drains the stage queue.
type Manager struct {
	cfg       *config.Config
	jobs      *queue.Store
	assets    stageexec.AssetLoader
	processor Processor
	handlers  []stages.Handler
	optional  map[queue.Kind]stages.Handler
	metrics   Recorder
	logger    *slog.Logger

	workers      int
	pollInterval time.Duration
	heartbeat    *HeartbeatMonitor

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
	active  int
}

// NewManager constructs a worker pool manager.
func NewManager(opts Options) (*Manager, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("workflow: config is required")
	case opts.Jobs == nil:
		return nil, errors.New("workflow: job queue is required")
	case opts.Assets == nil:
		return nil, errors.New("workflow: asset loader is required")
	case opts.Processor == nil:
		return nil, errors.New("workflow: processor is required")
	}
	logger := logging.NewComponentLogger(opts.Logger, "workflow")
	cfg := opts.Config

	optional := make(map[queue.Kind]stages.Handler, 2)
	for _, h := range opts.Handlers {
		switch h.Name() {
		case stages.NameThumbnail:
			optional[queue.KindThumbnail] = h
		case stages.NameMetadata:
			optional[queue.KindMetadata] = h
		}
	}

	return &Manager{
		cfg:          cfg,
		jobs:         opts.Jobs,
		assets:       opts.Assets,
		processor:    opts.Processor,
		handlers:     opts.Handlers,
		optional:     optional,
		metrics:      opts.Metrics,
		logger:       logger,
		workers:      max(cfg.Pipeline.Workers, 1),
		pollInterval: max(time.Duration(cfg.Pipeline.QueuePollInterval)*time.Second, 100*time.Millisecond),
		heartbeat: NewHeartbeatMonitor(
			opts.Jobs,
			logger,
			time.Duration(cfg.Pipeline.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Pipeline.HeartbeatTimeout)*time.Second,
		),
	}, nil
}
