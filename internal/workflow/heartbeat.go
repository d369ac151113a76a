package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mediapipe/internal/logging"
	"mediapipe/internal/queue"
)

// HeartbeatMonitor keeps running jobs fresh and reclaims jobs whose worker
// stopped reporting.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimInterval is how often stale jobs are looked for.
func (h *HeartbeatMonitor) ReclaimInterval() time.Duration {
	if h.heartbeatTimeout <= 0 {
		return time.Minute
	}
	return max(h.heartbeatTimeout/2, time.Second)
}

// ReclaimStale returns jobs whose heartbeat is older than the timeout to pending.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) {
	if h.heartbeatTimeout <= 0 {
		return
	}
	reclaimed, err := h.store.ReclaimStale(ctx, h.heartbeatTimeout)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs",
			logging.String(logging.FieldEventType, "jobs_reclaimed"),
			logging.Int64("count", reclaimed),
		)
	}
}

// StartLoop refreshes the heartbeat of jobID until ctx is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String("component", "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.Heartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat stopped")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
