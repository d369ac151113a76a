package workflow

import (
	"context"
	"errors"
	"time"

	"mediapipe/internal/logging"
	"mediapipe/internal/queue"
)

// Start recovers orphaned jobs and launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}

	// A single daemon owns the queue, so anything still running belongs to a
	// previous process.
	reset, err := m.jobs.ResetRunning(ctx)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if reset > 0 {
		m.logger.Info("returned interrupted jobs to the queue",
			logging.String(logging.FieldEventType, "jobs_recovered"),
			logging.Int64("count", reset),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers + 1)
	m.mu.Unlock()

	for i := range m.workers {
		go m.runWorker(runCtx, i+1)
	}
	go m.runReclaimer(runCtx)

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval),
	)
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, worker int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", worker))

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := m.jobs.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			m.wait(ctx)
			continue
		}
		if job == nil {
			m.wait(ctx)
			continue
		}

		m.processJob(ctx, logger, job)
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	interval := m.heartbeat.ReclaimInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.heartbeat.ReclaimStale(ctx)
		m.reportQueueDepth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) reportQueueDepth(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	stats, err := m.jobs.Stats(ctx)
	if err != nil {
		return
	}
	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}
	m.metrics.QueueDepth(counts)
}

func (m *Manager) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) trackJob(job *queue.Job, delta int) {
	m.mu.Lock()
	m.active += delta
	if job != nil {
		snapshot := *job
		m.lastJob = &snapshot
	}
	m.mu.Unlock()
	if m.metrics == nil {
		return
	}
	if delta > 0 {
		m.metrics.JobStarted()
	} else {
		m.metrics.JobFinished()
	}
}
