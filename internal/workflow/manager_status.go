package workflow

import (
	"context"

	"mediapipe/internal/logging"
	"mediapipe/internal/queue"
	"mediapipe/internal/stages"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	ActiveJobs  int
	LastError   string
	LastJob     *queue.Job
	QueueStats  map[queue.Status]int
	StageHealth map[string]stages.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.running,
		Workers:    m.workers,
		ActiveJobs: m.active,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		snapshot := *m.lastJob
		summary.LastJob = &snapshot
	}
	m.mu.RUnlock()

	stats, err := m.jobs.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats

	summary.StageHealth = make(map[string]stages.Health, len(m.handlers))
	for _, h := range m.handlers {
		summary.StageHealth[h.Name()] = h.HealthCheck(ctx)
	}
	return summary
}
