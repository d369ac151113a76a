package queue

import (
	"context"
	"fmt"

	"mediapipe/internal/dbutil"
)

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM stage_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusRunning:
			health.Running += count
		case StatusDone:
			health.Done += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// RetryFailed moves failed jobs back to pending with a fresh attempt budget.
// No ids means every failed job.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := s.now()
	query := `UPDATE stage_jobs SET status = ?, attempts = 0, last_error = NULL, available_at = ?, updated_at = ?
        WHERE status = ?`
	args := []any{StatusPending, now.UnixMilli(), dbutil.FormatTime(now), StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + dbutil.Placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := dbutil.Exec(ctx, s.db, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearFinished deletes done and failed jobs.
func (s *Store) ClearFinished(ctx context.Context) (int64, error) {
	res, err := dbutil.Exec(ctx, s.db,
		`DELETE FROM stage_jobs WHERE status IN (?, ?)`, StatusDone, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear finished jobs: %w", err)
	}
	return res.RowsAffected()
}
