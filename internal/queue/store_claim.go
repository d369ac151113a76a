package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediapipe/internal/dbutil"
)

// Claim atomically moves the oldest available pending job to running and
// returns it. It returns nil when nothing is ready. Kinds narrows the
// candidates; no kinds means any job.
func (s *Store) Claim(ctx context.Context, kinds ...Kind) (*Job, error) {
	now := s.now()
	inner := `SELECT id FROM stage_jobs WHERE status = ? AND available_at <= ?`
	args := []any{StatusRunning, now.UnixMilli(), dbutil.FormatTime(now), StatusPending, now.UnixMilli()}
	if len(kinds) > 0 {
		inner += ` AND kind IN (` + dbutil.Placeholders(len(kinds)) + `)`
		for _, kind := range kinds {
			args = append(args, kind)
		}
	}
	inner += ` ORDER BY available_at, id LIMIT 1`

	query := `UPDATE stage_jobs
        SET status = ?, attempts = attempts + 1, heartbeat_at = ?, updated_at = ?
        WHERE id = (` + inner + `)
        RETURNING ` + jobColumns

	var job *Job
	err := dbutil.RetryOnBusy(ctx, func() error {
		var scanErr error
		job, scanErr = scanJob(s.db.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Heartbeat records that the worker running id is still alive.
func (s *Store) Heartbeat(ctx context.Context, id int64) error {
	now := s.now()
	_, err := dbutil.Exec(ctx, s.db,
		`UPDATE stage_jobs SET heartbeat_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now.UnixMilli(), dbutil.FormatTime(now), id, StatusRunning)
	if err != nil {
		return fmt.Errorf("heartbeat job %d: %w", id, err)
	}
	return nil
}

// Complete marks a running job done.
func (s *Store) Complete(ctx context.Context, id int64) error {
	return s.finish(ctx, id, StatusDone, "")
}

// Fail marks a running job permanently failed.
func (s *Store) Fail(ctx context.Context, id int64, message string) error {
	return s.finish(ctx, id, StatusFailed, message)
}

func (s *Store) finish(ctx context.Context, id int64, status Status, message string) error {
	_, err := dbutil.Exec(ctx, s.db,
		`UPDATE stage_jobs SET status = ?, last_error = ?, heartbeat_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		status, dbutil.NullableString(strings.TrimSpace(message)), dbutil.Now(), id, StatusRunning)
	if err != nil {
		return fmt.Errorf("mark job %d %s: %w", id, status, err)
	}
	return nil
}

// Retry returns a running job to pending, available after delay.
func (s *Store) Retry(ctx context.Context, id int64, message string, delay time.Duration) error {
	now := s.now()
	_, err := dbutil.Exec(ctx, s.db,
		`UPDATE stage_jobs SET status = ?, last_error = ?, available_at = ?, heartbeat_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending, dbutil.NullableString(strings.TrimSpace(message)), now.Add(delay).UnixMilli(),
		dbutil.FormatTime(now), id, StatusRunning)
	if err != nil {
		return fmt.Errorf("reschedule job %d: %w", id, err)
	}
	return nil
}

// ReclaimStale returns running jobs whose last heartbeat is older than
// timeout to pending so another worker can pick them up. Their attempt
// counters are kept.
func (s *Store) ReclaimStale(ctx context.Context, timeout time.Duration) (int64, error) {
	now := s.now()
	cutoff := now.Add(-timeout).UnixMilli()
	res, err := dbutil.Exec(ctx, s.db,
		`UPDATE stage_jobs SET status = ?, heartbeat_at = NULL, available_at = ?, updated_at = ?
         WHERE status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		StatusPending, now.UnixMilli(), dbutil.FormatTime(now), StatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// ResetRunning returns every running job to pending. It is used at daemon
// start, when no worker can legitimately hold a job.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	now := s.now()
	res, err := dbutil.Exec(ctx, s.db,
		`UPDATE stage_jobs SET status = ?, heartbeat_at = NULL, available_at = ?, updated_at = ? WHERE status = ?`,
		StatusPending, now.UnixMilli(), dbutil.FormatTime(now), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	return res.RowsAffected()
}
