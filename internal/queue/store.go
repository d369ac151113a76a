package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"mediapipe/internal/config"
	"mediapipe/internal/dbutil"
	"mediapipe/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

const jobColumns = `id, asset_id, kind, status, attempts, max_attempts, last_error,
    available_at, heartbeat_at, created_at, updated_at`

// Store manages stage job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(context.Background(), cfg.QueuePath())
}

// OpenPath opens the queue database at an explicit location.
func OpenPath(ctx context.Context, path string) (*Store, error) {
	db, err := dbutil.Open(ctx, path, dbutil.Schema{Name: "queue", SQL: schemaSQL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Enqueue schedules a job for immediate pickup. When a pending job of the same
// kind already exists for the asset, that job is returned instead.
func (s *Store) Enqueue(ctx context.Context, assetID int64, kind Kind, maxAttempts int) (*Job, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, fmt.Errorf("enqueue: %w: %w", services.ErrValidation, err)
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var id int64
	err := dbutil.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM stage_jobs WHERE asset_id = ? AND kind = ? AND status = ? ORDER BY id LIMIT 1`,
			assetID, kind, StatusPending).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find pending job: %w", err)
		}

		now := s.now()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO stage_jobs (asset_id, kind, status, attempts, max_attempts, available_at, created_at, updated_at)
             VALUES (?, ?, ?, 0, ?, ?, ?, ?)`,
			assetID, kind, StatusPending, maxAttempts, now.UnixMilli(), dbutil.FormatTime(now), dbutil.FormatTime(now))
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get loads a job by id.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM stage_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status, oldest first. No statuses means all jobs.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM stage_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + dbutil.Placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id`
	return s.queryJobs(ctx, query, args...)
}

// ForAsset returns every job recorded for an asset, oldest first.
func (s *Store) ForAsset(ctx context.Context, assetID int64) ([]*Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM stage_jobs WHERE asset_id = ? ORDER BY id`, assetID)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job         Job
		kind        string
		status      string
		lastError   sql.NullString
		availableAt int64
		heartbeatAt sql.NullInt64
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&job.ID,
		&job.AssetID,
		&kind,
		&status,
		&job.Attempts,
		&job.MaxAttempts,
		&lastError,
		&availableAt,
		&heartbeatAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Kind = Kind(kind)
	job.Status = Status(status)
	job.LastError = lastError.String
	job.AvailableAt = time.UnixMilli(availableAt).UTC()
	if heartbeatAt.Valid {
		hb := time.UnixMilli(heartbeatAt.Int64).UTC()
		job.HeartbeatAt = &hb
	}
	if created, err := dbutil.ParseTime(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := dbutil.ParseTime(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}
