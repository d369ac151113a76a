package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mediapipe/internal/dbutil"
)

// Status writes are compare-and-set updates: each names the status it expects
// to leave, and reports whether it applied. Callers that lose the race observe
// false and must treat the call as a no-op.

// BeginProcessing moves a live pending asset to processing.
func (s *Store) BeginProcessing(ctx context.Context, id int64) (bool, error) {
	res, err := dbutil.Exec(ctx, s.db,
		`UPDATE assets SET status = ?, updated_at = ?
         WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		StatusProcessing, dbutil.Now(), id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("begin processing: %w", err)
	}
	return applied(res)
}

// Complete commits the successful terminal transition and marks the asset
// for completion notification.
func (s *Store) Complete(ctx context.Context, id int64) (bool, error) {
	res, err := dbutil.Exec(ctx, s.db,
		`UPDATE assets SET status = ?, error_message = NULL, notify_pending = 1, updated_at = ?
         WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		StatusCompleted, dbutil.Now(), id, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("complete asset: %w", err)
	}
	return applied(res)
}

// Fail commits the failed terminal transition with a non-empty message and
// marks the asset for completion notification.
func (s *Store) Fail(ctx context.Context, id int64, message string) (bool, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return false, errors.New("fail asset: error message is required")
	}
	res, err := dbutil.Exec(ctx, s.db,
		`UPDATE assets SET status = ?, error_message = ?, notify_pending = 1, updated_at = ?
         WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		StatusFailed, message, dbutil.Now(), id, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("fail asset: %w", err)
	}
	return applied(res)
}

// Reset describes a terminal asset returned to pending.
type Reset struct {
	From Status
	// Stale lists the derivative blobs of the previous run. The record no
	// longer references them.
	Stale []string
}

// ResetToPending re-enters a completed or failed asset into the pipeline. The
// compressed rendition, thumbnails and metadata are cleared in the same
// transaction so progress restarts from zero. A nil Reset means the asset was
// not terminal (or is gone) and nothing changed.
func (s *Store) ResetToPending(ctx context.Context, id int64) (*Reset, error) {
	var reset *Reset
	err := dbutil.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		reset = nil
		var (
			from       Status
			compressed sql.NullString
		)
		err := tx.QueryRowContext(ctx,
			`SELECT status, compressed_path FROM assets WHERE id = ? AND deleted_at IS NULL`, id,
		).Scan(&from, &compressed)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load asset: %w", err)
		}
		if from != StatusCompleted && from != StatusFailed {
			return nil
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE assets SET status = ?, error_message = NULL, notify_pending = 0,
                compressed_path = NULL, thumbnail_path = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusPending, dbutil.Now(), id, from)
		if err != nil {
			return fmt.Errorf("update asset: %w", err)
		}
		if ok, err := applied(res); err != nil || !ok {
			return err
		}

		stale, err := thumbnailPaths(ctx, tx, id)
		if err != nil {
			return err
		}
		if compressed.Valid && compressed.String != "" {
			stale = append([]string{compressed.String}, stale...)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM asset_thumbnails WHERE asset_id = ?`, id); err != nil {
			return fmt.Errorf("clear thumbnails: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM asset_metadata WHERE asset_id = ?`, id); err != nil {
			return fmt.Errorf("clear metadata: %w", err)
		}
		reset = &Reset{From: from, Stale: stale}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reset asset: %w", err)
	}
	return reset, nil
}

func thumbnailPaths(ctx context.Context, tx *sql.Tx, id int64) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT path FROM asset_thumbnails WHERE asset_id = ? ORDER BY size_class`, id)
	if err != nil {
		return nil, fmt.Errorf("list thumbnails: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan thumbnail: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ClearNotifyPending records that the completion event for the current
// terminal transition has been delivered.
func (s *Store) ClearNotifyPending(ctx context.Context, id int64) error {
	if _, err := dbutil.Exec(ctx, s.db,
		`UPDATE assets SET notify_pending = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("clear notify flag: %w", err)
	}
	return nil
}

// PendingNotifications returns terminal assets whose completion event has not
// been acknowledged, for redelivery after a crash.
func (s *Store) PendingNotifications(ctx context.Context) ([]*Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets
         WHERE notify_pending = 1 AND status IN (?, ?) AND deleted_at IS NULL
         ORDER BY id`,
		StatusCompleted, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("pending notifications: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// ListStuckProcessing returns live assets still marked processing.
func (s *Store) ListStuckProcessing(ctx context.Context) ([]*Asset, error) {
	return s.List(ctx, Filter{Statuses: []Status{StatusProcessing}})
}

func applied(res interface{ RowsAffected() (int64, error) }) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}
