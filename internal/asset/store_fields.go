package asset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"mediapipe/internal/dbutil"
)

// Each stage owns a disjoint slice of the record and writes it through one of
// the narrow updates below; none of them touch status or another stage's fields.

// SetCompressedPath records the compression derivative.
func (s *Store) SetCompressedPath(ctx context.Context, id int64, path string) error {
	res, err := dbutil.Exec(ctx, s.db,
		`UPDATE assets SET compressed_path = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		dbutil.NullableString(path), dbutil.Now(), id)
	if err != nil {
		return fmt.Errorf("set compressed path: %w", err)
	}
	return requireRow(res, id)
}

// ReplaceThumbnails swaps the full thumbnail set and the canonical reference in
// one transaction. An empty set clears both.
func (s *Store) ReplaceThumbnails(ctx context.Context, id int64, thumbs map[SizeClass]string) error {
	return dbutil.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		now := dbutil.Now()
		res, err := tx.ExecContext(ctx,
			`UPDATE assets SET thumbnail_path = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
			dbutil.NullableString(thumbs[CanonicalThumbnail]), now, id)
		if err != nil {
			return fmt.Errorf("set thumbnail path: %w", err)
		}
		if err := requireRow(res, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM asset_thumbnails WHERE asset_id = ?`, id); err != nil {
			return fmt.Errorf("clear thumbnails: %w", err)
		}
		for _, class := range SizeClasses() {
			path, ok := thumbs[class]
			if !ok || path == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO asset_thumbnails (asset_id, size_class, path, created_at) VALUES (?, ?, ?, ?)`,
				id, class, path, now); err != nil {
				return fmt.Errorf("insert %s thumbnail: %w", class, err)
			}
		}
		return nil
	})
}

// UpsertMetadata writes the single metadata record, replacing any previous one.
func (s *Store) UpsertMetadata(ctx context.Context, id int64, meta Metadata) error {
	var extra any
	if len(meta.Extra) > 0 {
		data, err := json.Marshal(meta.Extra)
		if err != nil {
			return fmt.Errorf("encode metadata extras: %w", err)
		}
		extra = string(data)
	}
	return dbutil.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := requireLive(ctx, tx, id); err != nil {
			return err
		}
		now := dbutil.Now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO asset_metadata (
                asset_id, width, height, duration, codec, bitrate, frame_rate, extra_json, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(asset_id) DO UPDATE SET
                width = excluded.width,
                height = excluded.height,
                duration = excluded.duration,
                codec = excluded.codec,
                bitrate = excluded.bitrate,
                frame_rate = excluded.frame_rate,
                extra_json = excluded.extra_json,
                updated_at = excluded.updated_at`,
			id, nullableInt(int64(meta.Width)), nullableInt(int64(meta.Height)), nullableInt(int64(meta.Duration)),
			dbutil.NullableString(meta.Codec), nullableInt(meta.Bitrate), nullableFloat(meta.FrameRate),
			extra, now, now,
		); err != nil {
			return fmt.Errorf("upsert metadata: %w", err)
		}
		return nil
	})
}

func nullableInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value == 0 {
		return nil
	}
	return value
}
