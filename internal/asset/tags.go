package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mediapipe/internal/dbutil"
	"mediapipe/internal/services"
	"mediapipe/internal/textutil"
)

// FindOrCreateTag returns the tag whose slug matches name, creating it when absent.
func (s *Store) FindOrCreateTag(ctx context.Context, name string) (Tag, error) {
	var tag Tag
	err := dbutil.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		tag, err = findOrCreateTag(ctx, tx, name)
		return err
	})
	return tag, err
}

func findOrCreateTag(ctx context.Context, tx *sql.Tx, name string) (Tag, error) {
	name = strings.TrimSpace(name)
	slug := textutil.Slugify(name)
	if name == "" || slug == "" {
		return Tag{}, fmt.Errorf("tag %q: %w: name has no usable characters", name, services.ErrValidation)
	}

	tag := Tag{Name: name, Slug: slug}
	err := tx.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE slug = ?`, slug).Scan(&tag.ID, &tag.Name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Tag{}, fmt.Errorf("find tag: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO tags (name, slug, created_at) VALUES (?, ?, ?)`, name, slug, dbutil.Now())
	if err != nil {
		return Tag{}, fmt.Errorf("create tag: %w", err)
	}
	if tag.ID, err = res.LastInsertId(); err != nil {
		return Tag{}, fmt.Errorf("tag id: %w", err)
	}
	return tag, nil
}

// AttachTags links the named tags to an asset, creating tags as needed.
// Already attached tags are left untouched.
func (s *Store) AttachTags(ctx context.Context, assetID int64, names ...string) error {
	return dbutil.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := requireLive(ctx, tx, assetID); err != nil {
			return err
		}
		now := dbutil.Now()
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				continue
			}
			tag, err := findOrCreateTag(ctx, tx, name)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO asset_tags (asset_id, tag_id, created_at) VALUES (?, ?, ?)`,
				assetID, tag.ID, now); err != nil {
				return fmt.Errorf("attach tag %s: %w", tag.Slug, err)
			}
		}
		return nil
	})
}

// DetachTags unlinks the named tags from an asset. Unknown tags are ignored.
func (s *Store) DetachTags(ctx context.Context, assetID int64, names ...string) error {
	return dbutil.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := requireLive(ctx, tx, assetID); err != nil {
			return err
		}
		for _, name := range names {
			slug := textutil.Slugify(name)
			if slug == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM asset_tags WHERE asset_id = ? AND tag_id IN (SELECT id FROM tags WHERE slug = ?)`,
				assetID, slug); err != nil {
				return fmt.Errorf("detach tag %s: %w", slug, err)
			}
		}
		return nil
	})
}

// ListTags returns every tag with the number of live assets carrying it.
func (s *Store) ListTags(ctx context.Context) ([]TagCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.slug, COUNT(a.id)
         FROM tags t
         LEFT JOIN asset_tags atg ON atg.tag_id = t.id
         LEFT JOIN assets a ON a.id = atg.asset_id AND a.deleted_at IS NULL
         GROUP BY t.id ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.ID, &tc.Name, &tc.Slug, &tc.Assets); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// TagCount pairs a tag with its usage.
type TagCount struct {
	Tag
	Assets int
}

func requireLive(ctx context.Context, tx *sql.Tx, id int64) error {
	var live int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM assets WHERE id = ? AND deleted_at IS NULL`, id).Scan(&live)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("check asset: %w", err)
	}
	return nil
}
