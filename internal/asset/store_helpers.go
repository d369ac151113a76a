package asset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"mediapipe/internal/dbutil"
)

var columnNames = []string{
	"id", "owner_id", "name", "original_name", "mime_type", "kind", "size", "path",
	"compressed_path", "thumbnail_path", "status", "error_message",
	"created_at", "updated_at", "deleted_at",
}

var assetColumns = strings.Join(columnNames, ", ")

func prefixedColumns(alias string) string {
	cols := make([]string, len(columnNames))
	for i, name := range columnNames {
		cols[i] = alias + "." + name
	}
	return strings.Join(cols, ", ")
}

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		a              Asset
		kind           string
		status         string
		compressedPath sql.NullString
		thumbnailPath  sql.NullString
		errorMessage   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		deletedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&a.ID,
		&a.OwnerID,
		&a.Name,
		&a.OriginalName,
		&a.MIMEType,
		&kind,
		&a.Size,
		&a.Path,
		&compressedPath,
		&thumbnailPath,
		&status,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&deletedRaw,
	); err != nil {
		return nil, err
	}

	a.Kind = Kind(kind)
	a.Status = Status(status)
	a.CompressedPath = compressedPath.String
	a.ThumbnailPath = thumbnailPath.String
	a.ErrorMessage = errorMessage.String
	if created, err := dbutil.ParseTime(createdRaw.String); err == nil {
		a.CreatedAt = created
	}
	if updated, err := dbutil.ParseTime(updatedRaw.String); err == nil {
		a.UpdatedAt = updated
	}
	a.DeletedAt = dbutil.TimePtr(deletedRaw)
	return &a, nil
}

// hydrate loads thumbnails, metadata and tags for the given assets.
func (s *Store) hydrate(ctx context.Context, assets []*Asset) error {
	if len(assets) == 0 {
		return nil
	}
	byID := make(map[int64]*Asset, len(assets))
	ids := make([]any, 0, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}
	in := "(" + dbutil.Placeholders(len(ids)) + ")"

	if err := s.loadThumbnails(ctx, in, ids, byID); err != nil {
		return err
	}
	if err := s.loadMetadata(ctx, in, ids, byID); err != nil {
		return err
	}
	return s.loadTags(ctx, in, ids, byID)
}

func (s *Store) loadThumbnails(ctx context.Context, in string, ids []any, byID map[int64]*Asset) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset_id, size_class, path FROM asset_thumbnails WHERE asset_id IN `+in, ids...)
	if err != nil {
		return fmt.Errorf("load thumbnails: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			assetID int64
			class   string
			path    string
		)
		if err := rows.Scan(&assetID, &class, &path); err != nil {
			return fmt.Errorf("scan thumbnail: %w", err)
		}
		a := byID[assetID]
		if a.Thumbnails == nil {
			a.Thumbnails = make(map[SizeClass]string, 3)
		}
		a.Thumbnails[SizeClass(class)] = path
	}
	return rows.Err()
}

func (s *Store) loadMetadata(ctx context.Context, in string, ids []any, byID map[int64]*Asset) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset_id, width, height, duration, codec, bitrate, frame_rate, extra_json, updated_at
         FROM asset_metadata WHERE asset_id IN `+in, ids...)
	if err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			assetID    int64
			width      sql.NullInt64
			height     sql.NullInt64
			duration   sql.NullInt64
			codec      sql.NullString
			bitrate    sql.NullInt64
			frameRate  sql.NullFloat64
			extraJSON  sql.NullString
			updatedRaw string
		)
		if err := rows.Scan(&assetID, &width, &height, &duration, &codec, &bitrate, &frameRate, &extraJSON, &updatedRaw); err != nil {
			return fmt.Errorf("scan metadata: %w", err)
		}
		meta := &Metadata{
			Width:     int(width.Int64),
			Height:    int(height.Int64),
			Duration:  int(duration.Int64),
			Codec:     codec.String,
			Bitrate:   bitrate.Int64,
			FrameRate: frameRate.Float64,
		}
		if extraJSON.Valid && extraJSON.String != "" {
			if err := json.Unmarshal([]byte(extraJSON.String), &meta.Extra); err != nil {
				return fmt.Errorf("decode metadata extras for asset %d: %w", assetID, err)
			}
		}
		if updated, err := dbutil.ParseTime(updatedRaw); err == nil {
			meta.UpdatedAt = updated
		}
		byID[assetID].Metadata = meta
	}
	return rows.Err()
}

func (s *Store) loadTags(ctx context.Context, in string, ids []any, byID map[int64]*Asset) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT atg.asset_id, t.id, t.name, t.slug
         FROM asset_tags atg JOIN tags t ON t.id = atg.tag_id
         WHERE atg.asset_id IN `+in+` ORDER BY t.name`, ids...)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			assetID int64
			tag     Tag
		)
		if err := rows.Scan(&assetID, &tag.ID, &tag.Name, &tag.Slug); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		byID[assetID].Tags = append(byID[assetID].Tags, tag)
	}
	return rows.Err()
}
