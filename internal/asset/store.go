package asset

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"mediapipe/internal/config"
	"mediapipe/internal/dbutil"
	"mediapipe/internal/services"
	"mediapipe/internal/textutil"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// Store manages asset persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the asset database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(context.Background(), cfg.DatabasePath())
}

// OpenPath opens the asset database at an explicit location.
func OpenPath(ctx context.Context, path string) (*Store, error) {
	db, err := dbutil.Open(ctx, path, dbutil.Schema{Name: "asset", SQL: schemaSQL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
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

func notFound(id int64) error {
	return fmt.Errorf("asset %d: %w", id, services.ErrNotFound)
}

// Create records a freshly uploaded asset in the pending state.
func (s *Store) Create(ctx context.Context, in NewAsset) (*Asset, error) {
	if in.Kind != KindImage && in.Kind != KindVideo {
		return nil, fmt.Errorf("create asset: %w: unknown kind %q", services.ErrValidation, in.Kind)
	}
	if strings.TrimSpace(in.Path) == "" {
		return nil, fmt.Errorf("create asset: %w: original path is required", services.ErrValidation)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = in.OriginalName
	}
	now := dbutil.Now()

	res, err := dbutil.Exec(ctx, s.db,
		`INSERT INTO assets (
            owner_id, name, original_name, mime_type, kind, size, path,
            status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.OwnerID, name, in.OriginalName, in.MIMEType, in.Kind, in.Size, in.Path,
		StatusPending, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get loads an asset with its thumbnails, metadata and tags. Missing and
// soft-deleted assets return an error wrapping services.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Asset, error) {
	return s.get(ctx, id, false)
}

// GetAny loads an asset even when it has been soft-deleted.
func (s *Store) GetAny(ctx context.Context, id int64) (*Asset, error) {
	return s.get(ctx, id, true)
}

func (s *Store) get(ctx context.Context, id int64, includeDeleted bool) (*Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	a, err := scanAsset(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	if err := s.hydrate(ctx, []*Asset{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns assets matching filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Asset, error) {
	var (
		clauses []string
		args    []any
	)
	if !filter.IncludeDeleted {
		clauses = append(clauses, "a.deleted_at IS NULL")
	}
	if filter.OwnerID != 0 {
		clauses = append(clauses, "a.owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "a.status IN ("+dbutil.Placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.Kind != "" {
		clauses = append(clauses, "a.kind = ?")
		args = append(args, filter.Kind)
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		clauses = append(clauses, `EXISTS (
            SELECT 1 FROM asset_tags atg JOIN tags t ON t.id = atg.tag_id
            WHERE atg.asset_id = a.id AND (t.slug = ? OR t.name = ?))`)
		args = append(args, textutil.Slugify(tag), tag)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		like := "%" + escapeLike(term) + "%"
		clauses = append(clauses, `(a.name LIKE ? ESCAPE '\' OR a.original_name LIKE ? ESCAPE '\' OR EXISTS (
            SELECT 1 FROM asset_tags atg JOIN tags t ON t.id = atg.tag_id
            WHERE atg.asset_id = a.id AND t.name LIKE ? ESCAPE '\'))`)
		args = append(args, like, like, like)
	}

	query := `SELECT ` + prefixedColumns("a") + ` FROM assets a`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY a.id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
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
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	if err := s.hydrate(ctx, assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// Stats returns the number of live assets per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM assets WHERE deleted_at IS NULL GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("asset stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		stats[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// SoftDelete hides an asset from reads. Its row and blobs are kept.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	now := dbutil.Now()
	res, err := dbutil.Exec(ctx, s.db,
		`UPDATE assets SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound(id)
	}
	return nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
