package store

import (
	"context"
	"database/sql"
	"fmt"

	"fileserver/internal/model"
)

// CreateResource inserts a new resource record. The caller must only
// invoke this after the bytes at StoragePath are fully durable.
func (s *Store) CreateResource(ctx context.Context, r *model.Resource) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (id, title, year, mime_type, size_bytes, original_name, storage_path, checksum_sha256, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, nullInt(r.Year), r.MimeType, r.SizeBytes, r.OriginalName, r.StoragePath, r.ChecksumSHA256, r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	return nil
}

// GetResource fetches a resource by id.
func (s *Store) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, year, mime_type, size_bytes, original_name, storage_path, checksum_sha256, created_at
		FROM resources WHERE id = ?`, id)
	return scanResource(row)
}

// ListResources returns the newest resources first, capped at limit.
func (s *Store) ListResources(ctx context.Context, limit int) ([]model.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, year, mime_type, size_bytes, original_name, storage_path, checksum_sha256, created_at
		FROM resources ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, *r)
	}
	return resources, rows.Err()
}

// UpdateResource updates the editable metadata fields (title, year).
func (s *Store) UpdateResource(ctx context.Context, id, title string, year *int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE resources SET title = ?, year = ? WHERE id = ?`,
		title, nullInt(year), id)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteResource removes the resource record.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*model.Resource, error) {
	var r model.Resource
	var year sql.NullInt64
	err := row.Scan(&r.ID, &r.Title, &year, &r.MimeType, &r.SizeBytes, &r.OriginalName, &r.StoragePath, &r.ChecksumSHA256, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resource: %w", err)
	}
	if year.Valid {
		y := int(year.Int64)
		r.Year = &y
	}
	return &r, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
