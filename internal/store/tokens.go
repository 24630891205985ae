package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fileserver/internal/model"
)

// CreateToken inserts a new token record. Returns ErrConflict when the
// secret hash already exists so the caller can retry with a fresh
// secret.
func (s *Store) CreateToken(ctx context.Context, t *model.AccessToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, name, secret_hash, scopes, revoked, expires_at, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.SecretHash, t.Scopes.String(), t.Revoked, nullTime(t.ExpiresAt), t.CreatedAt, nullTime(t.LastUsedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// GetToken fetches a token by id.
func (s *Store) GetToken(ctx context.Context, id string) (*model.AccessToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, secret_hash, scopes, revoked, expires_at, created_at, last_used_at
		FROM api_tokens WHERE id = ?`, id)
	return scanToken(row)
}

// GetTokenBySecretHash fetches a token by the hash of its secret. The
// unique index makes this an O(1) lookup; presented secrets are never
// compared against every stored hash.
func (s *Store) GetTokenBySecretHash(ctx context.Context, hash string) (*model.AccessToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, secret_hash, scopes, revoked, expires_at, created_at, last_used_at
		FROM api_tokens WHERE secret_hash = ?`, hash)
	return scanToken(row)
}

// ListTokens returns all tokens, newest first.
func (s *Store) ListTokens(ctx context.Context) ([]model.AccessToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, secret_hash, scopes, revoked, expires_at, created_at, last_used_at
		FROM api_tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.AccessToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

// RevokeToken marks the token revoked. Idempotent: revoking an already
// revoked token succeeds, revoking an unknown id returns ErrNotFound.
func (s *Store) RevokeToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
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

// DeleteToken removes the token record entirely.
func (s *Store) DeleteToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
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

// TouchToken records a successful use of the token.
func (s *Store) TouchToken(ctx context.Context, id string, usedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = ? WHERE id = ?`, usedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}
	return nil
}

func scanToken(row rowScanner) (*model.AccessToken, error) {
	var t model.AccessToken
	var scopes string
	var expiresAt, lastUsedAt sql.NullTime
	err := row.Scan(&t.ID, &t.Name, &t.SecretHash, &scopes, &t.Revoked, &expiresAt, &t.CreatedAt, &lastUsedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}
	t.Scopes = model.ParseScopes(scopes)
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Time
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
