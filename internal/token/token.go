// Package token implements the token authority: issuing opaque bearer
// secrets, authorizing presented secrets against required scopes, and
// revoking tokens. Only the SHA-256 hash of a secret is ever persisted.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"fileserver/internal/model"
	"fileserver/internal/store"
)

const (
	secretBytes   = 32
	issueAttempts = 3
)

// Reason is the internal cause of an authorization rejection. It feeds
// logs and metrics; callers must never expose it beyond a generic
// unauthorized response.
type Reason string

const (
	ReasonMissing Reason = "missing"
	ReasonUnknown Reason = "unknown"
	ReasonRevoked Reason = "revoked"
	ReasonExpired Reason = "expired"
	ReasonScope   Reason = "insufficient_scope"
)

// AuthError is returned when a presented secret fails authorization.
type AuthError struct {
	Reason Reason
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("unauthorized: %s", e.Reason)
}

// Authority issues and validates access tokens.
type Authority struct {
	store *store.Store
}

// NewAuthority creates a token authority backed by the given store.
func NewAuthority(s *store.Store) *Authority {
	return &Authority{store: s}
}

// HashSecret returns the hex SHA-256 hash of a raw secret, the only
// form in which secrets are stored or looked up.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Issue creates a new token and returns the raw secret exactly once;
// it is not recoverable afterwards. A ttl of zero means the token never
// expires. The cryptographically negligible chance of a secret-hash
// collision is handled as a uniqueness conflict and retried with a
// fresh secret.
func (a *Authority) Issue(ctx context.Context, name string, scopes model.Scopes, ttl time.Duration) (string, *model.AccessToken, error) {
	if name == "" {
		return "", nil, fmt.Errorf("token name must not be empty")
	}
	if len(scopes) == 0 {
		scopes = model.Scopes{model.ScopeRead}
	}

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	for attempt := 0; attempt < issueAttempts; attempt++ {
		raw, err := generateSecret()
		if err != nil {
			return "", nil, err
		}

		tok := &model.AccessToken{
			ID:         uuid.NewString(),
			Name:       name,
			SecretHash: HashSecret(raw),
			Scopes:     scopes,
			ExpiresAt:  expiresAt,
			CreatedAt:  time.Now(),
		}

		err = a.store.CreateToken(ctx, tok)
		if err == nil {
			return raw, tok, nil
		}
		if errors.Is(err, store.ErrConflict) {
			log.Printf("Warning: token secret hash collision, retrying with fresh secret")
			continue
		}
		return "", nil, err
	}

	return "", nil, fmt.Errorf("failed to issue token after %d attempts", issueAttempts)
}

// Authorize validates a presented raw secret against the required
// scopes. The checks run in a fixed order (exists, not revoked, not
// expired, scopes) and the first failure determines the rejection
// reason. On success the token's last_used_at is updated.
func (a *Authority) Authorize(ctx context.Context, rawSecret string, required model.Scopes) (*model.AccessToken, error) {
	if rawSecret == "" {
		return nil, &AuthError{Reason: ReasonMissing}
	}

	tok, err := a.store.GetTokenBySecretHash(ctx, HashSecret(rawSecret))
	if errors.Is(err, store.ErrNotFound) {
		return nil, &AuthError{Reason: ReasonUnknown}
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if tok.Revoked {
		return nil, &AuthError{Reason: ReasonRevoked}
	}
	if tok.ExpiresAt != nil && !tok.ExpiresAt.After(now) {
		return nil, &AuthError{Reason: ReasonExpired}
	}
	if !tok.Scopes.HasAll(required) {
		return nil, &AuthError{Reason: ReasonScope}
	}

	if err := a.store.TouchToken(ctx, tok.ID, now); err != nil {
		log.Printf("Warning: failed to update last_used_at for token %s: %v", tok.ID, err)
	}
	tok.LastUsedAt = &now

	return tok, nil
}

// Revoke marks the token revoked. The change takes effect on the very
// next Authorize call; the revoked flag is never cached.
func (a *Authority) Revoke(ctx context.Context, id string) error {
	return a.store.RevokeToken(ctx, id)
}

func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
