package model

import "time"

// Resource represents one uploaded file and its metadata
type Resource struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Year           *int      `json:"year,omitempty"`
	MimeType       string    `json:"mime_type"`
	SizeBytes      int64     `json:"size_bytes"`
	OriginalName   string    `json:"original_name"`
	StoragePath    string    `json:"-"`
	ChecksumSHA256 string    `json:"checksum_sha256"`
	CreatedAt      time.Time `json:"created_at"`
}

// AccessToken represents a long-lived API credential. Only the hash of
// the secret is ever stored; the raw secret is returned once at creation.
type AccessToken struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SecretHash string     `json:"-"`
	Scopes     Scopes     `json:"scopes"`
	Revoked    bool       `json:"revoked"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Usable reports whether the token is neither revoked nor expired at now.
func (t *AccessToken) Usable(now time.Time) bool {
	if t.Revoked {
		return false
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
		return false
	}
	return true
}
