// Package signing mints and verifies the HMAC signatures that gate
// tokenless downloads. A signature binds a resource id to a Unix expiry
// timestamp; validity is a pure function of those two values plus the
// server secret, so no signature state is ever persisted.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signer generates and validates HMAC-SHA256 signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer with the given server secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the lowercase hex signature binding resourceID to
// expiresAt (Unix seconds). Inputs are validated before any MAC work.
func (s *Signer) Sign(resourceID string, expiresAt int64) (string, error) {
	if resourceID == "" {
		return "", fmt.Errorf("empty resource id")
	}
	if expiresAt <= 0 {
		return "", fmt.Errorf("invalid expiry timestamp: %d", expiresAt)
	}
	return hex.EncodeToString(s.compute(resourceID, expiresAt)), nil
}

// Verify reports whether sig is a valid signature for resourceID at
// nowUnix. An expired signature fails before any comparison is done;
// otherwise the expected MAC is recomputed and compared in constant
// time.
func (s *Signer) Verify(resourceID string, expiresAt int64, sig string, nowUnix int64) bool {
	if resourceID == "" || expiresAt <= 0 {
		return false
	}
	if expiresAt < nowUnix {
		return false
	}
	given, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(s.compute(resourceID, expiresAt), given)
}

func (s *Signer) compute(resourceID string, expiresAt int64) []byte {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", resourceID, expiresAt)
	return mac.Sum(nil)
}
