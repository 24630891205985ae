package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"fileserver/internal/checksum"
	"fileserver/internal/config"
	"fileserver/internal/model"
	"fileserver/internal/signing"
	"fileserver/internal/store"
	"fileserver/internal/token"
)

const testAdminPassword = "correct horse battery staple"

func setupTestEnvironment(t *testing.T) (*Handler, *store.Store, *signing.Signer, *token.Authority) {
	t.Helper()
	tempDir := t.TempDir()

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:              8080,
		BaseURL:           "http://localhost:8080/",
		StorageDir:        tempDir,
		SQLitePath:        filepath.Join(tempDir, "test.db"),
		HMACSecret:        "test-hmac-secret",
		AdminPasswordHash: string(hash),
		MaxSizeMiB:        64.0,
		SignedURLTTLSec:   900,
		EmbedTTLSec:       300,
		AllowedExtensions: []string{"txt", "mp3", "bin"},
	}

	st, err := store.Open(cfg.SQLitePath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	signer := signing.NewSigner([]byte(cfg.HMACSecret))
	authority := token.NewAuthority(st)

	return NewHandler(cfg, st, signer, authority), st, signer, authority
}

// createTestResource writes content under the storage layout and
// commits a matching record, returning the resource.
func createTestResource(t *testing.T, h *Handler, content []byte) *model.Resource {
	t.Helper()

	id := uuid.NewString()
	dir := filepath.Join(h.cfg.StorageDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	dest := filepath.Join(dir, "original.txt")
	require.NoError(t, os.WriteFile(dest, content, 0o644))

	digest, err := checksum.File(dest)
	require.NoError(t, err)

	res := &model.Resource{
		ID:             id,
		Title:          "Test File",
		MimeType:       "text/plain",
		SizeBytes:      int64(len(content)),
		OriginalName:   "test.txt",
		StoragePath:    dest,
		ChecksumSHA256: digest,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, h.store.CreateResource(context.Background(), res))
	return res
}

func downloadRequest(t *testing.T, h *Handler, id, query string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	target := "/api/files/" + id + "/download"
	if query != "" {
		target += "?" + query
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)

	require.NoError(t, h.HandleDownload(c))
	return rec
}

func signedQuery(t *testing.T, signer *signing.Signer, id string, expiresAt int64) string {
	t.Helper()
	sig, err := signer.Sign(id, expiresAt)
	require.NoError(t, err)
	return fmt.Sprintf("expiresAt=%d&sig=%s", expiresAt, sig)
}

func TestSignedDownload(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	content := []byte("signed download content")
	res := createTestResource(t, h, content)

	expiresAt := time.Now().Add(15 * time.Minute).Unix()
	rec := downloadRequest(t, h, res.ID, signedQuery(t, signer, res.ID, expiresAt), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, `"`+res.ChecksumSHA256+`"`, rec.Header().Get("ETag"))
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))
}

func TestSignedDownloadExpired(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("content"))

	expiresAt := time.Now().Add(-time.Second).Unix()
	rec := downloadRequest(t, h, res.ID, signedQuery(t, signer, res.ID, expiresAt), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSignedDownloadTamperedSignature(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("content"))

	expiresAt := time.Now().Add(15 * time.Minute).Unix()
	sig, err := signer.Sign(res.ID, expiresAt)
	require.NoError(t, err)

	// Flip one hex digit.
	tampered := []byte(sig)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	rec := downloadRequest(t, h, res.ID, fmt.Sprintf("expiresAt=%d&sig=%s", expiresAt, tampered), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSignedDownloadMalformedExpiry(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("content"))

	sig, err := signer.Sign(res.ID, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	rec := downloadRequest(t, h, res.ID, "expiresAt=soon&sig="+sig, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTokenDownload(t *testing.T) {
	h, _, _, authority := setupTestEnvironment(t)
	content := []byte("token download content")
	res := createTestResource(t, h, content)

	raw, _, err := authority.Issue(context.Background(), "reader", model.Scopes{model.ScopeRead}, time.Hour)
	require.NoError(t, err)

	rec := downloadRequest(t, h, res.ID, "", map[string]string{"Authorization": "Bearer " + raw})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())

	// The token also works as a query parameter.
	rec = downloadRequest(t, h, res.ID, "token="+raw, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenDownloadInsufficientScope(t *testing.T) {
	h, _, _, authority := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("content"))

	raw, _, err := authority.Issue(context.Background(), "signer-only", model.Scopes{model.ScopeSign}, time.Hour)
	require.NoError(t, err)

	rec := downloadRequest(t, h, res.ID, "", map[string]string{"Authorization": "Bearer " + raw})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownloadRevokedToken(t *testing.T) {
	h, _, _, authority := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("content"))

	ctx := context.Background()
	raw, tok, err := authority.Issue(ctx, "revoked", model.Scopes{model.ScopeRead}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, authority.Revoke(ctx, tok.ID))

	rec := downloadRequest(t, h, res.ID, "", map[string]string{"Authorization": "Bearer " + raw})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownloadNoCredentials(t *testing.T) {
	h, _, _, _ := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("content"))

	rec := downloadRequest(t, h, res.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDownloadUnknownResource(t *testing.T) {
	h, _, _, _ := setupTestEnvironment(t)

	rec := downloadRequest(t, h, uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadMissingBytes(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("content"))

	// Simulate a record whose bytes vanished from disk.
	require.NoError(t, os.RemoveAll(filepath.Dir(res.StoragePath)))

	expiresAt := time.Now().Add(time.Hour).Unix()
	rec := downloadRequest(t, h, res.ID, signedQuery(t, signer, res.ID, expiresAt), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRangeRequest(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	res := createTestResource(t, h, content)
	query := signedQuery(t, signer, res.ID, time.Now().Add(time.Hour).Unix())

	rec := downloadRequest(t, h, res.ID, query, map[string]string{"Range": "bytes=0-99"})
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
	assert.Equal(t, content[:100], rec.Body.Bytes())
}

func TestRangeRequestOpenEnded(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	content := []byte("0123456789")
	res := createTestResource(t, h, content)
	query := signedQuery(t, signer, res.ID, time.Now().Add(time.Hour).Unix())

	rec := downloadRequest(t, h, res.ID, query, map[string]string{"Range": "bytes=4-"})
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 4-9/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, []byte("456789"), rec.Body.Bytes())
}

func TestRangeRequestSuffix(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	content := []byte("0123456789")
	res := createTestResource(t, h, content)
	query := signedQuery(t, signer, res.ID, time.Now().Add(time.Hour).Unix())

	rec := downloadRequest(t, h, res.ID, query, map[string]string{"Range": "bytes=-3"})
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 7-9/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, []byte("789"), rec.Body.Bytes())
}

func TestRangeRequestUnsatisfiable(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("0123456789"))
	query := signedQuery(t, signer, res.ID, time.Now().Add(time.Hour).Unix())

	rec := downloadRequest(t, h, res.ID, query, map[string]string{"Range": "bytes=100-200"})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */10", rec.Header().Get("Content-Range"))
}

func TestRangeRequestMultipleRangesRejected(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("0123456789"))
	query := signedQuery(t, signer, res.ID, time.Now().Add(time.Hour).Unix())

	rec := downloadRequest(t, h, res.ID, query, map[string]string{"Range": "bytes=0-1,4-5"})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
}

func TestConditionalRequestETag(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("cacheable content"))
	query := signedQuery(t, signer, res.ID, time.Now().Add(time.Hour).Unix())

	rec := downloadRequest(t, h, res.ID, query, map[string]string{"If-None-Match": `"` + res.ChecksumSHA256 + `"`})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	// A stale validator still gets the full body.
	rec = downloadRequest(t, h, res.ID, query, map[string]string{"If-None-Match": `"stale"`})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestConditionalRequestIfModifiedSince(t *testing.T) {
	h, _, signer, _ := setupTestEnvironment(t)
	res := createTestResource(t, h, []byte("content"))
	query := signedQuery(t, signer, res.ID, time.Now().Add(time.Hour).Unix())

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	rec := downloadRequest(t, h, res.ID, query, map[string]string{"If-Modified-Since": future})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	rec = downloadRequest(t, h, res.ID, query, map[string]string{"If-Modified-Since": past})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseRange(t *testing.T) {
	testCases := []struct {
		name       string
		header     string
		size       int64
		start, end int64
		ok         bool
		wantErr    bool
	}{
		{name: "simple", header: "bytes=0-99", size: 1000, start: 0, end: 99, ok: true},
		{name: "open ended", header: "bytes=500-", size: 1000, start: 500, end: 999, ok: true},
		{name: "suffix", header: "bytes=-100", size: 1000, start: 900, end: 999, ok: true},
		{name: "suffix longer than file", header: "bytes=-5000", size: 1000, start: 0, end: 999, ok: true},
		{name: "end clamped", header: "bytes=900-2000", size: 1000, start: 900, end: 999, ok: true},
		{name: "unknown unit ignored", header: "items=0-5", size: 1000, ok: false},
		{name: "multiple ranges", header: "bytes=0-1,5-6", size: 1000, wantErr: true},
		{name: "start beyond size", header: "bytes=1000-", size: 1000, wantErr: true},
		{name: "inverted", header: "bytes=9-3", size: 1000, wantErr: true},
		{name: "garbage", header: "bytes=abc-def", size: 1000, wantErr: true},
		{name: "empty suffix", header: "bytes=-", size: 1000, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, ok, err := parseRange(tc.header, tc.size)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.start, start)
				assert.Equal(t, tc.end, end)
			}
		})
	}
}
