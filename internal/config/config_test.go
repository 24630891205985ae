package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// An empty directory means no config file: defaults apply.
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:8080/", cfg.BaseURL)
	assert.Equal(t, "./storage", cfg.StorageDir)
	assert.Equal(t, 900, cfg.SignedURLTTLSec)
	assert.Equal(t, 300, cfg.EmbedTTLSec)
	assert.NotEmpty(t, cfg.HMACSecret)
	assert.Empty(t, cfg.AdminPasswordHash)
	assert.Contains(t, cfg.AllowedExtensions, "mp3")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
port: 9090
base_url: "https://files.example.com/"
hmac_secret: "file-secret"
max_size_mib: 64
signed_url_ttl_sec: 120
allowed_extensions:
  - mp3
  - ogg
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://files.example.com/", cfg.BaseURL)
	assert.Equal(t, "file-secret", cfg.HMACSecret)
	assert.Equal(t, 120, cfg.SignedURLTTLSec)
	assert.Equal(t, []string{"mp3", "ogg"}, cfg.AllowedExtensions)
	// Unset keys keep their defaults.
	assert.Equal(t, 300, cfg.EmbedTTLSec)
}

func TestLoadRejectsEmptySecret(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`hmac_secret: ""`), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("port: [not, closed"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestMaxSizeToBytes(t *testing.T) {
	cfg := &Config{MaxSizeMiB: 1.5}
	assert.Equal(t, int64(1572864), cfg.MaxSizeToBytes())
}

func TestExtensionAllowed(t *testing.T) {
	cfg := &Config{AllowedExtensions: []string{"mp3", "pdf"}}

	assert.True(t, cfg.ExtensionAllowed("mp3"))
	assert.True(t, cfg.ExtensionAllowed(".mp3"))
	assert.True(t, cfg.ExtensionAllowed(".MP3"))
	assert.False(t, cfg.ExtensionAllowed("exe"))
	assert.False(t, cfg.ExtensionAllowed(""))
}
