package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the immutable application configuration. It is built
// once at process start and passed by reference into the signer, token
// authority and handlers; nothing reads configuration ambiently after
// startup.
type Config struct {
	Port              int      `mapstructure:"port"`
	BaseURL           string   `mapstructure:"base_url"`
	StorageDir        string   `mapstructure:"storage_dir"`
	SQLitePath        string   `mapstructure:"sqlite_path"`
	HMACSecret        string   `mapstructure:"hmac_secret"`
	AdminPasswordHash string   `mapstructure:"admin_password_hash"`
	MaxSizeMiB        float64  `mapstructure:"max_size_mib"`
	SignedURLTTLSec   int      `mapstructure:"signed_url_ttl_sec"`
	EmbedTTLSec       int      `mapstructure:"embed_ttl_sec"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// Load reads configuration from an optional config file plus
// environment variables, falling back to defaults. A missing config
// file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("fileserver")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("port", 8080)
	v.SetDefault("base_url", "http://localhost:8080/")
	v.SetDefault("storage_dir", "./storage")
	v.SetDefault("sqlite_path", "./fileserver.db")
	v.SetDefault("hmac_secret", "download-secret-change-me")
	v.SetDefault("admin_password_hash", "")
	v.SetDefault("max_size_mib", 512.0)
	v.SetDefault("signed_url_ttl_sec", 900)
	v.SetDefault("embed_ttl_sec", 300)
	v.SetDefault("allowed_extensions", []string{"mp3", "mp4", "wav", "flac", "jpg", "png", "pdf"})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("hmac_secret must not be empty")
	}

	return &cfg, nil
}

// MaxSizeToBytes returns the upload size limit in bytes.
func (c *Config) MaxSizeToBytes() int64 {
	return int64(c.MaxSizeMiB * 1024 * 1024)
}

// SignedURLTTL is how long minted download signatures stay valid.
func (c *Config) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLTTLSec) * time.Second
}

// EmbedTTL is the shorter validity window used for embed redirects.
func (c *Config) EmbedTTL() time.Duration {
	return time.Duration(c.EmbedTTLSec) * time.Second
}

// ExtensionAllowed reports whether the given file extension (without
// the leading dot) may be uploaded.
func (c *Config) ExtensionAllowed(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
