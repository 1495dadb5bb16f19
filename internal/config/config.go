// Package config provides environment-driven configuration for the audit seal service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds all application configuration values.
type Config struct {
	DatabaseURL Secret
	DBMaxConns  int
	Port        string
	ListenHost  string
	CORSOrigins []string
	LogLevel    string

	SignerProvider    string
	VaultAddr         string
	VaultToken        Secret
	VaultTransitMount string

	TSAURL string

	StorageProvider   string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey Secret

	SourceServiceURL   string
	SourceServiceToken Secret

	HashWorkers      int
	BuildWorkers     int
	BuildQueueSize   int
	ExternalTimeout  time.Duration
	MaxLineageNodes  int
	MaxPackRangeDays int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        Secret(envOrDefault("DATABASE_URL", "")),
		Port:               envOrDefault("PORT", "3040"),
		ListenHost:         envOrDefault("LISTEN_HOST", "127.0.0.1"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		SignerProvider:     envOrDefault("SIGNER_PROVIDER", "memory"),
		VaultAddr:          envOrDefault("VAULT_ADDR", "http://127.0.0.1:8200"),
		VaultToken:         Secret(envOrDefault("VAULT_TOKEN", "")),
		VaultTransitMount:  envOrDefault("VAULT_TRANSIT_MOUNT", "transit"),
		TSAURL:             envOrDefault("TSA_URL", ""),
		StorageProvider:    envOrDefault("STORAGE_PROVIDER", "memory"),
		S3Bucket:           envOrDefault("S3_BUCKET", ""),
		S3Region:           envOrDefault("S3_REGION", ""),
		S3Endpoint:         envOrDefault("S3_ENDPOINT", ""),
		S3AccessKeyID:      envOrDefault("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:  Secret(envOrDefault("S3_SECRET_ACCESS_KEY", "")),
		SourceServiceURL:   envOrDefault("SOURCE_SERVICE_URL", ""),
		SourceServiceToken: Secret(envOrDefault("SOURCE_SERVICE_TOKEN", "")),
	}

	ints := []struct {
		key      string
		def      string
		min, max int
		dst      *int
	}{
		{"DB_MAX_CONNS", "20", 2, 200, &cfg.DBMaxConns},
		{"HASH_WORKERS", "4", 1, 32, &cfg.HashWorkers},
		{"BUILD_WORKERS", "2", 1, 16, &cfg.BuildWorkers},
		{"BUILD_QUEUE_SIZE", "100", 1, 100000, &cfg.BuildQueueSize},
		{"MAX_LINEAGE_NODES", "50000", 1, 10000000, &cfg.MaxLineageNodes},
		{"MAX_PACK_RANGE_DAYS", "3660", 1, 36600, &cfg.MaxPackRangeDays},
	}

	for _, in := range ints {
		v, err := strconv.Atoi(envOrDefault(in.key, in.def))
		if err != nil || v < in.min || v > in.max {
			return nil, fmt.Errorf("%s must be an integer between %d and %d", in.key, in.min, in.max)
		}
		*in.dst = v
	}

	timeout, err := time.ParseDuration(envOrDefault("EXTERNAL_TIMEOUT", "30s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("EXTERNAL_TIMEOUT must be a positive duration such as 30s")
	}
	cfg.ExternalTimeout = timeout

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:3002")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
