package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

func (c *Config) validate() error {
	checks := []func() error{
		c.validateDatabase,
		c.validateNetwork,
		c.validateCORS,
		c.validateSigner,
		c.validateTSA,
		c.validateStorage,
		c.validateSource,
	}

	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	if !isLoopbackHost(dbURL.Hostname()) && dbURL.Query().Get("sslmode") == "disable" {
		return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbURL.Hostname())
	}

	return nil
}

func (c *Config) validateNetwork() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid integer: %w", err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Loopback for local runs, 0.0.0.0/:: when a container boundary is enforced externally.
	validHosts := map[string]bool{
		"127.0.0.1": true,
		"::1":       true,
		"localhost": true,
		"0.0.0.0":   true,
		"::":        true,
	}
	if !validHosts[c.ListenHost] {
		return fmt.Errorf("LISTEN_HOST must be a loopback address or 0.0.0.0/:: for containers (got %q)", c.ListenHost)
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard '*'")
		}
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain glob characters (*?[]), got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

func (c *Config) validateSigner() error {
	switch c.SignerProvider {
	case "memory":
	case "vault":
		if c.VaultToken.Value() == "" {
			return fmt.Errorf("VAULT_TOKEN is required when SIGNER_PROVIDER is vault")
		}

		if !isLocalhost(c.VaultAddr) && !strings.HasPrefix(c.VaultAddr, "https://") {
			return fmt.Errorf("VAULT_ADDR must use HTTPS for non-localhost connections")
		}

		if c.VaultTransitMount == "" || strings.ContainsAny(c.VaultTransitMount, "/?#") {
			return fmt.Errorf("VAULT_TRANSIT_MOUNT must be a single path segment, got %q", c.VaultTransitMount)
		}
	default:
		return fmt.Errorf("SIGNER_PROVIDER must be 'memory' or 'vault', got %q", c.SignerProvider)
	}

	return nil
}

func (c *Config) validateTSA() error {
	if c.TSAURL == "" {
		return fmt.Errorf("TSA_URL is required")
	}

	u, err := url.ParseRequestURI(c.TSAURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("TSA_URL must be an http(s) URL, got %q", c.TSAURL)
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch c.StorageProvider {
	case "memory":
	case "s3":
		if c.S3Bucket == "" || c.S3Region == "" {
			return fmt.Errorf("S3_BUCKET and S3_REGION are required when STORAGE_PROVIDER is s3")
		}

		if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey.Value() == "") {
			return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
		}

		if c.S3Endpoint != "" {
			if _, err := url.ParseRequestURI(c.S3Endpoint); err != nil {
				return fmt.Errorf("S3_ENDPOINT is not a valid URL: %w", err)
			}
		}
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be 'memory' or 's3', got %q", c.StorageProvider)
	}

	return nil
}

func (c *Config) validateSource() error {
	if c.SourceServiceURL == "" {
		return nil
	}

	u, err := url.ParseRequestURI(c.SourceServiceURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("SOURCE_SERVICE_URL is not a valid URL: %q", c.SourceServiceURL)
	}

	if !isLocalhost(c.SourceServiceURL) && u.Scheme != "https" {
		return fmt.Errorf("SOURCE_SERVICE_URL must use HTTPS for non-localhost connections")
	}

	return nil
}

// isLocalhost returns true if the given address points to a loopback address.
func isLocalhost(addr string) bool {
	u, err := url.Parse(addr)
	if err != nil {
		return false
	}

	return isLoopbackHost(u.Hostname())
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
