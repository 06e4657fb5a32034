package main

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// Config holds all configuration for the migration tool
type Config struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string

	// MigrationTable is the name of the table to track migrations
	MigrationTable string
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. DATABASE_URL wins when set; otherwise the DSN is assembled from
// the STORE_* variables the product service itself runs with, so one env file
// serves both the service and its migrator.
func LoadConfig() (*Config, error) {
	config := &Config{
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", storeDSNFromEnv()),
		MigrationTable: getEnvOrDefault("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	return nil
}

// String returns a string representation of the configuration (safe for logging)
func (c *Config) String() string {
	maskedURL := maskDatabaseURL(c.DatabaseURL)

	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		maskedURL, c.MigrationTable)
}

// storeDSNFromEnv builds a postgres:// DSN from the service's STORE_*
// variables. Returns an empty string when STORE_HOST is unset, which keeps
// DATABASE_URL mandatory on hosts that carry no service configuration.
func storeDSNFromEnv() string {
	host := os.Getenv("STORE_HOST")
	if host == "" {
		return ""
	}

	dsn := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, getEnvOrDefault("STORE_PORT", "5432")),
		Path:   getEnvOrDefault("STORE_DB", "product_service"),
	}

	user := getEnvOrDefault("STORE_USER", "product_service")
	if password := os.Getenv("STORE_PASS"); password != "" {
		dsn.User = url.UserPassword(user, password)
	} else {
		dsn.User = url.User(user)
	}

	dsn.RawQuery = "sslmode=" + getEnvOrDefault("STORE_SSL_MODE", "disable")

	return dsn.String()
}

// getEnvOrDefault returns the environment variable value or a default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// maskDatabaseURL masks the password in a database URL for logging. The
// parsing is positional rather than url.Parse because the input may carry
// characters (a password with "@") that url.Parse rejects.
func maskDatabaseURL(raw string) string {
	authStart := strings.Index(raw, "//")
	if authStart == -1 {
		// No authority section, nothing to mask
		return raw
	}

	authStart += 2

	authEnd := len(raw)
	if i := strings.IndexAny(raw[authStart:], "/?#"); i != -1 {
		authEnd = authStart + i
	}

	// The LAST "@" splits user info from host, in case the password holds "@"
	authority := raw[authStart:authEnd]

	atPos := strings.LastIndex(authority, "@")
	if atPos == -1 {
		return raw
	}

	colonPos := strings.Index(authority[:atPos], ":")
	if colonPos == -1 || atPos == colonPos+1 {
		// No password, or an empty one; leave the URL alone
		return raw
	}

	return raw[:authStart+colonPos+1] + "***" + raw[authStart+atPos:]
}
