package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aioutlet/product-service/internal/config"
)

const (
	defaultStoreHost       = "localhost"
	defaultStorePort       = 5432
	defaultStoreDB         = "product_service"
	defaultStoreUser       = "product_service"
	defaultStoreSSLMode    = "disable"
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultDedupTTL        = 24 * time.Hour
	defaultCleanupInterval = time.Hour
	maxPort                = 65535
)

var (
	// ErrStoreHostEmpty is returned when the store host is an empty string.
	ErrStoreHostEmpty = errors.New("store host cannot be empty")

	// ErrStoreDBEmpty is returned when the store database name is empty.
	ErrStoreDBEmpty = errors.New("store database name cannot be empty")

	// ErrStoreUserEmpty is returned when the store user is empty.
	ErrStoreUserEmpty = errors.New("store user cannot be empty")

	// ErrStorePortInvalid is returned when the store port is out of range.
	ErrStorePortInvalid = errors.New("store port must be between 1 and 65535")
)

// Config holds PostgreSQL connection configuration with production-ready defaults.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	password string

	// SSLMode is passed through to the driver (disable, require, verify-full).
	SSLMode string

	// AuthSource is accepted for deployment-manifest compatibility with the
	// other catalog services; the PostgreSQL DSN does not use it.
	AuthSource string

	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of connections
	ConnMaxIdleTime time.Duration // Maximum idle time for connections

	// DedupEnabled switches the inbound event idempotency ledger on. When
	// off, redelivered events re-apply their mutations.
	DedupEnabled bool

	// DedupTTL bounds how long processed event ids are remembered.
	DedupTTL time.Duration

	// CleanupInterval is the period of the ledger cleanup goroutine.
	CleanupInterval time.Duration
}

// LoadConfig loads PostgreSQL configuration from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Host:            config.GetEnvStr("STORE_HOST", defaultStoreHost),
		Port:            config.GetEnvInt("STORE_PORT", defaultStorePort),
		Database:        config.GetEnvStr("STORE_DB", defaultStoreDB),
		User:            config.GetEnvStr("STORE_USER", defaultStoreUser),
		password:        config.GetEnvStr("STORE_PASS", ""), // password is private for obvious reasons.
		SSLMode:         config.GetEnvStr("STORE_SSL_MODE", defaultStoreSSLMode),
		AuthSource:      config.GetEnvStr("STORE_AUTH_SOURCE", ""),
		MaxOpenConns:    config.GetEnvInt("STORE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("STORE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("STORE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("STORE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		DedupEnabled:    config.GetEnvBool("EVENT_DEDUP_ENABLED", true),
		DedupTTL:        config.GetEnvDuration("EVENT_DEDUP_TTL", defaultDedupTTL),
		CleanupInterval: config.GetEnvDuration("EVENT_DEDUP_CLEANUP_INTERVAL", defaultCleanupInterval),
	}
}

// Validate checks if the PostgreSQL configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrStoreHostEmpty
	}

	if c.Port < 1 || c.Port > maxPort {
		return fmt.Errorf("%w: got %d", ErrStorePortInvalid, c.Port)
	}

	if strings.TrimSpace(c.Database) == "" {
		return ErrStoreDBEmpty
	}

	if strings.TrimSpace(c.User) == "" {
		return ErrStoreUserEmpty
	}

	return nil
}

// DSN assembles the PostgreSQL connection string.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}

	if c.password != "" {
		u.User = url.UserPassword(c.User, c.password)
	} else {
		u.User = url.User(c.User)
	}

	query := url.Values{}
	query.Set("sslmode", c.SSLMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// MaskDSN returns the connection string with the password masked, safe for
// logging.
func (c *Config) MaskDSN() string {
	if c.password == "" {
		return c.DSN()
	}

	masked := *c
	masked.password = "***"

	return masked.DSN()
}

// WithPassword returns a copy of the config carrying the given password.
// Tests use it to point stores at a container database.
func (c *Config) WithPassword(password string) *Config {
	clone := *c
	clone.password = password

	return &clone
}
