// Package middleware provides HTTP middleware components for the product catalog API.
package middleware

import (
	"time"

	"github.com/aioutlet/product-service/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for three tiers:
//   - Global: Applied to all requests
//   - Per-service: Applied to authenticated requests
//   - Unauthenticated: Applied to requests without a service ID
//
// Burst capacity allows temporary bursts above sustained rate.
// If burst fields are 0, they are computed automatically as 2 × rate.
type Config struct {
	// Rate limits (requests per second)
	GlobalRPS  int // Default: 100
	ServiceRPS int // Default: 50
	UnAuthRPS  int // Default: 10

	// Optional burst capacity overrides (0 = compute automatically as 2 × rate) using computeBurstCapacity()
	GlobalBurst  int // Default: 0 (computed as 2 × GlobalRPS = 200)
	ServiceBurst int // Default: 0 (computed as 2 × ServiceRPS = 100)
	UnAuthBurst  int // Default: 0 (computed as 2 × UnAuthRPS = 20)

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxServices     int           // Default: 100
}

// LoadConfig loads middleware config from environment variables with fallback to defaults.
//
// Default burst capacity: 2 × rate (allows 2-second burst)
// Default cleanup: every 5 minutes, removes services idle >1 hour
// Default max services: 100 (prevents unbounded memory growth).
func LoadConfig() *Config {
	return &Config{
		// Rate limits
		GlobalRPS:  config.GetEnvInt("RATE_LIMIT_GLOBAL_RPS", defaultGlobalRPS),
		ServiceRPS: config.GetEnvInt("RATE_LIMIT_SERVICE_RPS", defaultServiceRPS),
		UnAuthRPS:  config.GetEnvInt("RATE_LIMIT_UNAUTH_RPS", defaultUnAuthRPS),

		// Burst overrides (0 = auto-compute)
		GlobalBurst:  config.GetEnvInt("RATE_LIMIT_GLOBAL_BURST", 0),
		ServiceBurst: config.GetEnvInt("RATE_LIMIT_SERVICE_BURST", 0),
		UnAuthBurst:  config.GetEnvInt("RATE_LIMIT_UNAUTH_BURST", 0),

		// Cleanup configuration
		CleanupInterval: config.GetEnvDuration(
			"RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxServices: config.GetEnvInt("RATE_LIMIT_MAX_SERVICES", maxServices),
	}
}
