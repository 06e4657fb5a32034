package bulkimport

import (
	"time"

	"github.com/aioutlet/product-service/internal/config"
)

// defaultBatchSize is how many rows a worker processes per batch when
// BULK_IMPORT_BATCH_SIZE is unset.
const defaultBatchSize = 100

// defaultOutboundTimeout bounds the fetch of a submitted file URL when
// OUTBOUND_HTTP_TIMEOUT_MS is unset.
const defaultOutboundTimeout = 5 * time.Second

// Config holds bulk import settings from the environment.
type Config struct {
	// BatchSize is the number of rows per worker batch. Progress is recorded
	// and announced once per batch.
	BatchSize int

	// OutboundHTTPTimeout caps the whole download when a job is submitted by
	// URL instead of by upload.
	OutboundHTTPTimeout time.Duration
}

// LoadConfigFromEnv reads bulk import settings from the environment.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		BatchSize:           config.GetEnvInt("BULK_IMPORT_BATCH_SIZE", defaultBatchSize),
		OutboundHTTPTimeout: time.Duration(config.GetEnvInt("OUTBOUND_HTTP_TIMEOUT_MS", 0)) * time.Millisecond,
	}

	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.OutboundHTTPTimeout <= 0 {
		cfg.OutboundHTTPTimeout = defaultOutboundTimeout
	}

	return cfg
}
