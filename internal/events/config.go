package events

import (
	"errors"
	"time"

	"github.com/aioutlet/product-service/internal/config"
)

const (
	defaultPubsubName   = "product-pubsub"
	defaultAppID        = "product-service"
	defaultBatchTimeout = 50 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second
	defaultMaxWait      = 500 * time.Millisecond
	defaultMinBytes     = 1
	defaultMaxBytes     = 10 << 20 // 10 MiB, matches broker default message cap
	defaultRetryBackoff = 2 * time.Second
	defaultMaxRetries   = 5
)

var (
	// ErrBrokerEndpointEmpty is returned when no broker address is configured.
	ErrBrokerEndpointEmpty = errors.New("broker endpoint cannot be empty")

	// ErrPubsubNameEmpty is returned when the pubsub name is blank.
	ErrPubsubNameEmpty = errors.New("broker pubsub name cannot be empty")

	// ErrAppIDEmpty is returned when the app id is blank.
	ErrAppIDEmpty = errors.New("broker app id cannot be empty")
)

// Config holds broker connection configuration for the publisher and router.
type Config struct {
	Brokers      []string      // Kafka bootstrap addresses
	PubsubName   string        // consumer group prefix
	AppID        string        // client identity, consumer group suffix
	BatchTimeout time.Duration // writer flush interval
	WriteTimeout time.Duration // per-publish deadline
	MaxWait      time.Duration // reader poll interval
	RetryBackoff time.Duration // delay between redeliveries of a transient failure
	MaxRetries   int           // redelivery attempts before an event is parked
}

// LoadConfig loads broker configuration from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Brokers:      config.ParseCommaSeparatedList(config.GetEnvStr("BROKER_ENDPOINT", "localhost:9092")),
		PubsubName:   config.GetEnvStr("BROKER_PUBSUB_NAME", defaultPubsubName),
		AppID:        config.GetEnvStr("BROKER_APP_ID", defaultAppID),
		BatchTimeout: config.GetEnvDuration("BROKER_BATCH_TIMEOUT", defaultBatchTimeout),
		WriteTimeout: config.GetEnvDuration("BROKER_WRITE_TIMEOUT", defaultWriteTimeout),
		MaxWait:      config.GetEnvDuration("BROKER_MAX_WAIT", defaultMaxWait),
		RetryBackoff: config.GetEnvDuration("BROKER_RETRY_BACKOFF", defaultRetryBackoff),
		MaxRetries:   config.GetEnvInt("BROKER_MAX_RETRIES", defaultMaxRetries),
	}
}

// Validate checks if the broker configuration is valid.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrBrokerEndpointEmpty
	}

	if c.PubsubName == "" {
		return ErrPubsubNameEmpty
	}

	if c.AppID == "" {
		return ErrAppIDEmpty
	}

	return nil
}

// GroupID returns the consumer group shared by this service's router
// instances. All replicas join the same group so each inbound event is
// handled once.
func (c *Config) GroupID() string {
	return c.PubsubName + "." + c.AppID
}
