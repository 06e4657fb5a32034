package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("BROKER_ENDPOINT", "")
	t.Setenv("BROKER_PUBSUB_NAME", "")
	t.Setenv("BROKER_APP_ID", "")

	cfg := LoadConfig()

	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, "product-pubsub", cfg.PubsubName)
	assert.Equal(t, "product-service", cfg.AppID)
	assert.Equal(t, defaultRetryBackoff, cfg.RetryBackoff)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
}

func TestLoadConfig_MultipleBrokers(t *testing.T) {
	t.Setenv("BROKER_ENDPOINT", "kafka-1:9092, kafka-2:9092 ,kafka-3:9092")

	cfg := LoadConfig()

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092", "kafka-3:9092"}, cfg.Brokers)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("BROKER_PUBSUB_NAME", "staging-pubsub")
	t.Setenv("BROKER_APP_ID", "product-service-eu")
	t.Setenv("BROKER_RETRY_BACKOFF", "250ms")
	t.Setenv("BROKER_MAX_RETRIES", "9")

	cfg := LoadConfig()

	assert.Equal(t, "staging-pubsub", cfg.PubsubName)
	assert.Equal(t, "product-service-eu", cfg.AppID)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 9, cfg.MaxRetries)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		expected error
	}{
		{
			name: "valid config",
			cfg: &Config{
				Brokers:    []string{"localhost:9092"},
				PubsubName: "product-pubsub",
				AppID:      "product-service",
			},
			expected: nil,
		},
		{
			name: "missing brokers",
			cfg: &Config{
				PubsubName: "product-pubsub",
				AppID:      "product-service",
			},
			expected: ErrBrokerEndpointEmpty,
		},
		{
			name: "missing pubsub name",
			cfg: &Config{
				Brokers: []string{"localhost:9092"},
				AppID:   "product-service",
			},
			expected: ErrPubsubNameEmpty,
		},
		{
			name: "missing app id",
			cfg: &Config{
				Brokers:    []string{"localhost:9092"},
				PubsubName: "product-pubsub",
			},
			expected: ErrAppIDEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()

			if tt.expected == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.expected)
			}
		})
	}
}

func TestConfigGroupID(t *testing.T) {
	cfg := &Config{PubsubName: "product-pubsub", AppID: "product-service"}

	assert.Equal(t, "product-pubsub.product-service", cfg.GroupID())
}
