package config

import (
	"testing"
	"time"

	"github.com/edulane/billing/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, types.PubSubDriverMemory, cfg.PubSub.Driver)
	assert.Equal(t, 6, cfg.Billing.InvoiceNumberDigits)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Configuration)
	}{
		{
			name:   "kafka without brokers",
			mutate: func(c *Configuration) { c.PubSub.Driver = types.PubSubDriverKafka },
		},
		{
			name:   "currency is not iso 4217",
			mutate: func(c *Configuration) { c.Billing.Currency = "euro" },
		},
		{
			name:   "invoice number digits out of range",
			mutate: func(c *Configuration) { c.Billing.InvoiceNumberDigits = 0 },
		},
		{
			name:   "too many commit retries",
			mutate: func(c *Configuration) { c.Billing.CommitRetries = 10 },
		},
		{
			name:   "missing dead letter topic",
			mutate: func(c *Configuration) { c.Router.DLQTopic = "" },
		},
		{
			name:   "metrics enabled without address",
			mutate: func(c *Configuration) { c.Metrics.Enabled = true },
		},
		{
			name:   "sentry enabled without dsn",
			mutate: func(c *Configuration) { c.Sentry.Enabled = true },
		},
		{
			name:   "sentry sample rate above one",
			mutate: func(c *Configuration) { c.Sentry.SampleRate = 1.5 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewConfigReadsFileAndEnvironment(t *testing.T) {
	t.Setenv("BILLING_BILLING_COMMIT_RETRIES", "3")
	t.Setenv("BILLING_POSTGRES_HOST", "db.internal")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, types.ModeLocal, cfg.Deployment.Mode)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, uint64(3), cfg.Billing.CommitRetries)
	assert.Equal(t, time.Second, cfg.Router.InitialInterval)
	assert.Equal(t, []string{"localhost:29092"}, cfg.Kafka.Brokers)
	assert.Contains(t, cfg.Postgres.GetDSN(), "host=db.internal")
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Address)
	assert.False(t, cfg.Sentry.Enabled)
	assert.Equal(t, "local", cfg.Sentry.Environment)
}

func TestKafkaTLSConfig(t *testing.T) {
	assert.Nil(t, KafkaConfig{}.GetTLSConfig())
	assert.NotNil(t, KafkaConfig{TLS: true}.GetTLSConfig())
}
