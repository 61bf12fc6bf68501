package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edulane/billing/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Kafka      KafkaConfig
	PubSub     PubSubConfig  `mapstructure:"pubsub" validate:"required"`
	Router     RouterConfig  `validate:"required"`
	Billing    BillingConfig `validate:"required"`
	Metrics    MetricsConfig
	Sentry     SentryConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string
	Port                   int
	User                   string
	Password               string
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string `mapstructure:"consumer_group"`
	ClientID      string `mapstructure:"client_id"`
	TLS           bool   `mapstructure:"tls"`
	UseSASL       bool   `mapstructure:"use_sasl"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUser      string `mapstructure:"sasl_user"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

type PubSubConfig struct {
	Driver types.PubSubDriver `validate:"required"`
}

// RouterConfig controls redelivery of messages whose handler failed with a
// retryable error
type RouterConfig struct {
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	DLQTopic        string        `mapstructure:"dlq_topic" validate:"required"`
}

type BillingConfig struct {
	Currency            string `validate:"required,len=3"`
	InvoiceNumberDigits int    `mapstructure:"invoice_number_digits" validate:"gte=1,lte=12"`
	CommitRetries       uint64 `mapstructure:"commit_retries" validate:"lte=5"`
	PaymentTopic        string `mapstructure:"payment_topic" validate:"required"`
	EventsTopic         string `mapstructure:"events_topic" validate:"required"`
}

// MetricsConfig controls the prometheus scrape endpoint
type MetricsConfig struct {
	Enabled bool
	Address string `validate:"required_if=Enabled true"`
}

// SentryConfig controls error reporting to Sentry
type SentryConfig struct {
	Enabled     bool
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/edulane-billing")

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("pubsub.driver", types.PubSubDriverMemory)
	v.SetDefault("router.max_retries", 3)
	v.SetDefault("router.initial_interval", time.Second)
	v.SetDefault("router.max_interval", 10*time.Second)
	v.SetDefault("router.multiplier", 2.0)
	v.SetDefault("router.dlq_topic", "payments_dlq")
	v.SetDefault("billing.currency", "usd")
	v.SetDefault("billing.invoice_number_digits", 6)
	v.SetDefault("billing.commit_retries", 1)
	v.SetDefault("billing.payment_topic", "payments")
	v.SetDefault("billing.events_topic", "billing_events")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.environment", "local")
	v.SetDefault("sentry.sample_rate", 0.0)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.PubSub.Driver == types.PubSubDriverKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must be set when pubsub.driver is %q", types.PubSubDriverKafka)
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts and tests
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		PubSub:     PubSubConfig{Driver: types.PubSubDriverMemory},
		Router: RouterConfig{
			MaxRetries:      3,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			Multiplier:      2,
			DLQTopic:        "payments_dlq",
		},
		Billing: BillingConfig{
			Currency:            "usd",
			InvoiceNumberDigits: 6,
			CommitRetries:       1,
			PaymentTopic:        "payments",
			EventsTopic:         "billing_events",
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

// GetTLSConfig returns the TLS settings for the kafka client, nil when TLS is off
func (c KafkaConfig) GetTLSConfig() *tls.Config {
	if !c.TLS && !c.UseSASL {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: false}
}
