// Package config loads process configuration from an optional YAML file
// and OTCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Keys, usable with viper overrides and as env vars (OTCORE_STORE_DRIVER).
const (
	KeyListen                  = "listen"
	KeyLogLevel                = "log.level"
	KeyLogFormat               = "log.format"
	KeyStoreDriver             = "store.driver"
	KeyStoreDSN                = "store.dsn"
	KeyPipelineMaxAttempts     = "pipeline.max_attempts"
	KeyPipelineStorageRetries  = "pipeline.storage_retries"
	KeyPipelineBackoffInitial  = "pipeline.backoff_initial"
	KeyPipelineBackoffMax      = "pipeline.backoff_max"
	KeyPipelineObjectLocks     = "pipeline.object_locks"
	KeyPipelineValidateSchemas = "pipeline.validate_schemas"
	KeyNotifyMode              = "notify.mode"
	KeyNotifyPollInterval      = "notify.poll_interval"
	KeyRedisAddrs              = "redis.addrs"
	KeyRedisPassword           = "redis.password"
	KeyKafkaBrokers            = "kafka.brokers"
	KeyKafkaTopic              = "kafka.topic"
	KeyKafkaQueueSize          = "kafka.queue_size"
	KeyKafkaWorkers            = "kafka.workers"
	KeyKafkaMaxRetry           = "kafka.max_retry"
)

// Notifier modes.
const (
	NotifyPush = "push"
	NotifyPoll = "poll"
)

// Config is the full process configuration.
type Config struct {
	Listen   string   `mapstructure:"listen" validate:"required,hostname_port"`
	Log      Log      `mapstructure:"log"`
	Store    Store    `mapstructure:"store"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Notify   Notify   `mapstructure:"notify"`
	Redis    Redis    `mapstructure:"redis"`
	Kafka    Kafka    `mapstructure:"kafka"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type Store struct {
	Driver string `mapstructure:"driver" validate:"oneof=memory sqlite postgres mysql"`
	DSN    string `mapstructure:"dsn" validate:"required_unless=Driver memory"`
}

type Pipeline struct {
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"min=1"`
	StorageRetries  int           `mapstructure:"storage_retries" validate:"min=0"`
	BackoffInitial  time.Duration `mapstructure:"backoff_initial" validate:"gt=0"`
	BackoffMax      time.Duration `mapstructure:"backoff_max" validate:"gtefield=BackoffInitial"`
	ObjectLocks     bool          `mapstructure:"object_locks"`
	ValidateSchemas bool          `mapstructure:"validate_schemas"`
}

type Notify struct {
	Mode         string        `mapstructure:"mode" validate:"oneof=push poll"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
}

// Redis enables the cross-instance relay when Addrs is non-empty. More
// than one address selects a cluster client.
type Redis struct {
	Addrs    []string `mapstructure:"addrs" validate:"dive,hostname_port"`
	Password string   `mapstructure:"password"`
}

// Kafka enables commit events when Brokers is non-empty.
type Kafka struct {
	Brokers   []string `mapstructure:"brokers" validate:"dive,hostname_port"`
	Topic     string   `mapstructure:"topic" validate:"required_with=Brokers"`
	QueueSize int      `mapstructure:"queue_size" validate:"min=0"`
	Workers   int      `mapstructure:"workers" validate:"min=0"`
	MaxRetry  int      `mapstructure:"max_retry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyListen, "127.0.0.1:8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyStoreDriver, "sqlite")
	v.SetDefault(KeyStoreDSN, "otcore.db")
	v.SetDefault(KeyPipelineMaxAttempts, 8)
	v.SetDefault(KeyPipelineStorageRetries, 5)
	v.SetDefault(KeyPipelineBackoffInitial, 50*time.Millisecond)
	v.SetDefault(KeyPipelineBackoffMax, 2*time.Second)
	v.SetDefault(KeyPipelineObjectLocks, true)
	v.SetDefault(KeyPipelineValidateSchemas, true)
	v.SetDefault(KeyNotifyMode, NotifyPush)
	v.SetDefault(KeyNotifyPollInterval, 500*time.Millisecond)
	v.SetDefault(KeyRedisAddrs, []string{})
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyKafkaBrokers, []string{})
	v.SetDefault(KeyKafkaTopic, "otcore.commits")
	v.SetDefault(KeyKafkaQueueSize, 1024)
	v.SetDefault(KeyKafkaWorkers, 2)
	v.SetDefault(KeyKafkaMaxRetry, 3)
}

// New returns a viper instance with defaults, env binding and, when path
// is set, that config file. Without a path it looks for otcore.yaml in
// the working directory and /etc/otcore.
func New(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("otcore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/otcore")
	}

	v.SetEnvPrefix("otcore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. A missing default config file is not an
// error; a missing explicit path is.
func Load(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}
	return FromViper(New(path))
}

// FromViper reads, decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
