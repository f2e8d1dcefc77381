package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/cassiomorais/txcoord/pkg/txcoord"
)

// Config holds all coordinator configuration
type Config struct {
	Coordinator   CoordinatorConfig   `mapstructure:"coordinator"`
	Ambient       AmbientConfig       `mapstructure:"ambient"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Demo          DemoConfig          `mapstructure:"demo"`
	InstanceID    string              `mapstructure:"instance_id"`
}

// CoordinatorConfig holds transaction coordination policy
type CoordinatorConfig struct {
	// DefaultMode is the propagation mode that Unspecified resolves to.
	DefaultMode string `mapstructure:"default_mode"`
	// CascadeFailures makes a failing child transaction fail its Active
	// ancestors.
	CascadeFailures bool `mapstructure:"cascade_failures"`
}

// AmbientConfig holds the Redis-backed ambient bridge configuration
type AmbientConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RegistrationTTL time.Duration `mapstructure:"registration_ttl"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// RedisAddr returns the host:port address for the Redis client.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// DemoConfig holds settings for the demo binary
type DemoConfig struct {
	Port     int `mapstructure:"port"`
	Contexts int `mapstructure:"contexts"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TXCOORD")
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/txcoord")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields have valid values.
func (c *Config) Validate() error {
	var errs []error

	if _, err := txcoord.ParsePropagationMode(c.Coordinator.DefaultMode); err != nil {
		errs = append(errs, fmt.Errorf("coordinator.default_mode: %w", err))
	} else if c.Coordinator.DefaultMode == string(txcoord.PropagationUnspecified) {
		errs = append(errs, fmt.Errorf("coordinator.default_mode must not be %q", txcoord.PropagationUnspecified))
	}

	if c.Ambient.Enabled {
		if c.Ambient.RegistrationTTL <= 0 {
			errs = append(errs, fmt.Errorf("ambient.registration_ttl must be positive"))
		}
		if c.Ambient.Redis.Host == "" {
			errs = append(errs, fmt.Errorf("ambient.redis.host is required"))
		}
		if c.Ambient.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("ambient.redis.port must be positive"))
		}
	}

	if c.Demo.Port <= 0 || c.Demo.Port > 65535 {
		errs = append(errs, fmt.Errorf("demo.port must be between 1 and 65535, got %d", c.Demo.Port))
	}
	if c.Demo.Contexts <= 0 {
		errs = append(errs, fmt.Errorf("demo.contexts must be positive"))
	}

	return errors.Join(errs...)
}

// DefaultMode returns the validated default propagation mode.
func (c *Config) DefaultMode() txcoord.PropagationMode {
	mode, err := txcoord.ParsePropagationMode(c.Coordinator.DefaultMode)
	if err != nil {
		return txcoord.PropagationRequires
	}
	return mode
}

func setDefaults(v *viper.Viper) {
	// Coordinator defaults
	v.SetDefault("coordinator.default_mode", string(txcoord.PropagationRequires))
	v.SetDefault("coordinator.cascade_failures", false)

	// Ambient defaults
	v.SetDefault("ambient.enabled", false)
	v.SetDefault("ambient.registration_ttl", "5m")
	v.SetDefault("ambient.redis.host", "localhost")
	v.SetDefault("ambient.redis.port", 6379)
	v.SetDefault("ambient.redis.db", 0)
	v.SetDefault("ambient.redis.password", "")
	v.SetDefault("ambient.redis.connect_retries", 5)
	v.SetDefault("ambient.redis.connect_retry_delay", "1s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Demo defaults
	v.SetDefault("demo.port", 8080)
	v.SetDefault("demo.contexts", 4)

	v.SetDefault("instance_id", "txcoord-1")
}
