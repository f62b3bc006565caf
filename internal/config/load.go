package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all configuration environment variables,
// e.g. MEDIAGEN_SERVER_PORT.
const EnvPrefix = "MEDIAGEN"

// Load configuration from environment variables and optionally a config file
// (config.yaml in the working directory). Environment variables take
// precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.poll_timeout", 3*time.Minute)
	v.SetDefault("server.submit_rate_per_second", 5.0)
	v.SetDefault("server.submit_burst", 20)

	v.SetDefault("store.backend", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.claim_lease", 10*time.Minute)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("provider.project", "")
	v.SetDefault("provider.location", "us-central1")
	v.SetDefault("provider.default_model", "gemini-2.0-flash-preview-image-generation")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.access_token", "")
	v.SetDefault("provider.retry_delays", []time.Duration{2 * time.Second, 5 * time.Second})
	v.SetDefault("provider.expected_media", []string{"image/", "video/"})

	v.SetDefault("storage.backend", "gcs")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.public_base_url", "https://storage.googleapis.com")
	v.SetDefault("storage.default_folder", "generations")
	v.SetDefault("storage.local_dir", "")
}
