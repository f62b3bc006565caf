package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Store    StoreConfig    `mapstructure:"store" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Provider ProviderConfig `mapstructure:"provider" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// PollTimeout bounds a poll request, including any pipeline run it triggers.
	PollTimeout time.Duration `mapstructure:"poll_timeout" validate:"gt=0"`

	// SubmitRatePerSecond and SubmitBurst configure the submission limiter.
	// A zero rate disables limiting.
	SubmitRatePerSecond float64 `mapstructure:"submit_rate_per_second" validate:"gte=0"`
	SubmitBurst         int     `mapstructure:"submit_burst" validate:"gte=0"`
}

// StoreConfig selects and configures the task store backend.
type StoreConfig struct {
	Backend       string `mapstructure:"backend" validate:"required,oneof=postgres redis memory"`
	DatabaseURL   string `mapstructure:"database_url" validate:"required_if=Backend postgres"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`

	// ClaimLease is how long an in_progress claim is honored before a later
	// poll may reclaim the task.
	ClaimLease time.Duration `mapstructure:"claim_lease" validate:"gt=0"`
}

// AuthConfig contains the settings used to verify tokens issued by the
// external authentication service.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// ProviderConfig contains the generation provider settings.
type ProviderConfig struct {
	Project      string `mapstructure:"project" validate:"required"`
	Location     string `mapstructure:"location" validate:"required"`
	DefaultModel string `mapstructure:"default_model" validate:"required"`

	// BaseURL overrides the provider endpoint (regional endpoints, proxies).
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`

	// AccessToken is a static bearer token for local development. When empty
	// application default credentials are used.
	AccessToken string `mapstructure:"access_token"`

	// RetryDelays are the two fixed waits before the second and third attempt
	// of a throttled call. Only the durations are configurable.
	RetryDelays []time.Duration `mapstructure:"retry_delays" validate:"omitempty,len=2"`

	// ExpectedMedia lists the MIME type prefixes accepted as generated output.
	ExpectedMedia []string `mapstructure:"expected_media" validate:"required,min=1"`
}

// StorageConfig selects and configures where generated media is published.
type StorageConfig struct {
	Backend       string `mapstructure:"backend" validate:"required,oneof=gcs local"`
	Bucket        string `mapstructure:"bucket" validate:"required_if=Backend gcs"`
	PublicBaseURL string `mapstructure:"public_base_url" validate:"required,url"`
	DefaultFolder string `mapstructure:"default_folder"`
	LocalDir      string `mapstructure:"local_dir" validate:"required_if=Backend local"`
}
