package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// CADENCE_DATABASE_URL for database.url.
const EnvPrefix = "CADENCE"

var defaults = map[string]any{
	"server.port":                      8080,
	"server.log_level":                 "info",
	"server.allowed_origins":           "",
	"database.url":                     "",
	"database.max_open_conns":          10,
	"auth.jwt_secret":                  "",
	"auth.token_encryption_key":        "",
	"auth.token_lifetime_minutes":      60,
	"provider.base_url":                "https://api.sunoapi.org",
	"provider.api_key":                 "",
	"provider.model":                   "V4",
	"provider.callback_url":            "",
	"provider.webhook_secret":          "",
	"provider.max_retries":             3,
	"provider.retry_delay_ms":          500,
	"provider.request_timeout_seconds": 30,
	"provider.requests_per_second":     2.0,
	"provider.average_track_seconds":   180,
	"llm.gemini_api_key":               "",
	"llm.model_name":                   "gemini-2.0-flash",
	"storage.endpoint":                 "",
	"storage.access_key":               "",
	"storage.secret_key":               "",
	"storage.bucket":                   "artwork",
	"storage.use_ssl":                  false,
	"storage.public_base_url":          "",
	"redis.url":                        "",
	"youtube.client_id":                "",
	"youtube.client_secret":            "",
	"youtube.redirect_url":             "",
	"youtube.return_url":               "/settings/youtube",
	"task.worker_count":                4,
	"task.queue_size":                  100,
	"task.poll_interval_seconds":       60,
	"task.max_fetch_failures":          5,
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from config files. Returns a populated Config or an error if
// loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Every key needs a default so AutomaticEnv is consulted on Unmarshal.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags on cfg.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
