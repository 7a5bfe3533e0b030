package config

import (
	"strings"
	"time"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Provider ProviderConfig `mapstructure:"provider" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Youtube  YoutubeConfig  `mapstructure:"youtube" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// AllowedOrigins is a comma separated list of origins allowed to open
	// realtime websockets. Empty means same origin only.
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// Origins returns AllowedOrigins as a trimmed list.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TokenLifetimeMinutes bounds access tokens issued by this service.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
	// TokenEncryptionKey is a hex encoded 32 byte key used to seal stored
	// OAuth tokens.
	TokenEncryptionKey string `mapstructure:"token_encryption_key" validate:"required,len=64,hexadecimal"`
}

// ProviderConfig configures the music generation provider client.
type ProviderConfig struct {
	BaseURL               string  `mapstructure:"base_url" validate:"required,url"`
	APIKey                string  `mapstructure:"api_key" validate:"required"`
	Model                 string  `mapstructure:"model" validate:"required"`
	CallbackURL           string  `mapstructure:"callback_url" validate:"required,url"`
	WebhookSecret         string  `mapstructure:"webhook_secret" validate:"required,min=16"`
	MaxRetries            int     `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelayMS          int     `mapstructure:"retry_delay_ms" validate:"gt=0"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds" validate:"gt=0"`
	RequestsPerSecond     float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	AverageTrackSeconds   int     `mapstructure:"average_track_seconds" validate:"gt=0"`
}

// RetryDelay returns the base retry delay.
func (p ProviderConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMS) * time.Millisecond
}

// RequestTimeout returns the per-request timeout.
func (p ProviderConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// LLMConfig contains the optional prompt writer settings. An empty API key
// disables prompt writing.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name" validate:"required_with=GeminiAPIKey"`
}

// StorageConfig configures the S3 compatible object store for artwork.
type StorageConfig struct {
	Endpoint      string `mapstructure:"endpoint" validate:"required"`
	AccessKey     string `mapstructure:"access_key" validate:"required"`
	SecretKey     string `mapstructure:"secret_key" validate:"required"`
	Bucket        string `mapstructure:"bucket" validate:"required"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PublicBaseURL string `mapstructure:"public_base_url" validate:"omitempty,url"`
}

// RedisConfig configures the realtime fan-out bridge. An empty URL keeps
// realtime delivery in-process.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// YoutubeConfig configures the video platform OAuth client.
type YoutubeConfig struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	RedirectURL  string `mapstructure:"redirect_url" validate:"required,url"`
	// ReturnURL is where the browser lands after the callback, with an
	// outcome query parameter appended.
	ReturnURL string `mapstructure:"return_url" validate:"required"`
}

// TaskConfig configures background execution.
type TaskConfig struct {
	WorkerCount         int `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize           int `mapstructure:"queue_size" validate:"gt=0"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" validate:"gte=0"`
	// MaxFetchFailures is how many failed fetches of one provider task are
	// tolerated before its generation is marked failed.
	MaxFetchFailures int `mapstructure:"max_fetch_failures" validate:"gte=0"`
}

// PollInterval returns the periodic reconcile interval; zero disables it.
func (t TaskConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSeconds) * time.Second
}
