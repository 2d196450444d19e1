// Package config holds the service configuration. Values come from
// defaults, an optional JSON or YAML file, a .env file and the
// environment, in that order.
package config

import (
	"time"

	"github.com/hannes/gridfinity-cutout/storage"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                string `json:"port" yaml:"port"`
	UIPath              string `json:"ui_path" yaml:"ui_path"` // static UI served at / when set
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
	MaxUploadBytes      int64  `json:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// DatabaseConfig holds storage configuration
type DatabaseConfig struct {
	Driver       string `json:"driver" yaml:"driver"`     // memory, sqlite or postgres
	Path         string `json:"path" yaml:"path"`         // SQLite file
	Host         string `json:"host" yaml:"host"`         // Database host
	Port         int    `json:"port" yaml:"port"`         // Database port
	Database     string `json:"database" yaml:"database"` // Database name
	Username     string `json:"username" yaml:"username"`
	Password     string `json:"password" yaml:"password"`
	SSLMode      string `json:"ssl_mode" yaml:"ssl_mode"` // SSL mode (disable, require, etc.)
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxLifetime  int    `json:"max_lifetime" yaml:"max_lifetime"` // Connection max lifetime in seconds
	UseCache     bool   `json:"use_cache" yaml:"use_cache"`       // Whether to use in-memory cache
	CleanupHours int    `json:"cleanup_hours" yaml:"cleanup_hours"`
}

// FilesConfig holds generated file storage configuration
type FilesConfig struct {
	DataDir                string `json:"data_dir" yaml:"data_dir"`
	TTLSeconds             int    `json:"ttl_seconds" yaml:"ttl_seconds"` // token downloads expire after this
	CleanupIntervalSeconds int    `json:"cleanup_interval_seconds" yaml:"cleanup_interval_seconds"`
}

// IdentifyConfig selects and configures the item identifier
type IdentifyConfig struct {
	Backend      string `json:"backend" yaml:"backend"` // heuristic, llm, onnx or model
	ModelDir     string `json:"model_dir" yaml:"model_dir"`
	WatchModel   bool   `json:"watch_model" yaml:"watch_model"`
	ModelBaseURL string `json:"model_base_url" yaml:"model_base_url"`
}

// ProviderConfig holds one LLM provider's settings
type ProviderConfig struct {
	BaseURL           string            `json:"base_url" yaml:"base_url"`
	APIKey            string            `json:"api_key" yaml:"api_key"`
	Model             string            `json:"model" yaml:"model"`
	AdditionalHeaders map[string]string `json:"additional_headers" yaml:"additional_headers"`
	RequestsPerSec    float64           `json:"requests_per_sec" yaml:"requests_per_sec"`
}

// ProvidersConfig holds LLM provider configuration
type ProvidersConfig struct {
	Default        string         `json:"default" yaml:"default"`
	TimeoutSeconds int            `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxAttempts    int            `json:"max_attempts" yaml:"max_attempts"`
	OpenAI         ProviderConfig `json:"openai" yaml:"openai"`
	Anthropic      ProviderConfig `json:"anthropic" yaml:"anthropic"`
	Gemini         ProviderConfig `json:"gemini" yaml:"gemini"`
	Mistral        ProviderConfig `json:"mistral" yaml:"mistral"`
}

// Get returns the settings for the named provider.
func (p ProvidersConfig) Get(name string) (ProviderConfig, bool) {
	switch name {
	case "openai":
		return p.OpenAI, true
	case "anthropic":
		return p.Anthropic, true
	case "gemini":
		return p.Gemini, true
	case "mistral":
		return p.Mistral, true
	}
	return ProviderConfig{}, false
}

// DimensionsConfig holds outbound dimension lookup configuration
type DimensionsConfig struct {
	UserAgent      string  `json:"user_agent" yaml:"user_agent"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	RequestsPerSec float64 `json:"requests_per_sec" yaml:"requests_per_sec"` // per host
	CacheTTLHours  int     `json:"cache_ttl_hours" yaml:"cache_ttl_hours"`
	SPARQLEndpoint string  `json:"sparql_endpoint" yaml:"sparql_endpoint"`
	WikidataAPI    string  `json:"wikidata_api" yaml:"wikidata_api"`
	WikipediaBase  string  `json:"wikipedia_base" yaml:"wikipedia_base"`
	AllowPrivate   bool    `json:"allow_private" yaml:"allow_private"` // trusted deployments only
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"` // console encoder instead of JSON
	LogRequests bool   `json:"log_requests" yaml:"log_requests"`
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN              string  `json:"dsn" yaml:"dsn"`
	Environment      string  `json:"environment" yaml:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate" yaml:"traces_sample_rate"`
}

// RateLimitConfig limits CPU-heavy endpoints per client IP
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 disables
	Burst             int `json:"burst" yaml:"burst"`
}

// GeneratorConfig bounds what the HTTP API will build
type GeneratorConfig struct {
	MaxSizeMM       int `json:"max_size_mm" yaml:"max_size_mm"` // /generate width, length and height
	MaxSlots        int `json:"max_slots" yaml:"max_slots"`     // /stl x_slots, y_slots and z_units
	MaxCompartments int `json:"max_compartments" yaml:"max_compartments"`
	PreviewSize     int `json:"preview_size" yaml:"preview_size"`
}

// Config holds all configuration for the cutout service
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Files      FilesConfig      `json:"files" yaml:"files"`
	Identify   IdentifyConfig   `json:"identify" yaml:"identify"`
	Providers  ProvidersConfig  `json:"providers" yaml:"providers"`
	Dimensions DimensionsConfig `json:"dimensions" yaml:"dimensions"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Sentry     SentryConfig     `json:"sentry" yaml:"sentry"`
	RateLimit  RateLimitConfig  `json:"rate_limit" yaml:"rate_limit"`
	Generator  GeneratorConfig  `json:"generator" yaml:"generator"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                ":8000",
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 120,
			IdleTimeoutSeconds:  60,
			MaxUploadBytes:      10 << 20,
		},
		Database: DatabaseConfig{
			Driver:       storage.DriverMemory,
			Path:         "data/gridfinity.db",
			Host:         "localhost",
			Port:         5432,
			Database:     "gridfinity",
			Username:     "postgres",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 25,
			MaxLifetime:  300,
			UseCache:     true,
			CleanupHours: 24 * 7,
		},
		Files: FilesConfig{
			DataDir:                "data",
			TTLSeconds:             300,
			CleanupIntervalSeconds: 60,
		},
		Identify: IdentifyConfig{
			Backend:      "heuristic",
			ModelDir:     "model/quantized",
			ModelBaseURL: "http://localhost:8001",
		},
		Providers: ProvidersConfig{
			Default:        "openai",
			TimeoutSeconds: 60,
			MaxAttempts:    3,
		},
		Dimensions: DimensionsConfig{
			UserAgent:      "GridfinityCutoutBot/1.0 (+dimensions)",
			TimeoutSeconds: 20,
			RequestsPerSec: 2,
			CacheTTLHours:  24,
		},
		Logging: LoggingConfig{
			Level:       "info",
			LogRequests: true,
		},
		Sentry: SentryConfig{
			Environment: "development",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			Burst:             5,
		},
		Generator: GeneratorConfig{
			MaxSizeMM:       1000,
			MaxSlots:        10,
			MaxCompartments: 20,
			PreviewSize:     512,
		},
	}
}

// StorageConfig converts the database section for storage.Open.
func (c *Config) StorageConfig() storage.Config {
	d := c.Database
	return storage.Config{
		Driver:       d.Driver,
		Path:         d.Path,
		Host:         d.Host,
		Port:         d.Port,
		Database:     d.Database,
		Username:     d.Username,
		Password:     d.Password,
		SSLMode:      d.SSLMode,
		MaxOpenConns: d.MaxOpenConns,
		MaxIdleConns: d.MaxIdleConns,
		MaxLifetime:  time.Duration(d.MaxLifetime) * time.Second,
		UseCache:     d.UseCache,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (s ServerConfig) ReadTimeout() time.Duration  { return seconds(s.ReadTimeoutSeconds) }
func (s ServerConfig) WriteTimeout() time.Duration { return seconds(s.WriteTimeoutSeconds) }
func (s ServerConfig) IdleTimeout() time.Duration  { return seconds(s.IdleTimeoutSeconds) }

func (f FilesConfig) TTL() time.Duration             { return seconds(f.TTLSeconds) }
func (f FilesConfig) CleanupInterval() time.Duration { return seconds(f.CleanupIntervalSeconds) }

func (d DimensionsConfig) Timeout() time.Duration  { return seconds(d.TimeoutSeconds) }
func (d DimensionsConfig) CacheTTL() time.Duration { return time.Duration(d.CacheTTLHours) * time.Hour }

func (d DatabaseConfig) CleanupAge() time.Duration { return time.Duration(d.CleanupHours) * time.Hour }
