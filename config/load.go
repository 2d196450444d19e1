package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const TRUE = "true"

// Load builds the configuration: defaults, then path (if set), then the
// .env file, then the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := LoadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	LoadFromEnv(cfg)
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env from the working directory when present. Values
// already set in the environment win.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

// LoadFromFile decodes a JSON or YAML file over cfg. The format follows
// the file extension.
func LoadFromFile(path string, cfg *Config) error {
	// #nosec G304 - Config file path is controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file type %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	loadServerConfig(cfg)
	loadDatabaseConfig(cfg)
	loadFilesConfig(cfg)
	loadIdentifyConfig(cfg)
	loadProvidersConfig(cfg)
	loadDimensionsConfig(cfg)
	loadLoggingConfig(cfg)
	loadSentryConfig(cfg)
	loadRateLimitConfig(cfg)
	loadGeneratorConfig(cfg)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, TRUE) || v == "1"
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// loadServerConfig loads HTTP server configuration from environment variables
func loadServerConfig(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Server.Port = port
	}
	envString("UI_PATH", &cfg.Server.UIPath)
}

// loadDatabaseConfig loads database configuration from environment variables
func loadDatabaseConfig(cfg *Config) {
	envString("DB_DRIVER", &cfg.Database.Driver)
	envString("DB_PATH", &cfg.Database.Path)
	envString("DB_HOST", &cfg.Database.Host)
	envInt("DB_PORT", &cfg.Database.Port)
	envString("DB_NAME", &cfg.Database.Database)
	envString("DB_USER", &cfg.Database.Username)
	envString("DB_PASSWORD", &cfg.Database.Password)
	envString("DB_SSL_MODE", &cfg.Database.SSLMode)
	envBool("DB_USE_CACHE", &cfg.Database.UseCache)
	envInt("DB_CLEANUP_HOURS", &cfg.Database.CleanupHours)
}

func loadFilesConfig(cfg *Config) {
	envString("DATA_DIR", &cfg.Files.DataDir)
	envInt("FILE_TTL_SECONDS", &cfg.Files.TTLSeconds)
	envInt("FILE_CLEANUP_INTERVAL_SECONDS", &cfg.Files.CleanupIntervalSeconds)
}

// loadIdentifyConfig loads identifier configuration from environment variables
func loadIdentifyConfig(cfg *Config) {
	envString("IDENTIFIER_BACKEND", &cfg.Identify.Backend)
	envString("MODEL_DIR", &cfg.Identify.ModelDir)
	envBool("MODEL_WATCH", &cfg.Identify.WatchModel)
	envString("MODEL_BASE_URL", &cfg.Identify.ModelBaseURL)
}

func loadProvider(prefix string, p *ProviderConfig) {
	envString(prefix+"_BASE_URL", &p.BaseURL)
	envString(prefix+"_API_KEY", &p.APIKey)
	envString(prefix+"_MODEL", &p.Model)
}

// loadProvidersConfig loads LLM provider configuration from environment variables
func loadProvidersConfig(cfg *Config) {
	envString("LLM_PROVIDER", &cfg.Providers.Default)
	cfg.Providers.Default = strings.ToLower(cfg.Providers.Default)
	envInt("LLM_TIMEOUT_SECONDS", &cfg.Providers.TimeoutSeconds)
	loadProvider("OPENAI", &cfg.Providers.OpenAI)
	loadProvider("ANTHROPIC", &cfg.Providers.Anthropic)
	loadProvider("MISTRAL", &cfg.Providers.Mistral)
	envString("GOOGLE_API_KEY", &cfg.Providers.Gemini.APIKey)
	loadProvider("GEMINI", &cfg.Providers.Gemini)
}

func loadDimensionsConfig(cfg *Config) {
	envString("DIMENSIONS_USER_AGENT", &cfg.Dimensions.UserAgent)
	envInt("DIMENSIONS_TIMEOUT_SECONDS", &cfg.Dimensions.TimeoutSeconds)
	envFloat("DIMENSIONS_REQUESTS_PER_SEC", &cfg.Dimensions.RequestsPerSec)
	envInt("DIMENSIONS_CACHE_TTL_HOURS", &cfg.Dimensions.CacheTTLHours)
	envString("WIKIDATA_SPARQL_ENDPOINT", &cfg.Dimensions.SPARQLEndpoint)
	envBool("ALLOW_PRIVATE_URLS", &cfg.Dimensions.AllowPrivate)
}

// loadLoggingConfig loads logging configuration from environment variables
func loadLoggingConfig(cfg *Config) {
	envString("LOG_LEVEL", &cfg.Logging.Level)
	envBool("LOG_DEVELOPMENT", &cfg.Logging.Development)
	envBool("LOG_REQUESTS", &cfg.Logging.LogRequests)
}

func loadSentryConfig(cfg *Config) {
	envString("SENTRY_DSN", &cfg.Sentry.DSN)
	envString("SENTRY_ENVIRONMENT", &cfg.Sentry.Environment)
	envFloat("SENTRY_TRACES_SAMPLE_RATE", &cfg.Sentry.TracesSampleRate)
}

func loadRateLimitConfig(cfg *Config) {
	envInt("RATE_LIMIT_PER_MINUTE", &cfg.RateLimit.RequestsPerMinute)
	envInt("RATE_LIMIT_BURST", &cfg.RateLimit.Burst)
}

func loadGeneratorConfig(cfg *Config) {
	envInt("GENERATOR_MAX_SIZE_MM", &cfg.Generator.MaxSizeMM)
	envInt("GENERATOR_MAX_SLOTS", &cfg.Generator.MaxSlots)
	envInt("GENERATOR_MAX_COMPARTMENTS", &cfg.Generator.MaxCompartments)
	envInt("GENERATOR_PREVIEW_SIZE", &cfg.Generator.PreviewSize)
}
