package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"sqlite"`
	SQLitePath   string `envconfig:"SQLITE_PATH" default:"chatsense.db"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	DBMinConns   int32  `envconfig:"NP_DB_MIN_CONNS" default:"1"`
	DBMaxConns   int32  `envconfig:"NP_DB_MAX_CONNS" default:"8"`

	ConfidenceThreshold  float64 `envconfig:"CONFIDENCE_THRESHOLD" default:"0.6"`
	CacheAcceptTranslate float64 `envconfig:"CACHE_ACCEPT_TRANSLATE" default:"0.8"`
	CacheAcceptEmotion   float64 `envconfig:"CACHE_ACCEPT_EMOTION" default:"0.5"`

	CacheTTL            time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	CacheStaleRetention time.Duration `envconfig:"CACHE_STALE_RETENTION" default:"168h"`
	CacheMaxEntries     int           `envconfig:"CACHE_MAX_ENTRIES" default:"500"`

	MinInputLength   int           `envconfig:"MIN_INPUT_LENGTH" default:"2"`
	ProviderTimeout  time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"5s"`
	DebounceWindow   time.Duration `envconfig:"DEBOUNCE_WINDOW" default:"800ms"`
	SerialSpacing    time.Duration `envconfig:"SERIAL_SPACING" default:"100ms"`
	BatchConcurrency int           `envconfig:"BATCH_CONCURRENCY" default:"4"`

	ConnectivityProbeURL string        `envconfig:"CONNECTIVITY_PROBE_URL"`
	ConnectivityProbeTTL time.Duration `envconfig:"CONNECTIVITY_PROBE_TTL" default:"15s"`

	ProvidersFile string `envconfig:"PROVIDERS_FILE"`

	GoogleTranslateAPIKey      string `envconfig:"GOOGLE_TRANSLATE_API_KEY"`
	AzureTranslatorKey         string `envconfig:"AZURE_TRANSLATOR_KEY"`
	AzureTranslatorRegion      string `envconfig:"AZURE_TRANSLATOR_REGION"`
	LibreTranslateURL          string `envconfig:"LIBRETRANSLATE_URL"`
	LibreTranslateAPIKey       string `envconfig:"LIBRETRANSLATE_API_KEY"`
	TranslationEndpoint        string `envconfig:"TRANSLATION_ENDPOINT"`
	TranslationModel           string `envconfig:"TRANSLATION_MODEL"`
	AzureTextAnalyticsKey      string `envconfig:"AZURE_TEXT_ANALYTICS_KEY"`
	AzureTextAnalyticsEndpoint string `envconfig:"AZURE_TEXT_ANALYTICS_ENDPOINT"`
	GoogleCloudAPIKey          string `envconfig:"GOOGLE_CLOUD_API_KEY"`
	OpenAIAPIKey               string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel                string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	HTTPHost string `envconfig:"HTTP_HOST" default:"127.0.0.1"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8090"`

	OTelEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTelEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND=sqlite")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
		if c.DBMinConns < 0 {
			return fmt.Errorf("NP_DB_MIN_CONNS must be >= 0")
		}
		if c.DBMaxConns < 1 {
			return fmt.Errorf("NP_DB_MAX_CONNS must be >= 1")
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("NP_DB_MIN_CONNS (%d) cannot exceed NP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, sqlite, postgres (got %q)", c.StoreBackend)
	}

	for name, v := range map[string]float64{
		"CONFIDENCE_THRESHOLD":   c.ConfidenceThreshold,
		"CACHE_ACCEPT_TRANSLATE": c.CacheAcceptTranslate,
		"CACHE_ACCEPT_EMOTION":   c.CacheAcceptEmotion,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1]", name)
		}
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be > 0")
	}
	if c.CacheStaleRetention < c.CacheTTL {
		return fmt.Errorf("CACHE_STALE_RETENTION (%s) cannot be shorter than CACHE_TTL (%s)", c.CacheStaleRetention, c.CacheTTL)
	}
	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be >= 1")
	}
	if c.MinInputLength < 1 {
		return fmt.Errorf("MIN_INPUT_LENGTH must be >= 1")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be > 0")
	}
	if c.DebounceWindow < 0 {
		return fmt.Errorf("DEBOUNCE_WINDOW must be >= 0")
	}
	if c.SerialSpacing < 0 {
		return fmt.Errorf("SERIAL_SPACING must be >= 0")
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be >= 1")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be within 1-65535")
	}
	return nil
}

// CacheAcceptance returns the minimum confidence for writing a result of the
// given operation to the cache.
func (c *Config) CacheAcceptance(operation string) float64 {
	if c == nil {
		return 1
	}
	if operation == "emotion" {
		return c.CacheAcceptEmotion
	}
	return c.CacheAcceptTranslate
}

func (c *Config) HTTPAddress() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d", strings.TrimSpace(c.HTTPHost), c.HTTPPort)
}
