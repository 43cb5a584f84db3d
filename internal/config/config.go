// Package config provides centralized configuration for the analytics
// pipeline. Configuration is loaded from a JSON file, overridden by
// environment variables, and validated before use; defaults cover every
// field so a bare binary runs without a config file.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	AppName string `json:"app_name" env:"APP_NAME"`
	Version string `json:"version" env:"VERSION"`

	Source    SourceConfig    `json:"source"`
	Cache     CacheConfig     `json:"cache"`
	Cleaner   CleanerConfig   `json:"cleaner"`
	Analytics AnalyticsConfig `json:"analytics"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
}

// SourceConfig configures the remote data source adapter.
type SourceConfig struct {
	PrimaryURL          string `json:"primary_url" env:"SOURCE_PRIMARY_URL"`
	BackupURL           string `json:"backup_url" env:"SOURCE_BACKUP_URL"`
	Timeout             string `json:"timeout" env:"SOURCE_TIMEOUT"`
	RequestsPerSecond   int    `json:"requests_per_second" env:"SOURCE_RATE_LIMIT"`
	RetryAttempts       int    `json:"retry_attempts" env:"SOURCE_RETRY_ATTEMPTS"`
	FallbackToSynthetic bool   `json:"fallback_to_synthetic" env:"SOURCE_FALLBACK_SYNTHETIC"`
}

// CacheConfig configures the disk cache sitting in front of the source.
type CacheConfig struct {
	Enabled bool   `json:"enabled" env:"CACHE_ENABLED"`
	Dir     string `json:"dir" env:"CACHE_DIR"`
	TTL     string `json:"ttl" env:"CACHE_TTL"`
}

// CleanerConfig configures the cleaning pipeline thresholds.
type CleanerConfig struct {
	MaxMissingFraction       float64 `json:"max_missing_fraction" env:"MAX_MISSING_FRACTION"`
	LowMissingThreshold      float64 `json:"low_missing_threshold" env:"LOW_MISSING_THRESHOLD"`
	CategoricalFillThreshold float64 `json:"categorical_fill_threshold" env:"CATEGORICAL_FILL_THRESHOLD"`
	Interpolation            string  `json:"interpolation" env:"INTERPOLATION"`
}

// AnalyticsConfig configures default analytics parameters.
type AnalyticsConfig struct {
	TrendWindow         int     `json:"trend_window" env:"TREND_WINDOW"`
	TrendThreshold      float64 `json:"trend_threshold" env:"TREND_THRESHOLD"`
	AnomalyStdThreshold float64 `json:"anomaly_std_threshold" env:"ANOMALY_STD_THRESHOLD"`
	PeakProminence      float64 `json:"peak_prominence" env:"PEAK_PROMINENCE"`
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Type string `json:"type" env:"STORAGE_TYPE"` // "duckdb", "memory"
	Path string `json:"path" env:"STORAGE_PATH"` // DuckDB file path or ":memory:"
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"` // json, text
	Output     string `json:"output" env:"LOG_OUTPUT"` // stdout, stderr, file
	FilePath   string `json:"file_path" env:"LOG_FILE_PATH"`
	MaxSize    int    `json:"max_size" env:"LOG_MAX_SIZE"` // MB
	MaxBackups int    `json:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAge     int    `json:"max_age" env:"LOG_MAX_AGE"` // days
	Compress   bool   `json:"compress" env:"LOG_COMPRESS"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "covid-analytics",
		Version: "1.0.0",
		Source: SourceConfig{
			PrimaryURL:          "https://covid.ourworldindata.org/data/owid-covid-data.csv",
			BackupURL:           "https://raw.githubusercontent.com/owid/covid-19-data/master/public/data/owid-covid-data.csv",
			Timeout:             "30s",
			RequestsPerSecond:   10,
			RetryAttempts:       3,
			FallbackToSynthetic: false,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "data/cache",
			TTL:     "24h",
		},
		Cleaner: CleanerConfig{
			MaxMissingFraction:       0.5,
			LowMissingThreshold:      0.05,
			CategoricalFillThreshold: 0.10,
			Interpolation:            "linear",
		},
		Analytics: AnalyticsConfig{
			TrendWindow:         7,
			TrendThreshold:      0.1,
			AnomalyStdThreshold: 3.0,
			PeakProminence:      0.2,
		},
		Storage: StorageConfig{
			Type: "memory",
			Path: ":memory:",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
	}
}

// Manager handles configuration loading and validation.
type Manager struct {
	configPath string
	logger     *slog.Logger
	config     *AppConfig
}

// NewManager creates a configuration manager. configPath may be empty to
// load defaults plus environment only.
func NewManager(configPath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{configPath: configPath, logger: logger}
}

// Load loads configuration with priority: environment variables over the
// configuration file over defaults.
func (m *Manager) Load() (*AppConfig, error) {
	config := DefaultConfig()

	if m.configPath != "" {
		if err := m.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}
	m.loadFromEnv(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	m.config = config
	m.logger.Info("configuration loaded",
		"config_path", m.configPath,
		"storage_type", config.Storage.Type,
		"cache_enabled", config.Cache.Enabled,
		"log_level", config.Logging.Level)
	return config, nil
}

func (m *Manager) loadFromFile(config *AppConfig) error {
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.logger.Debug("config file does not exist, using defaults", "path", m.configPath)
		return nil
	}
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", m.configPath, err)
	}
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", m.configPath, err)
	}
	return nil
}

// envPrefix namespaces every environment override.
const envPrefix = "COVID_"

func (m *Manager) loadFromEnv(config *AppConfig) {
	setString := func(key string, dst *string) {
		if val := os.Getenv(envPrefix + key); val != "" {
			*dst = val
		}
	}
	setInt := func(key string, dst *int) {
		if val := os.Getenv(envPrefix + key); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if val := os.Getenv(envPrefix + key); val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				*dst = f
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if val := os.Getenv(envPrefix + key); val != "" {
			*dst = val == "true"
		}
	}

	setString("APP_NAME", &config.AppName)
	setString("VERSION", &config.Version)

	setString("SOURCE_PRIMARY_URL", &config.Source.PrimaryURL)
	setString("SOURCE_BACKUP_URL", &config.Source.BackupURL)
	setString("SOURCE_TIMEOUT", &config.Source.Timeout)
	setInt("SOURCE_RATE_LIMIT", &config.Source.RequestsPerSecond)
	setInt("SOURCE_RETRY_ATTEMPTS", &config.Source.RetryAttempts)
	setBool("SOURCE_FALLBACK_SYNTHETIC", &config.Source.FallbackToSynthetic)

	setBool("CACHE_ENABLED", &config.Cache.Enabled)
	setString("CACHE_DIR", &config.Cache.Dir)
	setString("CACHE_TTL", &config.Cache.TTL)

	setFloat("MAX_MISSING_FRACTION", &config.Cleaner.MaxMissingFraction)
	setFloat("LOW_MISSING_THRESHOLD", &config.Cleaner.LowMissingThreshold)
	setFloat("CATEGORICAL_FILL_THRESHOLD", &config.Cleaner.CategoricalFillThreshold)
	setString("INTERPOLATION", &config.Cleaner.Interpolation)

	setInt("TREND_WINDOW", &config.Analytics.TrendWindow)
	setFloat("TREND_THRESHOLD", &config.Analytics.TrendThreshold)
	setFloat("ANOMALY_STD_THRESHOLD", &config.Analytics.AnomalyStdThreshold)
	setFloat("PEAK_PROMINENCE", &config.Analytics.PeakProminence)

	setString("STORAGE_TYPE", &config.Storage.Type)
	setString("STORAGE_PATH", &config.Storage.Path)

	setString("LOG_LEVEL", &config.Logging.Level)
	setString("LOG_FORMAT", &config.Logging.Format)
	setString("LOG_OUTPUT", &config.Logging.Output)
	setString("LOG_FILE_PATH", &config.Logging.FilePath)
}

// Validate checks the configuration for consistency.
func Validate(config *AppConfig) error {
	var problems []string

	if config.Source.PrimaryURL == "" {
		problems = append(problems, "source.primary_url is required")
	}
	if config.Source.RequestsPerSecond <= 0 {
		problems = append(problems, "source.requests_per_second must be greater than 0")
	}
	if _, err := time.ParseDuration(config.Source.Timeout); err != nil {
		problems = append(problems, fmt.Sprintf("source.timeout is not a valid duration: %v", err))
	}
	if config.Cache.Enabled {
		if config.Cache.Dir == "" {
			problems = append(problems, "cache.dir is required when cache is enabled")
		}
		if _, err := time.ParseDuration(config.Cache.TTL); err != nil {
			problems = append(problems, fmt.Sprintf("cache.ttl is not a valid duration: %v", err))
		}
	}

	c := config.Cleaner
	if c.MaxMissingFraction < 0 || c.MaxMissingFraction > 1 {
		problems = append(problems, "cleaner.max_missing_fraction must be in [0, 1]")
	}
	if c.LowMissingThreshold < 0 || c.LowMissingThreshold > 1 {
		problems = append(problems, "cleaner.low_missing_threshold must be in [0, 1]")
	}
	if c.CategoricalFillThreshold < 0 || c.CategoricalFillThreshold > 1 {
		problems = append(problems, "cleaner.categorical_fill_threshold must be in [0, 1]")
	}
	if c.Interpolation != "linear" {
		problems = append(problems, fmt.Sprintf("cleaner.interpolation %q is not supported (linear only)", c.Interpolation))
	}

	a := config.Analytics
	if a.TrendWindow <= 0 {
		problems = append(problems, "analytics.trend_window must be greater than 0")
	}
	if a.TrendThreshold <= 0 {
		problems = append(problems, "analytics.trend_threshold must be greater than 0")
	}
	if a.AnomalyStdThreshold <= 0 {
		problems = append(problems, "analytics.anomaly_std_threshold must be greater than 0")
	}

	switch config.Storage.Type {
	case "memory", "duckdb":
	default:
		problems = append(problems, fmt.Sprintf("storage.type %q is not supported", config.Storage.Type))
	}
	if config.Storage.Type == "duckdb" && config.Storage.Path == "" {
		problems = append(problems, "storage.path is required for DuckDB storage")
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not valid", config.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %v", problems)
	}
	return nil
}

// SourceTimeout returns the parsed source timeout.
func (c *SourceConfig) SourceTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CacheTTL returns the parsed cache TTL.
func (c *CacheConfig) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
