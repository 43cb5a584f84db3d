package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 0.5, cfg.Cleaner.MaxMissingFraction)
	assert.Equal(t, 0.05, cfg.Cleaner.LowMissingThreshold)
	assert.Equal(t, 0.10, cfg.Cleaner.CategoricalFillThreshold)
	assert.Equal(t, "linear", cfg.Cleaner.Interpolation)
	assert.Equal(t, 7, cfg.Analytics.TrendWindow)
	assert.Equal(t, 0.1, cfg.Analytics.TrendThreshold)
	assert.Equal(t, 3.0, cfg.Analytics.AnomalyStdThreshold)
	assert.Equal(t, 30*time.Second, cfg.Source.SourceTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Cache.CacheTTL())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := NewManager("", nil).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Source.PrimaryURL, cfg.Source.PrimaryURL)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "covid.json")
	content := `{
		"cleaner": {"max_missing_fraction": 0.7},
		"storage": {"type": "duckdb", "path": "covid.db"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewManager(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Cleaner.MaxMissingFraction)
	assert.Equal(t, "duckdb", cfg.Storage.Type)
	// Untouched sections keep their defaults.
	assert.Equal(t, "linear", cfg.Cleaner.Interpolation)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "absent.json"), nil).Load()
	assert.NoError(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("COVID_TREND_WINDOW", "14")
	t.Setenv("COVID_STORAGE_TYPE", "memory")
	t.Setenv("COVID_SOURCE_FALLBACK_SYNTHETIC", "true")

	cfg, err := NewManager("", nil).Load()
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Analytics.TrendWindow)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.True(t, cfg.Source.FallbackToSynthetic)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"missing primary url", func(c *AppConfig) { c.Source.PrimaryURL = "" }},
		{"missing fraction out of range", func(c *AppConfig) { c.Cleaner.MaxMissingFraction = 1.5 }},
		{"unsupported interpolation", func(c *AppConfig) { c.Cleaner.Interpolation = "cubic" }},
		{"zero trend window", func(c *AppConfig) { c.Analytics.TrendWindow = 0 }},
		{"unknown storage type", func(c *AppConfig) { c.Storage.Type = "postgres" }},
		{"duckdb without path", func(c *AppConfig) { c.Storage.Type = "duckdb"; c.Storage.Path = "" }},
		{"bad log level", func(c *AppConfig) { c.Logging.Level = "verbose" }},
		{"bad timeout", func(c *AppConfig) { c.Source.Timeout = "soon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
