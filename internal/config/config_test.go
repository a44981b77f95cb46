package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "staff-eval.db", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.InDelta(t, 0.85, cfg.Evaluation.SimilarityThreshold, 0.0001)
	assert.Equal(t, 4, cfg.Evaluation.LinkWorkers)
	assert.Equal(t, "file", cfg.Evaluation.RulesSource)
	assert.Equal(t, "rules.yaml", cfg.Evaluation.RulesFile)
	assert.Empty(t, cfg.CallMetrics.BaseURL)
	assert.Equal(t, 10, cfg.CallMetrics.TimeoutSecs)
	assert.InDelta(t, 5.0, cfg.CallMetrics.RatePerSec, 0.0001)
	assert.Equal(t, 3, cfg.CallMetrics.MaxAttempts)
	assert.Equal(t, 60, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, "1m0s", cfg.Fetch.Timeout().String())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/staff_eval
log:
  level: debug
  format: console
evaluation:
  similarity_threshold: 0.9
  rules_source: store
callmetrics:
  base_url: https://metrics.example.com
  token: abc
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/staff_eval", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.9, cfg.Evaluation.SimilarityThreshold, 0.0001)
	assert.Equal(t, "store", cfg.Evaluation.RulesSource)
	assert.Equal(t, "https://metrics.example.com", cfg.CallMetrics.BaseURL)
	assert.Equal(t, "abc", cfg.CallMetrics.Token)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Evaluation.LinkWorkers)
	assert.Equal(t, "10s", cfg.CallMetrics.Timeout().String())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
evaluation:
  link_workers: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("STAFFEVAL_LOG_LEVEL", "warn")
	t.Setenv("STAFFEVAL_EVALUATION_LINK_WORKERS", "8")
	t.Setenv("STAFFEVAL_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Evaluation.LinkWorkers)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdirTemp(t)
	t.Setenv("STAFFEVAL_STORE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func validConfig() *Config {
	return &Config{
		Store:      StoreConfig{Driver: "sqlite", DatabaseURL: "eval.db"},
		Evaluation: EvaluationConfig{SimilarityThreshold: 0.85, RulesSource: "file", RulesFile: "rules.yaml"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"store source needs no file", func(c *Config) {
			c.Evaluation.RulesSource = "store"
			c.Evaluation.RulesFile = ""
		}, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"missing url", func(c *Config) { c.Store.DatabaseURL = "" }, "store.database_url is required"},
		{"zero threshold", func(c *Config) { c.Evaluation.SimilarityThreshold = 0 }, "similarity_threshold"},
		{"threshold above one", func(c *Config) { c.Evaluation.SimilarityThreshold = 1.2 }, "similarity_threshold"},
		{"unknown source", func(c *Config) { c.Evaluation.RulesSource = "notion" }, "rules_source"},
		{"file source without file", func(c *Config) { c.Evaluation.RulesFile = "" }, "rules_file is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalid(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "info", Format: "xml"}))
}
