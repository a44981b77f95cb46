package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/staff-eval/internal/config"
	"github.com/sells-group/staff-eval/internal/scorer"
)

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	ps, err := st.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "mysql", DatabaseURL: "x"},
	}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestRuleSource(t *testing.T) {
	cfg = &config.Config{
		Evaluation: config.EvaluationConfig{RulesSource: "file", RulesFile: "rules.yaml"},
	}
	assert.Equal(t, scorer.FileSource{Path: "rules.yaml"}, ruleSource(nil))

	cfg.Evaluation.RulesSource = "store"
	assert.IsType(t, scorer.StoreSource{}, ruleSource(nil))
}

func TestMetricsLookup(t *testing.T) {
	cfg = &config.Config{}
	assert.Nil(t, metricsLookup())

	cfg.CallMetrics = config.CallMetricsConfig{
		BaseURL:     "http://counters.local",
		Token:       "t",
		TimeoutSecs: 5,
		RatePerSec:  2,
		MaxAttempts: 2,
	}
	assert.NotNil(t, metricsLookup())
}

func TestParsePeriod(t *testing.T) {
	start, end, err := parsePeriod("2026-05-01", "2026-05-31")
	require.NoError(t, err)
	assert.Equal(t, 1, start.Day())
	assert.Equal(t, 31, end.Day())

	_, _, err = parsePeriod("2026-05-31", "2026-05-01")
	assert.Error(t, err)
	_, _, err = parsePeriod("05/01/2026", "2026-05-31")
	assert.Error(t, err)
}
