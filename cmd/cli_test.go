package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/store"
)

const cliRules = `
rules:
  - role: dispatch
    metric: regulation_duration
    base: 60
`

func writeWorkbook(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet("Plan1")
	require.NoError(t, err)
	for _, r := range rows {
		row := sh.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestCLI_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "eval.db")
	rulesPath := filepath.Join(dir, "rules.yaml")
	sheetPath := filepath.Join(dir, "maio.xlsx")
	require.NoError(t, os.WriteFile(rulesPath, []byte(cliRules), 0o600))
	writeWorkbook(t, sheetPath, [][]string{
		{"Operador", "Tempo Médio Regulação"},
		{"Maria Souza", "00:01:10"},
		{"Nobody Known", "00:00:30"},
	})

	t.Setenv("STAFFEVAL_STORE_DATABASE_URL", dbPath)
	t.Setenv("STAFFEVAL_EVALUATION_RULES_FILE", rulesPath)
	t.Setenv("STAFFEVAL_LOG_LEVEL", "error")

	require.NoError(t, execute(t, "migrate"))
	require.NoError(t, execute(t, "roster", "add", "MARIA SOUZA", "--role", "dispatch", "--id", "c-maria"))
	require.NoError(t, execute(t, "project", "create", "May 2026", "--id", "p-may", "--from", "2026-05-01", "--to", "2026-05-31"))
	require.NoError(t, execute(t, "project", "enroll", "p-may", "c-maria"))
	require.NoError(t, execute(t, "ingest", "p-may", sheetPath, "--quiet"))

	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	ctx := context.Background()
	p, err := st.GetProject(ctx, "p-may")
	require.NoError(t, err)
	s := p.State("c-maria")
	require.NotNil(t, s)
	require.NotNil(t, s.DurationSeconds)
	assert.Equal(t, int64(70), *s.DurationSeconds)
	assert.Equal(t, 7, s.Points)

	runs, err := st.ListRuns(ctx, "p-may", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusDone, runs[0].Status)
	assert.Equal(t, 1, runs[0].Linked)

	require.NoError(t, execute(t, "edit", "p-may", "c-maria", "--regulation", "100"))
	p, err = st.GetProject(ctx, "p-may")
	require.NoError(t, err)
	assert.True(t, p.State("c-maria").ManuallyEdited)
	assert.Equal(t, 1, p.State("c-maria").Points)

	err = execute(t, "ingest", "p-missing", sheetPath)
	require.Error(t, err)
}
