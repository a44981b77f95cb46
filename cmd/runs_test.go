package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/staff-eval/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)
	runs := []model.IngestionRun{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			SheetType: model.SheetDispatchFleet,
			Status:    model.RunStatusDone,
			Staged:    12,
			Linked:    11,
			Merged:    10,
			Diagnostics: []model.Diagnostic{
				{Kind: model.DiagUnmatched, Row: 4, Subject: "JOHN DOE"},
			},
			StartedAt: now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusRejected,
			Error:     "required column \"Nome\" not found",
			StartedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "SHEET")
	assert.Contains(t, output, "DIAGS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "dispatch_fleet")
	assert.Contains(t, output, "rejected")
	assert.Contains(t, output, "2026-06-01 10:30")
}

func TestRunsStats(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	runs := []model.IngestionRun{
		{
			ID: "1", Status: model.RunStatusDone, StartedAt: now, FinishedAt: now.Add(4 * time.Second),
			Diagnostics: []model.Diagnostic{{Kind: model.DiagUnmatched}, {Kind: model.DiagUnmatched}, {Kind: model.DiagManualEdit}},
		},
		{ID: "2", Status: model.RunStatusDone, StartedAt: now, FinishedAt: now.Add(2 * time.Second)},
		{ID: "3", Status: model.RunStatusRejected, StartedAt: now},
		{ID: "4", Status: model.RunStatusFailed, StartedAt: now},
		{ID: "5", Status: model.RunStatusRunning, StartedAt: now},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Done)
	assert.Equal(t, 1, s.Rejected)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 2, s.Diagnostics[model.DiagUnmatched])
	assert.Equal(t, 1, s.Diagnostics[model.DiagManualEdit])
	assert.InDelta(t, 3.0, s.AvgDurSecs, 0.001)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "unmatched:")
	assert.NotContains(t, output, "ambiguous:")
	assert.Contains(t, output, "Avg duration:")
}

func TestRunsStats_Empty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AvgDurSecs)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	assert.NotContains(t, buf.String(), "Avg duration")
}

func TestFindRun(t *testing.T) {
	runs := []model.IngestionRun{
		{ID: "abc12345-6789-0000-0000-000000000000"},
		{ID: "def12345-6789-0000-0000-000000000000"},
	}

	r := findRun(runs, "def12345")
	require.NotNil(t, r)
	assert.Equal(t, runs[1].ID, r.ID)

	r = findRun(runs, "abc12345-6789-0000-0000-000000000000")
	require.NotNil(t, r)
	assert.Equal(t, runs[0].ID, r.ID)

	assert.Nil(t, findRun(runs, "abc"))
	assert.Nil(t, findRun(runs, "zzz12345"))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
