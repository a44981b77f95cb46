package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"dispatch", RoleDispatch, false},
		{"FLEET", RoleFleet, false},
		{" Physician ", RolePhysician, false},
		{"nurse", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePhysicianRole(t *testing.T) {
	got, err := ParsePhysicianRole("")
	require.NoError(t, err)
	assert.Equal(t, PhysicianNone, got)

	got, err = ParsePhysicianRole("LEAD")
	require.NoError(t, err)
	assert.Equal(t, PhysicianLead, got)

	_, err = ParsePhysicianRole("chief")
	assert.Error(t, err)
}

func TestParseShift(t *testing.T) {
	for in, want := range map[string]Shift{"": Shift12h, "12": Shift12h, "24h": Shift24h, "24H": Shift24h} {
		got, err := ParseShift(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseShift("8h")
	assert.Error(t, err)
}

func TestEffectivePhysicianRole(t *testing.T) {
	c := Collaborator{Role: RoleDispatch, PhysicianRole: PhysicianLead}
	assert.Equal(t, PhysicianNone, c.EffectivePhysicianRole())

	c = Collaborator{Role: RolePhysician, PhysicianRole: PhysicianLead}
	assert.Equal(t, PhysicianLead, c.EffectivePhysicianRole())

	c = Collaborator{Role: RolePhysician}
	assert.Equal(t, PhysicianNone, c.EffectivePhysicianRole())
}

func TestMetrics_SetCopiesValue(t *testing.T) {
	var ms Metrics
	v := int64(70)
	ms.Set(MetricRegulation, &v)
	v = 90
	require.NotNil(t, ms.DurationSeconds)
	assert.Equal(t, int64(70), *ms.DurationSeconds)
}

func TestMetrics_Overlay(t *testing.T) {
	dst := Metrics{DurationSeconds: Int64(100), RemovedCount: Int64(3)}
	dst.Overlay(Metrics{DurationSeconds: Int64(70), MonthlyPauseSeconds: Int64(600)})

	assert.Equal(t, int64(70), *dst.DurationSeconds)
	assert.Equal(t, int64(3), *dst.RemovedCount)
	assert.Equal(t, int64(600), *dst.MonthlyPauseSeconds)
	assert.Nil(t, dst.CriticalDurationSeconds)
}

func TestMetrics_Empty(t *testing.T) {
	assert.True(t, Metrics{}.Empty())
	assert.False(t, Metrics{ShiftCount: Int64(0)}.Empty())
}

func TestParseMetric(t *testing.T) {
	m, ok := ParseMetric("monthly_pause")
	assert.True(t, ok)
	assert.Equal(t, MetricPause, m)

	_, ok = ParseMetric("latency")
	assert.False(t, ok)
}

func TestProject_StateLookup(t *testing.T) {
	p := &Project{}
	assert.Nil(t, p.State("c1"))

	s := p.AddState(NewState(Collaborator{ID: "c2", Role: RoleFleet, Shift: Shift24h}))
	s.Points = 4
	p.AddState(NewState(Collaborator{ID: "c1", Role: RolePhysician, PhysicianRole: PhysicianLead}))

	require.NotNil(t, p.State("c2"))
	assert.Equal(t, 4, p.State("c2").Points)
	assert.Equal(t, PhysicianLead, p.State("c1").PhysicianRole)

	p.SortStates()
	assert.Equal(t, []string{"c1", "c2"}, p.CollaboratorIDs())
}

func TestCollaboratorState_JSONFlattensMetrics(t *testing.T) {
	s := CollaboratorState{CollaboratorID: "c1", Metrics: Metrics{DurationSeconds: Int64(70)}, Points: 7}
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.InDelta(t, 70, raw["duration_seconds"], 0)
	assert.Nil(t, raw["removed_count"])
}

func TestIngestionRun_Count(t *testing.T) {
	var r IngestionRun
	r.Diag(Diagnostic{Kind: DiagUnmatched, Message: "a"})
	r.Diag(Diagnostic{Kind: DiagUnmatched, Message: "b"})
	r.Diag(Diagnostic{Kind: DiagSkippedRow, Message: "c"})

	assert.Equal(t, 2, r.Count(DiagUnmatched))
	assert.Equal(t, 1, r.Count(DiagSkippedRow))
	assert.Equal(t, 0, r.Count(DiagAmbiguous))
	assert.True(t, StagedRow{CollaboratorID: "x"}.Linked())
}
