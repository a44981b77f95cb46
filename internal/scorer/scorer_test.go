package scorer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/staff-eval/internal/model"
)

func ptrInt64(v int64) *int64 { return &v }

func testRules(t *testing.T) RuleSet {
	t.Helper()
	rs, err := NewRuleSet([]model.Rule{
		{Role: model.RoleDispatch, Metric: model.MetricRegulation, Bands: TieredBands(60)},
		{Role: model.RoleDispatch, Metric: model.MetricRemoved, Bands: []model.Band{{Max: 5, Points: 5}, {Max: 10, Points: 2}}},
		{Role: model.RoleDispatch, Metric: model.MetricPause, Bands: TieredBands(3600)},
		{Role: model.RoleFleet, Metric: model.MetricRegulation, Bands: TieredBands(90)},
		{Role: model.RoleFleet, Metric: model.MetricRemoved, Bands: []model.Band{{Max: 5, Points: 5}}},
		{Role: model.RoleFleet, Metric: model.MetricPause, Bands: TieredBands(3600)},
		{Role: model.RolePhysician, Metric: model.MetricRegulation, Bands: TieredBands(120)},
		{Role: model.RolePhysician, Metric: model.MetricCritical, Bands: TieredBands(300)},
	})
	require.NoError(t, err)
	return rs
}

func TestEvaluate_TieredBase60(t *testing.T) {
	bands := TieredBands(60)
	tests := []struct {
		v    int64
		want int
	}{
		{0, 10},
		{60, 10},
		{61, 7},
		{70, 7},
		{75, 7},
		{90, 4},
		{100, 1},
		{105, 1},
		{106, 0},
		{120, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Evaluate(bands, tt.v), "v=%d", tt.v)
	}
}

func TestEvaluate_PhysicianRemovedDefault(t *testing.T) {
	bands, ok := DefaultBands(model.RolePhysician, model.MetricRemoved)
	require.True(t, ok)

	tests := []struct {
		v    int64
		want int
	}{
		{0, 6}, {20, 6}, {21, 4}, {30, 4}, {45, 2}, {46, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Evaluate(bands, tt.v), "v=%d", tt.v)
	}

	_, ok = DefaultBands(model.RoleDispatch, model.MetricRemoved)
	assert.False(t, ok)
}

func TestScore_Dispatch(t *testing.T) {
	rs := testRules(t)
	res := Score(model.RoleDispatch, model.PhysicianNone, model.Metrics{
		DurationSeconds:     ptrInt64(70),
		RemovedCount:        ptrInt64(3),
		MonthlyPauseSeconds: ptrInt64(3600),
	}, rs)

	assert.Equal(t, 7+5+10, res.Points)
	assert.Equal(t, map[model.Metric]int{
		model.MetricRegulation: 7,
		model.MetricRemoved:    5,
		model.MetricPause:      10,
	}, res.Components)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, Hash(rs), res.Params.RulesHash)
	assert.Equal(t, TieredBands(60), res.Params.Bands[model.MetricRegulation])
}

func TestScore_MissingMetric(t *testing.T) {
	res := Score(model.RoleDispatch, "", model.Metrics{
		DurationSeconds: ptrInt64(70),
	}, testRules(t))

	assert.Equal(t, 7, res.Points)
	assert.Equal(t, 0, res.Components[model.MetricRemoved])
	assert.Equal(t, []string{
		"removed_count: not measured",
		"monthly_pause: not measured",
	}, res.Diagnostics)
}

func TestScore_MissingRule(t *testing.T) {
	res := Score(model.RoleDispatch, "", model.Metrics{
		DurationSeconds: ptrInt64(70),
	}, RuleSet{})

	assert.Zero(t, res.Points)
	assert.Len(t, res.Diagnostics, 3)
	assert.Contains(t, res.Diagnostics[0], "no rule configured for dispatch")
}

func TestScore_FleetExitOnlyWhenConfigured(t *testing.T) {
	rs := testRules(t)
	ms := model.Metrics{
		DurationSeconds:     ptrInt64(90),
		RemovedCount:        ptrInt64(1),
		MonthlyPauseSeconds: ptrInt64(3000),
		ExitDurationSeconds: ptrInt64(30),
	}

	res := Score(model.RoleFleet, "", ms, rs)
	assert.Equal(t, 10+5+10, res.Points)
	assert.NotContains(t, res.Components, model.MetricExit)
	assert.Empty(t, res.Diagnostics)

	rs[RuleKey{Role: model.RoleFleet, Metric: model.MetricExit}] = []model.Band{{Max: 60, Points: 3}}
	res = Score(model.RoleFleet, "", ms, rs)
	assert.Equal(t, 10+5+10+3, res.Points)
	assert.Equal(t, 3, res.Components[model.MetricExit])
}

func TestScore_Physician(t *testing.T) {
	rs := testRules(t)
	ms := model.Metrics{
		DurationSeconds:         ptrInt64(120),
		CriticalDurationSeconds: ptrInt64(320),
		RemovedCount:            ptrInt64(25),
	}

	regulator := Score(model.RolePhysician, model.PhysicianRegulator, ms, rs)
	assert.Equal(t, 10+4, regulator.Points, "critical duration is ignored for regulators")
	assert.NotContains(t, regulator.Components, model.MetricCritical)

	lead := Score(model.RolePhysician, model.PhysicianLead, ms, rs)
	assert.Equal(t, 10+4+4, lead.Points)
	assert.Equal(t, physicianRemovedBands, lead.Params.Bands[model.MetricRemoved])
}

func TestScore_NonPhysicianIgnoresSubRole(t *testing.T) {
	rs := testRules(t)
	res := Score(model.RoleDispatch, model.PhysicianLead, model.Metrics{
		CriticalDurationSeconds: ptrInt64(1),
	}, rs)
	assert.NotContains(t, res.Components, model.MetricCritical)
}

func TestApply(t *testing.T) {
	s := model.CollaboratorState{
		CollaboratorID: "c1",
		Role:           model.RoleDispatch,
		PhysicianRole:  model.PhysicianNone,
		Metrics:        model.Metrics{DurationSeconds: ptrInt64(70)},
	}
	Apply(&s, testRules(t))
	assert.Equal(t, 7, s.Points)
	assert.NotEmpty(t, s.Params.RulesHash)
	assert.Equal(t, int64(70), *s.DurationSeconds)
}

func TestApplicable(t *testing.T) {
	assert.Equal(t, []model.Metric{model.MetricRegulation, model.MetricRemoved, model.MetricPause},
		Applicable(model.RoleDispatch, model.PhysicianLead))
	assert.Equal(t, []model.Metric{model.MetricRegulation, model.MetricRemoved, model.MetricCritical},
		Applicable(model.RolePhysician, model.PhysicianLead))
	assert.Nil(t, Applicable("nurse", ""))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    model.Rule
		wantErr string
	}{
		{"ok", model.Rule{Role: model.RoleFleet, Metric: model.MetricExit, Bands: TieredBands(10)}, ""},
		{"unknown role", model.Rule{Role: "nurse", Metric: model.MetricPause, Bands: TieredBands(10)}, "unknown role"},
		{"shift count", model.Rule{Role: model.RoleFleet, Metric: model.MetricShifts, Bands: TieredBands(10)}, "not scorable"},
		{"physician critical", model.Rule{Role: model.RolePhysician, Metric: model.MetricCritical, Bands: TieredBands(10)}, ""},
		{"physician pause", model.Rule{Role: model.RolePhysician, Metric: model.MetricPause, Bands: TieredBands(3600)}, "not scored for this role"},
		{"dispatch critical", model.Rule{Role: model.RoleDispatch, Metric: model.MetricCritical, Bands: TieredBands(60)}, "not scored for this role"},
		{"dispatch exit", model.Rule{Role: model.RoleDispatch, Metric: model.MetricExit, Bands: TieredBands(60)}, "not scored for this role"},
		{"no bands", model.Rule{Role: model.RoleFleet, Metric: model.MetricPause}, "no bands"},
		{"descending", model.Rule{Role: model.RoleFleet, Metric: model.MetricPause, Bands: []model.Band{{Max: 10, Points: 1}, {Max: 5, Points: 0}}}, "greater than band 0"},
		{"negative points", model.Rule{Role: model.RoleFleet, Metric: model.MetricPause, Bands: []model.Band{{Max: 10, Points: -1}}}, "points must be >= 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]model.Rule{tt.rule})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	dup := model.Rule{Role: model.RoleFleet, Metric: model.MetricPause, Bands: TieredBands(1)}
	err := Validate([]model.Rule{dup, dup})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule")
}

// Every pair Validate accepts must be read by Score for some sub-role.
func TestValidate_AcceptedPairsAreScored(t *testing.T) {
	for _, role := range []model.Role{model.RoleDispatch, model.RoleFleet, model.RolePhysician} {
		for metric := range scorable {
			rule := model.Rule{Role: role, Metric: metric, Bands: TieredBands(100)}
			if Validate([]model.Rule{rule}) != nil {
				continue
			}
			rs := RuleSet{RuleKey{Role: role, Metric: metric}: rule.Bands}
			var ms model.Metrics
			ms.Set(metric, ptrInt64(1))
			res := Score(role, model.PhysicianLead, ms, rs)
			assert.Contains(t, res.Params.Bands, metric, "%s/%s accepted but never scored", role, metric)
			assert.Positive(t, res.Points, "%s/%s", role, metric)
		}
	}
}

func TestHash(t *testing.T) {
	a := testRules(t)
	b := testRules(t)
	assert.Len(t, Hash(a), 32)
	assert.Equal(t, Hash(a), Hash(b))

	b[RuleKey{Role: model.RoleFleet, Metric: model.MetricExit}] = TieredBands(1)
	assert.NotEqual(t, Hash(a), Hash(b))
}

const rulesYAML = `
rules:
  - role: dispatch
    metric: regulation_duration
    base: 60
  - role: physician
    metric: removed_count
    bands:
      - {max: 10, points: 8}
      - {max: 20, points: 3}
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(rulesYAML))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, TieredBands(60), rules[0].Bands)
	assert.Equal(t, []model.Band{{Max: 10, Points: 8}, {Max: 20, Points: 3}}, rules[1].Bands)
}

func TestParseRules_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "rules: [:"},
		{"unknown metric", "rules:\n  - {role: dispatch, metric: speed, base: 1}\n"},
		{"unknown role", "rules:\n  - {role: nurse, metric: monthly_pause, base: 1}\n"},
		{"both", "rules:\n  - {role: dispatch, metric: monthly_pause, base: 1, bands: [{max: 1, points: 1}]}\n"},
		{"neither", "rules:\n  - {role: dispatch, metric: monthly_pause}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o600))

	rs, err := FileSource{Path: path}.Rules(context.Background())
	require.NoError(t, err)
	bands, ok := rs.Lookup(model.RoleDispatch, model.MetricRegulation)
	require.True(t, ok)
	assert.Equal(t, TieredBands(60), bands)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}.Rules(context.Background())
	assert.Error(t, err)
}

type fakeLister struct {
	rules []model.Rule
	err   error
}

func (f fakeLister) ListRules(context.Context) ([]model.Rule, error) { return f.rules, f.err }

func TestStoreSource(t *testing.T) {
	rs, err := StoreSource{Store: fakeLister{rules: []model.Rule{
		{Role: model.RoleFleet, Metric: model.MetricPause, Bands: TieredBands(3600)},
	}}}.Rules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs, 1)

	_, err = StoreSource{Store: fakeLister{rules: []model.Rule{
		{Role: model.RoleFleet, Metric: model.MetricPause},
	}}}.Rules(context.Background())
	assert.Error(t, err)
}
