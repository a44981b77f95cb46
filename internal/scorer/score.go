package scorer

import (
	"fmt"

	"github.com/sells-group/staff-eval/internal/model"
)

// Result is the outcome of scoring one collaborator state.
type Result struct {
	Points      int
	Components  map[model.Metric]int
	Diagnostics []string
	Params      model.ScoringParams
}

type component struct {
	metric model.Metric
	// optional components are scored only when a rule is configured and
	// are silently skipped otherwise.
	optional bool
}

// components returns the metrics that contribute to a role's points.
func components(role model.Role, sub model.PhysicianRole) []component {
	switch role {
	case model.RoleDispatch:
		return []component{
			{metric: model.MetricRegulation},
			{metric: model.MetricRemoved},
			{metric: model.MetricPause},
		}
	case model.RoleFleet:
		return []component{
			{metric: model.MetricRegulation},
			{metric: model.MetricRemoved},
			{metric: model.MetricPause},
			{metric: model.MetricExit, optional: true},
		}
	case model.RolePhysician:
		cs := []component{
			{metric: model.MetricRegulation},
			{metric: model.MetricRemoved},
		}
		if sub == model.PhysicianLead {
			cs = append(cs, component{metric: model.MetricCritical})
		}
		return cs
	}
	return nil
}

// scoredFor reports whether any sub-role of role scores metric.
func scoredFor(role model.Role, metric model.Metric) bool {
	for _, c := range components(role, model.PhysicianLead) {
		if c.metric == metric {
			return true
		}
	}
	return false
}

// Applicable lists the metrics that score for role and sub-role.
func Applicable(role model.Role, sub model.PhysicianRole) []model.Metric {
	cs := components(role, model.EffectivePhysicianRole(role, sub))
	out := make([]model.Metric, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.metric)
	}
	return out
}

// Score computes points for metrics under rules. A missing metric or a
// missing rule contributes 0 and a diagnostic; scoring never fails.
func Score(role model.Role, sub model.PhysicianRole, ms model.Metrics, rules RuleSet) Result {
	sub = model.EffectivePhysicianRole(role, sub)
	res := Result{
		Components: make(map[model.Metric]int),
		Params: model.ScoringParams{
			RulesHash: Hash(rules),
			Bands:     make(map[model.Metric][]model.Band),
		},
	}

	cs := components(role, sub)
	if cs == nil {
		res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("unknown role %q", role))
		return res
	}

	for _, c := range cs {
		bands, ok := rules.Lookup(role, c.metric)
		if !ok {
			if !c.optional {
				res.Components[c.metric] = 0
				res.Diagnostics = append(res.Diagnostics,
					fmt.Sprintf("%s: no rule configured for %s", c.metric, role))
			}
			continue
		}
		res.Params.Bands[c.metric] = bands

		v := ms.Get(c.metric)
		if v == nil {
			res.Components[c.metric] = 0
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("%s: not measured", c.metric))
			continue
		}

		pts := Evaluate(bands, *v)
		res.Components[c.metric] = pts
		res.Points += pts
	}
	return res
}

// Evaluate returns the points of the first band whose threshold is >= v, or
// 0 when v exceeds every band.
func Evaluate(bands []model.Band, v int64) int {
	for _, b := range bands {
		if v <= b.Max {
			return b.Points
		}
	}
	return 0
}

// Apply scores s in place, leaving metrics untouched.
func Apply(s *model.CollaboratorState, rules RuleSet) Result {
	res := Score(s.Role, s.PhysicianRole, s.Metrics, rules)
	s.Points = res.Points
	s.Params = res.Params
	return res
}
