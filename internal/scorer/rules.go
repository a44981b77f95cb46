// Package scorer turns measured collaborator metrics into integer points
// using externally configured threshold tables.
package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/staff-eval/internal/model"
)

// Tier offsets above a base threshold and the points each tier earns.
var tiers = []struct {
	offset int64
	points int
}{
	{0, 10},
	{15, 7},
	{30, 4},
	{45, 1},
}

// TieredBands expands a base duration threshold B into the standard tiered
// table: <=B:10, <=B+15:7, <=B+30:4, <=B+45:1, anything longer 0.
func TieredBands(base int64) []model.Band {
	bands := make([]model.Band, 0, len(tiers))
	for _, t := range tiers {
		bands = append(bands, model.Band{Max: base + t.offset, Points: t.points})
	}
	return bands
}

// physicianRemovedBands applies when no removed-count rule is configured for
// physicians: <=20:6, <=30:4, <=45:2, otherwise 0.
var physicianRemovedBands = []model.Band{
	{Max: 20, Points: 6},
	{Max: 30, Points: 4},
	{Max: 45, Points: 2},
}

// DefaultBands returns the documented fallback table for (role, metric), if
// one exists. Only the physician removed-count table has a fallback.
func DefaultBands(role model.Role, metric model.Metric) ([]model.Band, bool) {
	if role == model.RolePhysician && metric == model.MetricRemoved {
		return append([]model.Band(nil), physicianRemovedBands...), true
	}
	return nil, false
}

// scorable are the metrics a rule may be configured for.
var scorable = map[model.Metric]bool{
	model.MetricRegulation: true,
	model.MetricCritical:   true,
	model.MetricRemoved:    true,
	model.MetricPause:      true,
	model.MetricExit:       true,
}

// RuleKey identifies one rule table.
type RuleKey struct {
	Role   model.Role
	Metric model.Metric
}

// RuleSet holds the configured band tables. It is read-only once built.
type RuleSet map[RuleKey][]model.Band

// NewRuleSet validates rules and indexes them.
func NewRuleSet(rules []model.Rule) (RuleSet, error) {
	if err := Validate(rules); err != nil {
		return nil, err
	}
	rs := make(RuleSet, len(rules))
	for _, r := range rules {
		rs[RuleKey{Role: r.Role, Metric: r.Metric}] = append([]model.Band(nil), r.Bands...)
	}
	return rs, nil
}

// Lookup returns the configured table for (role, metric), falling back to
// DefaultBands. The bool is false when neither exists.
func (rs RuleSet) Lookup(role model.Role, metric model.Metric) ([]model.Band, bool) {
	if bands, ok := rs[RuleKey{Role: role, Metric: metric}]; ok {
		return bands, true
	}
	return DefaultBands(role, metric)
}

// Rules returns the configured tables ordered by role then metric.
func (rs RuleSet) Rules() []model.Rule {
	out := make([]model.Rule, 0, len(rs))
	for k, bands := range rs {
		out = append(out, model.Rule{Role: k.Role, Metric: k.Metric, Bands: bands})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

// Validate checks that rule tables are usable: known role and metric, a
// metric the role is actually scored on, no duplicate (role, metric), at
// least one band, strictly ascending non-negative thresholds and
// non-negative points.
func Validate(rules []model.Rule) error {
	var errs []string
	seen := make(map[RuleKey]bool, len(rules))

	for i, r := range rules {
		label := fmt.Sprintf("rule %d (%s/%s)", i, r.Role, r.Metric)
		knownRole := true
		switch r.Role {
		case model.RoleDispatch, model.RoleFleet, model.RolePhysician:
		default:
			knownRole = false
			errs = append(errs, label+": unknown role")
		}
		switch {
		case !scorable[r.Metric]:
			errs = append(errs, label+": metric is not scorable")
		case knownRole && !scoredFor(r.Role, r.Metric):
			errs = append(errs, label+": metric is not scored for this role")
		}
		key := RuleKey{Role: r.Role, Metric: r.Metric}
		if seen[key] {
			errs = append(errs, label+": duplicate rule")
		}
		seen[key] = true

		if len(r.Bands) == 0 {
			errs = append(errs, label+": no bands")
		}
		for j, b := range r.Bands {
			if b.Max < 0 {
				errs = append(errs, fmt.Sprintf("%s: band %d threshold must be >= 0", label, j))
			}
			if b.Points < 0 {
				errs = append(errs, fmt.Sprintf("%s: band %d points must be >= 0", label, j))
			}
			if j > 0 && b.Max <= r.Bands[j-1].Max {
				errs = append(errs, fmt.Sprintf("%s: band %d threshold must be greater than band %d", label, j, j-1))
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: rule validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Hash fingerprints a rule set so a stored score can be traced back to the
// tables that produced it.
func Hash(rs RuleSet) string {
	data, err := json.Marshal(rs.Rules())
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}
