package scorer

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/staff-eval/internal/model"
)

// RuleSource supplies the rule set an ingestion run scores with.
type RuleSource interface {
	Rules(ctx context.Context) (RuleSet, error)
}

// RuleEntry is one entry of a rules YAML file. Exactly one of Base and Bands
// is set: Base expands to TieredBands, Bands is used as written.
type RuleEntry struct {
	Role   string       `yaml:"role"`
	Metric string       `yaml:"metric"`
	Base   *int64       `yaml:"base,omitempty"`
	Bands  []model.Band `yaml:"bands,omitempty"`
}

// RuleFile is the document layout of a rules YAML file.
type RuleFile struct {
	Rules []RuleEntry `yaml:"rules"`
}

// Rule converts the entry into a model.Rule.
func (s RuleEntry) Rule() (model.Rule, error) {
	role, err := model.ParseRole(s.Role)
	if err != nil {
		return model.Rule{}, eris.Wrap(err, "scorer: rule role")
	}
	metric, ok := model.ParseMetric(s.Metric)
	if !ok {
		return model.Rule{}, eris.Errorf("scorer: unknown metric %q", s.Metric)
	}

	switch {
	case s.Base != nil && len(s.Bands) > 0:
		return model.Rule{}, eris.Errorf("scorer: rule %s/%s sets both base and bands", role, metric)
	case s.Base != nil:
		return model.Rule{Role: role, Metric: metric, Bands: TieredBands(*s.Base)}, nil
	case len(s.Bands) > 0:
		return model.Rule{Role: role, Metric: metric, Bands: s.Bands}, nil
	}
	return model.Rule{}, eris.Errorf("scorer: rule %s/%s has neither base nor bands", role, metric)
}

// ParseRules decodes a rules YAML document and validates it.
func ParseRules(data []byte) ([]model.Rule, error) {
	var f RuleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "scorer: decode rules yaml")
	}

	rules := make([]model.Rule, 0, len(f.Rules))
	for _, entry := range f.Rules {
		r, err := entry.Rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := Validate(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// FileSource reads rules from a YAML file on every call so edits take effect
// on the next run.
type FileSource struct {
	Path string
}

// Rules implements RuleSource.
func (f FileSource) Rules(_ context.Context) (RuleSet, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: read rules file %s", f.Path)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: parse rules file %s", f.Path)
	}
	return NewRuleSet(rules)
}

// RuleLister is the part of the store StoreSource needs.
type RuleLister interface {
	ListRules(ctx context.Context) ([]model.Rule, error)
}

// StoreSource reads rules persisted by `rules import`.
type StoreSource struct {
	Store RuleLister
}

// Rules implements RuleSource.
func (s StoreSource) Rules(ctx context.Context) (RuleSet, error) {
	rules, err := s.Store.ListRules(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: list stored rules")
	}
	return NewRuleSet(rules)
}

// Static is a fixed RuleSource.
type Static RuleSet

// Rules implements RuleSource.
func (s Static) Rules(context.Context) (RuleSet, error) {
	return RuleSet(s), nil
}
