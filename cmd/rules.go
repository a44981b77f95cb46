package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/scorer"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage scoring rules",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <location>",
	Short: "Replace the stored rule set with a rules YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := newFetcher().Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		rules, err := scorer.ParseRules(data)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ReplaceRules(ctx, rules); err != nil {
			return eris.Wrap(err, "rules import")
		}
		zap.L().Info("rules imported", zap.Int("rules", len(rules)))
		if cfg.Evaluation.RulesSource != "store" {
			zap.L().Warn("rules_source is not store; ingestion keeps reading the rules file",
				zap.String("rules_file", cfg.Evaluation.RulesFile))
		}
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective rule set as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rs, err := ruleSource(st).Rules(ctx)
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(ruleFile(rs))
	},
}

func init() {
	rulesCmd.AddCommand(rulesImportCmd)
	rulesCmd.AddCommand(rulesShowCmd)
	rootCmd.AddCommand(rulesCmd)
}

// ruleFile renders a rule set in the rules YAML layout, bands spelled out.
func ruleFile(rs scorer.RuleSet) scorer.RuleFile {
	var f scorer.RuleFile
	for _, r := range rs.Rules() {
		f.Rules = append(f.Rules, scorer.RuleEntry{
			Role:   string(r.Role),
			Metric: string(r.Metric),
			Bands:  append([]model.Band(nil), r.Bands...),
		})
	}
	return f
}
