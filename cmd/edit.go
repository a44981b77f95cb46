package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/reconcile"
	"github.com/sells-group/staff-eval/internal/sheet"
)

// metricFlags maps edit flags to the metric they set. Duration flags accept
// seconds or H:MM:SS.
var metricFlags = []struct {
	flag     string
	metric   model.Metric
	duration bool
	usage    string
}{
	{"regulation", model.MetricRegulation, true, "regulation duration (seconds or HH:MM:SS)"},
	{"critical", model.MetricCritical, true, "critical regulation duration (seconds or HH:MM:SS)"},
	{"pause", model.MetricPause, true, "monthly pause (seconds or HH:MM:SS)"},
	{"exit", model.MetricExit, true, "exit duration (seconds or HH:MM:SS)"},
	{"removed", model.MetricRemoved, false, "removed calls count"},
	{"shifts", model.MetricShifts, false, "shift count"},
}

var editCmd = &cobra.Command{
	Use:   "edit <project-id> <collaborator-id>",
	Short: "Manually edit a collaborator's metrics",
	Long: `Sets or clears metrics on an enrolled collaborator and recomputes points.
Edited states are protected from later ingestion runs until --unlock is used.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		values := make(map[model.Metric]string)
		for _, mf := range metricFlags {
			if cmd.Flags().Changed(mf.flag) {
				v, _ := cmd.Flags().GetString(mf.flag)
				values[mf.metric] = v
			}
		}
		clearList, _ := cmd.Flags().GetStringSlice("clear")
		shift, _ := cmd.Flags().GetString("shift")
		unlock, _ := cmd.Flags().GetBool("unlock")

		edit, err := buildStateEdit(values, clearList, shift, unlock)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		state, err := newService(st).EditState(ctx, args[0], args[1], edit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	},
}

func init() {
	for _, mf := range metricFlags {
		editCmd.Flags().String(mf.flag, "", mf.usage)
	}
	editCmd.Flags().StringSlice("clear", nil, "metrics to reset to unmeasured (e.g. exit_duration,shift_count)")
	editCmd.Flags().String("shift", "", "shift pattern: 12h or 24h")
	editCmd.Flags().Bool("unlock", false, "release the manual-edit lock so ingestion updates the state again")
	rootCmd.AddCommand(editCmd)
}

// buildStateEdit converts flag text into a StateEdit. values holds only the
// flags that were set.
func buildStateEdit(values map[model.Metric]string, clearList []string, shift string, unlock bool) (reconcile.StateEdit, error) {
	var edit reconcile.StateEdit

	for _, mf := range metricFlags {
		raw, ok := values[mf.metric]
		if !ok {
			continue
		}
		var (
			v      int64
			parsed bool
		)
		if mf.duration {
			v, parsed = sheet.ParseDuration(raw)
		} else {
			v, parsed = sheet.ParseCount(raw)
		}
		if !parsed {
			return edit, eris.Errorf("invalid --%s value %q", mf.flag, raw)
		}
		edit.Metrics.Set(mf.metric, &v)
	}

	for _, c := range clearList {
		m, ok := model.ParseMetric(c)
		if !ok {
			return edit, eris.Errorf("invalid --clear metric %q", c)
		}
		edit.Clear = append(edit.Clear, m)
	}

	if shift != "" {
		s, err := model.ParseShift(shift)
		if err != nil {
			return edit, err
		}
		edit.Shift = &s
	}

	if unlock {
		locked := false
		edit.ManuallyEdited = &locked
	}
	return edit, nil
}
