package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/staff-eval/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect ingestion run history",
	Long:  "Commands for listing, viewing, and summarizing the ingestion runs of a project.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List ingestion runs, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := newService(st).Runs(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <project-id> <run-id>",
	Short: "Show full details of a run, diagnostics included",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := newService(st).Runs(ctx, args[0], maxRunsScan)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		run := findRun(runs, args[1])
		if run == nil {
			return eris.Errorf("runs show: no run %s in project %s", args[1], args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats <project-id>",
	Short: "Show aggregate run statistics for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := newService(st).Runs(ctx, args[0], maxRunsScan)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// maxRunsScan bounds the history read by runs show and runs stats.
const maxRunsScan = 10000

// findRun matches a full run ID or the 8-character prefix shown by runs list.
func findRun(runs []model.IngestionRun, id string) *model.IngestionRun {
	for i := range runs {
		if runs[i].ID == id || (len(id) >= 8 && truncateID(runs[i].ID) == id) {
			return &runs[i]
		}
	}
	return nil
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total       int
	Done        int
	Rejected    int
	Failed      int
	Running     int
	Diagnostics map[model.DiagnosticKind]int
	AvgDurSecs  float64
}

func computeRunStats(runs []model.IngestionRun) runStats {
	s := runStats{Total: len(runs), Diagnostics: make(map[model.DiagnosticKind]int)}

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusDone:
			s.Done++
			totalDur += r.FinishedAt.Sub(r.StartedAt)
			durCount++
		case model.RunStatusRejected:
			s.Rejected++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
		for _, d := range r.Diagnostics {
			s.Diagnostics[d.Kind]++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.IngestionRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSHEET\tSTATUS\tSTAGED\tLINKED\tMERGED\tDIAGS\tSTARTED")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t------\t------\t------\t-----\t-------")

	for _, r := range runs {
		sheet := string(r.SheetType)
		if sheet == "" {
			sheet = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			sheet,
			r.Status,
			r.Staged,
			r.Linked,
			r.Merged,
			len(r.Diagnostics),
			r.StartedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Done:\t%d\n", s.Done)
	_, _ = fmt.Fprintf(w, "Rejected:\t%d\n", s.Rejected)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	if s.Running > 0 {
		_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	}
	for _, kind := range diagKinds {
		if n := s.Diagnostics[kind]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", kind, n)
		}
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

var diagKinds = []model.DiagnosticKind{
	model.DiagSkippedRow,
	model.DiagUnmatched,
	model.DiagAmbiguous,
	model.DiagManualEdit,
	model.DiagNotEnrolled,
	model.DiagLookupFallback,
	model.DiagScoring,
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
