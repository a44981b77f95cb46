package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/staff-eval/internal/fetcher"
	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/sheet"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <project-id> <location>",
	Short: "Import a dispatch/fleet or physician workbook into a project",
	Long: `Reads an .xlsx workbook from a local path, file://, http(s):// or ftp:// URL,
classifies it by its first header, links rows to the roster and merges their
metrics into the project's collaborator states.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		projectID, location := args[0], args[1]

		data, err := newFetcher().Fetch(ctx, location)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := newService(st).Ingest(ctx, projectID, data)
		if run != nil {
			formatRunSummary(os.Stdout, fetcher.Name(location), run)
		}
		if err != nil {
			if rej, ok := sheet.IsRejection(err); ok {
				zap.L().Warn("workbook rejected",
					zap.String("file", location),
					zap.String("reason", string(rej.Reason)),
				)
			}
			return err
		}

		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet && len(run.Diagnostics) > 0 {
			fmt.Println()
			formatDiagnostics(os.Stdout, run.Diagnostics)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolP("quiet", "q", false, "print the run summary without diagnostics")
	rootCmd.AddCommand(ingestCmd)
}

func formatRunSummary(out io.Writer, file string, run *model.IngestionRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "File:\t%s\n", file)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	if run.SheetType != "" {
		_, _ = fmt.Fprintf(w, "Sheet:\t%s\n", run.SheetType)
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	_, _ = fmt.Fprintf(w, "Staged:\t%d\n", run.Staged)
	_, _ = fmt.Fprintf(w, "Linked:\t%d\n", run.Linked)
	_, _ = fmt.Fprintf(w, "Merged:\t%d\n", run.Merged)
	if run.Created > 0 {
		_, _ = fmt.Fprintf(w, "Created:\t%d\n", run.Created)
	}
	if run.SkippedManual > 0 {
		_, _ = fmt.Fprintf(w, "Manual edits kept:\t%d\n", run.SkippedManual)
	}
	_, _ = fmt.Fprintf(w, "Diagnostics:\t%d\n", len(run.Diagnostics))
	_ = w.Flush()
}

func formatDiagnostics(out io.Writer, diags []model.Diagnostic) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROW\tKIND\tSUBJECT\tCOLLABORATOR\tMESSAGE")
	_, _ = fmt.Fprintln(w, "---\t----\t-------\t------------\t-------")
	for _, d := range diags {
		row := "-"
		if d.Row > 0 {
			row = fmt.Sprintf("%d", d.Row)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row, d.Kind, d.Subject, d.CollaboratorID, d.Message)
	}
	_ = w.Flush()
}
