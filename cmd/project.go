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
	"go.uber.org/zap"

	"github.com/sells-group/staff-eval/internal/model"
)

const dateLayout = "2006-01-02"

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage evaluation projects",
}

// -- project create --

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an evaluation project for a period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		start, end, err := parsePeriod(from, to)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		id, _ := cmd.Flags().GetString("id")
		p := &model.Project{ID: id, Name: args[0], PeriodStart: start, PeriodEnd: end}
		if err := st.CreateProject(ctx, p); err != nil {
			return eris.Wrap(err, "project create")
		}
		fmt.Println(p.ID)
		return nil
	},
}

// -- project show --

var projectShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project and its collaborator states",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetProject(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "project show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		}
		formatStates(os.Stdout, p.States)
		return nil
	},
}

// -- project list --

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation projects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ps, err := st.ListProjects(ctx)
		if err != nil {
			return eris.Wrap(err, "project list")
		}
		if len(ps) == 0 {
			fmt.Fprintln(os.Stderr, "No projects found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tNAME\tFROM\tTO\tVERSION")
		_, _ = fmt.Fprintln(w, "--\t----\t----\t--\t-------")
		for _, p := range ps {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
				p.ID, p.Name, p.PeriodStart.Format(dateLayout), p.PeriodEnd.Format(dateLayout), p.Version)
		}
		return w.Flush()
	},
}

// -- project enroll --

var projectEnrollCmd = &cobra.Command{
	Use:   "enroll <project-id> <collaborator-id>...",
	Short: "Enroll roster collaborators in a project",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := newService(st)
		for _, id := range args[1:] {
			if _, err := svc.Enroll(ctx, args[0], id); err != nil {
				return eris.Wrapf(err, "enroll %s", id)
			}
		}
		zap.L().Info("enrollment complete", zap.String("project_id", args[0]), zap.Int("collaborators", len(args)-1))
		return nil
	},
}

// -- project rescore --

var projectRescoreCmd = &cobra.Command{
	Use:   "rescore <project-id>",
	Short: "Recompute points with the current rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := newService(st).Rescore(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Rescored %d states.\n", n)
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().String("from", "", "period start, YYYY-MM-DD (required)")
	projectCreateCmd.Flags().String("to", "", "period end, YYYY-MM-DD (required)")
	_ = projectCreateCmd.MarkFlagRequired("from")
	projectCreateCmd.Flags().String("id", "", "project id (generated when empty)")
	_ = projectCreateCmd.MarkFlagRequired("to")

	projectShowCmd.Flags().Bool("json", false, "print the full project as JSON")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectEnrollCmd)
	projectCmd.AddCommand(projectRescoreCmd)
	rootCmd.AddCommand(projectCmd)
}

func parsePeriod(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "invalid --from %q", from)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "invalid --to %q", to)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, eris.Errorf("period ends (%s) before it starts (%s)", to, from)
	}
	return start, end, nil
}

// formatStates writes one line per collaborator state. Unmeasured metrics
// print as "-".
func formatStates(out io.Writer, states []model.CollaboratorState) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COLLABORATOR\tROLE\tSUB_ROLE\tREGULATION\tCRITICAL\tREMOVED\tPAUSE\tEXIT\tSHIFTS\tPOINTS\tMANUAL")
	_, _ = fmt.Fprintln(w, "------------\t----\t--------\t----------\t--------\t-------\t-----\t----\t------\t------\t------")
	for _, s := range states {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%t\n",
			s.CollaboratorID, s.Role, s.PhysicianRole,
			fmtSeconds(s.DurationSeconds), fmtSeconds(s.CriticalDurationSeconds),
			fmtCount(s.RemovedCount), fmtSeconds(s.MonthlyPauseSeconds),
			fmtSeconds(s.ExitDurationSeconds), fmtCount(s.ShiftCount),
			s.Points, s.ManuallyEdited,
		)
	}
	_ = w.Flush()
}

func fmtSeconds(v *int64) string {
	if v == nil {
		return "-"
	}
	d := *v
	return fmt.Sprintf("%02d:%02d:%02d", d/3600, d%3600/60, d%60)
}

func fmtCount(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
