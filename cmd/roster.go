package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/store"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage the collaborator roster",
}

// -- roster add --

var rosterAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a collaborator to the roster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		role, _ := cmd.Flags().GetString("role")
		sub, _ := cmd.Flags().GetString("physician-role")
		shift, _ := cmd.Flags().GetString("shift")
		route, _ := cmd.Flags().GetString("route")
		id, _ := cmd.Flags().GetString("id")

		c, err := newCollaborator(id, args[0], route, role, sub, shift)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.CreateCollaborator(ctx, &c); err != nil {
			return eris.Wrap(err, "roster add")
		}
		fmt.Println(c.ID)
		return nil
	},
}

// -- roster import --

var rosterImportCmd = &cobra.Command{
	Use:   "import <location>",
	Short: "Upsert collaborators from a CSV file (path, http(s) or ftp URL)",
	Long: "The CSV needs a header row with at least name and role. Optional columns: " +
		"id, route_id, physician_role, shift. Rows with an id update that collaborator.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := newFetcher().Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		cs, err := parseRosterCSV(bytes.NewReader(data))
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertCollaborators(ctx, cs)
		if err != nil {
			return eris.Wrap(err, "roster import")
		}
		zap.L().Info("roster import complete", zap.Int64("upserted", n), zap.String("source", args[0]))
		return nil
	},
}

// -- roster list --

var rosterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roster collaborators",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var filter store.CollaboratorFilter
		if role, _ := cmd.Flags().GetString("role"); role != "" {
			r, err := model.ParseRole(role)
			if err != nil {
				return err
			}
			filter.Role = r
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cs, err := st.ListCollaborators(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "roster list")
		}
		if len(cs) == 0 {
			fmt.Fprintln(os.Stderr, "No collaborators found.")
			return nil
		}
		formatCollaborators(os.Stdout, cs)
		return nil
	},
}

// -- roster search --

var rosterSearchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Find collaborators by approximate name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cs, err := st.SearchCollaborators(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "roster search")
		}
		if len(cs) == 0 {
			fmt.Fprintln(os.Stderr, "No collaborators found.")
			return nil
		}
		formatCollaborators(os.Stdout, cs)
		return nil
	},
}

func init() {
	rosterAddCmd.Flags().String("role", "", "dispatch, fleet or physician (required)")
	rosterAddCmd.Flags().String("physician-role", "", "regulator or lead (physicians only)")
	rosterAddCmd.Flags().String("shift", "12h", "12h or 24h")
	rosterAddCmd.Flags().String("route", "", "external call-route id used for counter lookups")
	rosterAddCmd.Flags().String("id", "", "collaborator id (generated when empty)")
	_ = rosterAddCmd.MarkFlagRequired("role")

	rosterListCmd.Flags().String("role", "", "only list this role")
	rosterSearchCmd.Flags().Int("limit", 20, "max number of matches")

	rosterCmd.AddCommand(rosterAddCmd)
	rosterCmd.AddCommand(rosterImportCmd)
	rosterCmd.AddCommand(rosterListCmd)
	rosterCmd.AddCommand(rosterSearchCmd)
	rootCmd.AddCommand(rosterCmd)
}

func newCollaborator(id, name, route, role, sub, shift string) (model.Collaborator, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Collaborator{}, eris.New("roster: name is required")
	}
	r, err := model.ParseRole(role)
	if err != nil {
		return model.Collaborator{}, err
	}
	pr, err := model.ParsePhysicianRole(sub)
	if err != nil {
		return model.Collaborator{}, err
	}
	sh, err := model.ParseShift(shift)
	if err != nil {
		return model.Collaborator{}, err
	}
	return model.Collaborator{
		ID:            strings.TrimSpace(id),
		Name:          name,
		RouteID:       strings.TrimSpace(route),
		Role:          r,
		PhysicianRole: pr,
		Shift:         sh,
	}, nil
}

// parseRosterCSV reads collaborators from CSV with a header row. Column
// names are case-insensitive.
func parseRosterCSV(r io.Reader) ([]model.Collaborator, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, eris.New("roster: empty csv")
	}
	if err != nil {
		return nil, eris.Wrap(err, "roster: read csv header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, req := range []string{"name", "role"} {
		if _, ok := col[req]; !ok {
			return nil, eris.Errorf("roster: csv is missing the %q column", req)
		}
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var out []model.Collaborator
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "roster: read csv line %d", line)
		}
		c, err := newCollaborator(get(rec, "id"), get(rec, "name"), get(rec, "route_id"),
			get(rec, "role"), get(rec, "physician_role"), get(rec, "shift"))
		if err != nil {
			return nil, eris.Wrapf(err, "roster: csv line %d", line)
		}
		out = append(out, c)
	}
	return out, nil
}

// formatCollaborators writes a tabular roster listing to out.
func formatCollaborators(out io.Writer, cs []model.Collaborator) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tROLE\tSUB_ROLE\tSHIFT\tROUTE")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t--------\t-----\t-----")
	for _, c := range cs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Name, c.Role, c.PhysicianRole, c.Shift, c.RouteID)
	}
	_ = w.Flush()
}
