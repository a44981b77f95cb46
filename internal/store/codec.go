package store

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/resolve"
)

// prepareCollaborator assigns an id and fills defaulted fields before a
// write.
func prepareCollaborator(c *model.Collaborator) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.PhysicianRole = c.EffectivePhysicianRole()
	if c.Shift == "" {
		c.Shift = model.Shift12h
	}
}

// nameKey is the normalized form stored alongside a collaborator name for
// approximate search.
func nameKey(name string) string {
	return resolve.NormalizeName(name)
}

func encodeJSON(v any, what string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal %s", what)
	}
	return data, nil
}

func decodeJSON(data []byte, v any, what string) error {
	if len(data) == 0 {
		return nil
	}
	return eris.Wrapf(json.Unmarshal(data, v), "store: unmarshal %s", what)
}

// stateColumns is the column order used to write and read project_states.
var stateColumns = []string{
	"project_id", "collaborator_id", "role", "physician_role", "shift",
	"duration_seconds", "critical_duration_seconds", "removed_count",
	"monthly_pause_seconds", "exit_duration_seconds", "shift_count",
	"points", "manually_edited", "params",
}

func stateArgs(projectID string, s model.CollaboratorState) ([]any, error) {
	params, err := encodeJSON(s.Params, "scoring params")
	if err != nil {
		return nil, err
	}
	return []any{
		projectID, s.CollaboratorID, string(s.Role), string(s.PhysicianRole), string(s.Shift),
		s.DurationSeconds, s.CriticalDurationSeconds, s.RemovedCount,
		s.MonthlyPauseSeconds, s.ExitDurationSeconds, s.ShiftCount,
		s.Points, s.ManuallyEdited, params,
	}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanState reads the columns of stateColumns minus project_id.
func scanState(row scannable) (model.CollaboratorState, error) {
	var (
		s                model.CollaboratorState
		role, sub, shift string
		params           []byte
	)
	err := row.Scan(
		&s.CollaboratorID, &role, &sub, &shift,
		&s.DurationSeconds, &s.CriticalDurationSeconds, &s.RemovedCount,
		&s.MonthlyPauseSeconds, &s.ExitDurationSeconds, &s.ShiftCount,
		&s.Points, &s.ManuallyEdited, &params,
	)
	if err != nil {
		return s, eris.Wrap(err, "store: scan state")
	}
	s.Role = model.Role(role)
	s.PhysicianRole = model.PhysicianRole(sub)
	s.Shift = model.Shift(shift)
	if err := decodeJSON(params, &s.Params, "scoring params"); err != nil {
		return s, err
	}
	return s, nil
}

func scanRun(row scannable) (model.IngestionRun, error) {
	var (
		r                    model.IngestionRun
		sheet, status, phase string
		diags                []byte
	)
	err := row.Scan(
		&r.ID, &r.ProjectID, &sheet, &status, &phase, &r.Error,
		&r.Staged, &r.Linked, &r.Merged, &r.Created, &r.SkippedManual,
		&diags, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return r, eris.Wrap(err, "store: scan run")
	}
	r.SheetType = model.SheetType(sheet)
	r.Status = model.RunStatus(status)
	r.Phase = model.Phase(phase)
	if err := decodeJSON(diags, &r.Diagnostics, "diagnostics"); err != nil {
		return r, err
	}
	return r, nil
}
