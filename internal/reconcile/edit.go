package reconcile

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/scorer"
	"github.com/sells-group/staff-eval/internal/store"
)

var (
	// ErrNotEnrolled is returned when a collaborator has no state in the
	// project.
	ErrNotEnrolled = eris.New("reconcile: collaborator not enrolled in project")
	// ErrInvalidEdit is returned for a StateEdit that names unknown fields.
	ErrInvalidEdit = eris.New("reconcile: invalid edit")
)

// Enroll adds a roster collaborator to a project with an unmeasured, scored
// state. Enrolling an already enrolled collaborator returns the existing
// state unchanged.
func (s *Service) Enroll(ctx context.Context, projectID, collaboratorID string) (*model.CollaboratorState, error) {
	unlock := s.locks.lock(projectID)
	defer unlock()

	c, err := s.store.GetCollaborator(ctx, collaboratorID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: get collaborator %s", collaboratorID)
	}
	proj, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: get project %s", projectID)
	}
	if st := proj.State(collaboratorID); st != nil {
		out := *st
		return &out, nil
	}

	rules, err := s.rules.Rules(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: load rules")
	}

	st := model.NewState(*c)
	scorer.Apply(&st, rules)
	proj.AddState(st)
	proj.SortStates()
	if err := s.store.SaveProject(ctx, proj); err != nil {
		return nil, eris.Wrap(err, "reconcile: save project")
	}

	zap.L().Info("reconcile: collaborator enrolled",
		zap.String("project_id", projectID),
		zap.String("collaborator_id", collaboratorID),
		zap.String("role", string(c.Role)),
	)
	return &st, nil
}

// StateEdit is a manual change to a collaborator state. Metrics present in
// Metrics overwrite the state's values; metrics listed in Clear are removed.
type StateEdit struct {
	Metrics model.Metrics  `json:"metrics"`
	Clear   []model.Metric `json:"clear,omitempty"`
	Shift   *model.Shift   `json:"shift,omitempty"`
	// ManuallyEdited defaults to true. Passing false releases the lock so
	// the next ingestion overwrites the state again.
	ManuallyEdited *bool `json:"manually_edited,omitempty"`
}

// EditState applies a manual edit, marks the state as manually edited and
// recomputes its points.
func (s *Service) EditState(ctx context.Context, projectID, collaboratorID string, edit StateEdit) (*model.CollaboratorState, error) {
	for _, m := range edit.Clear {
		if _, ok := model.ParseMetric(string(m)); !ok {
			return nil, eris.Wrapf(ErrInvalidEdit, "unknown metric %q", m)
		}
	}

	unlock := s.locks.lock(projectID)
	defer unlock()

	proj, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: get project %s", projectID)
	}
	st := proj.State(collaboratorID)
	if st == nil {
		return nil, eris.Wrapf(ErrNotEnrolled, "reconcile: collaborator %s in project %s", collaboratorID, projectID)
	}
	rules, err := s.rules.Rules(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: load rules")
	}

	for _, m := range edit.Clear {
		st.Set(m, nil)
	}
	st.Overlay(edit.Metrics)
	if edit.Shift != nil {
		st.Shift = *edit.Shift
	}
	st.ManuallyEdited = true
	if edit.ManuallyEdited != nil {
		st.ManuallyEdited = *edit.ManuallyEdited
	}
	scorer.Apply(st, rules)
	out := *st

	if err := s.store.SaveProject(ctx, proj); err != nil {
		return nil, eris.Wrap(err, "reconcile: save project")
	}

	zap.L().Info("reconcile: state edited",
		zap.String("project_id", projectID),
		zap.String("collaborator_id", collaboratorID),
		zap.Bool("manually_edited", out.ManuallyEdited),
		zap.Int("points", out.Points),
	)
	return &out, nil
}

// Rescore recomputes the points of every state not edited manually, for use
// after the rule set changes. It returns how many states were rescored.
func (s *Service) Rescore(ctx context.Context, projectID string) (int, error) {
	unlock := s.locks.lock(projectID)
	defer unlock()

	proj, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return 0, eris.Wrapf(err, "reconcile: get project %s", projectID)
	}
	rules, err := s.rules.Rules(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "reconcile: load rules")
	}

	n := 0
	for i := range proj.States {
		if proj.States[i].ManuallyEdited {
			continue
		}
		scorer.Apply(&proj.States[i], rules)
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.store.SaveProject(ctx, proj); err != nil {
		return 0, eris.Wrap(err, "reconcile: save project")
	}
	zap.L().Info("reconcile: project rescored", zap.String("project_id", projectID), zap.Int("states", n))
	return n, nil
}

// Project returns a project by id.
func (s *Service) Project(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: get project %s", projectID)
	}
	return p, nil
}

// Runs returns the most recent ingestion runs of a project.
func (s *Service) Runs(ctx context.Context, projectID string, limit int) ([]model.IngestionRun, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, eris.Wrapf(err, "reconcile: get project %s", projectID)
	}
	runs, err := s.store.ListRuns(ctx, projectID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: list runs")
	}
	return runs, nil
}

// IsNotFound reports whether err means a project or collaborator does not
// exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
