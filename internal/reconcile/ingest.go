package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/resolve"
	"github.com/sells-group/staff-eval/internal/scorer"
	"github.com/sells-group/staff-eval/internal/sheet"
	"github.com/sells-group/staff-eval/internal/store"
)

// Ingest imports one workbook into a project and returns the run log.
//
// A workbook that cannot be classified or lacks the subject column is
// rejected before anything but the run log is written; the returned error
// is then a *sheet.Rejection and the run is still returned. Any other error
// marks the run failed.
func (s *Service) Ingest(ctx context.Context, projectID string, data []byte) (*model.IngestionRun, error) {
	unlock := s.locks.lock(projectID)
	defer unlock()

	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, eris.Wrapf(err, "reconcile: load project %s", projectID)
	}

	run := &model.IngestionRun{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Status:    model.RunStatusRunning,
		Phase:     model.PhaseStaging,
		StartedAt: s.now(),
	}
	log := zap.L().With(zap.String("project_id", projectID), zap.String("run_id", run.ID))
	log.Info("reconcile: starting ingestion", zap.Int("bytes", len(data)))

	sh, err := sheet.ReadWorkbook(data)
	if err != nil {
		if rej, ok := sheet.IsRejection(err); ok {
			run.Status = model.RunStatusRejected
			run.Phase = model.PhaseRejected
			run.Error = rej.Error()
			log.Warn("reconcile: workbook rejected",
				zap.String("reason", string(rej.Reason)),
				zap.String("field", rej.Field),
			)
			s.finish(ctx, log, run)
			return run, err
		}
		return run, s.fail(ctx, log, run, eris.Wrap(err, "reconcile: read workbook"))
	}
	run.SheetType = sh.Type
	log = log.With(zap.String("sheet_type", string(sh.Type)))

	rules, err := s.rules.Rules(ctx)
	if err != nil {
		return run, s.fail(ctx, log, run, eris.Wrap(err, "reconcile: load rules"))
	}

	in := &ingestion{svc: s, run: run, sheet: sh, rules: rules, log: log}
	for _, step := range []struct {
		phase model.Phase
		fn    func(context.Context) error
	}{
		{model.PhaseStaging, in.stage},
		{model.PhaseLinking, in.link},
		{model.PhaseMerging, in.merge},
	} {
		run.Phase = step.phase
		start := time.Now()
		if err := step.fn(ctx); err != nil {
			return run, s.fail(ctx, log, run, err)
		}
		log.Info("reconcile: phase complete",
			zap.String("phase", string(step.phase)),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}

	run.Status = model.RunStatusDone
	run.Phase = model.PhaseDone
	s.finish(ctx, log, run)
	log.Info("reconcile: ingestion complete",
		zap.Int("staged", run.Staged),
		zap.Int("linked", run.Linked),
		zap.Int("merged", run.Merged),
		zap.Int("created", run.Created),
		zap.Int("skipped_manual", run.SkippedManual),
		zap.Int("diagnostics", len(run.Diagnostics)),
	)
	return run, nil
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, run *model.IngestionRun, err error) error {
	run.Status = model.RunStatusFailed
	run.Error = err.Error()
	log.Error("reconcile: ingestion failed", zap.String("phase", string(run.Phase)), zap.Error(err))
	s.finish(ctx, log, run)
	return err
}

// finish persists the run record. Runs are written once, with their final
// status, so an interrupted process never leaves a run marked running. A
// failure to record is logged, not returned: the project data is already
// committed or untouched.
func (s *Service) finish(ctx context.Context, log *zap.Logger, run *model.IngestionRun) {
	run.FinishedAt = s.now()
	if err := s.store.RecordRun(ctx, run); err != nil {
		log.Warn("reconcile: failed to record run", zap.Error(err))
	}
}

// ingestion carries the state of one run between phases.
type ingestion struct {
	svc   *Service
	run   *model.IngestionRun
	sheet *sheet.Sheet
	rules scorer.RuleSet
	log   *zap.Logger

	rows   []model.StagedRow
	roster map[string]model.Collaborator
}

func (in *ingestion) stage(ctx context.Context) error {
	for _, d := range in.sheet.Skipped {
		in.run.Diag(d)
	}

	in.rows = make([]model.StagedRow, 0, len(in.sheet.Records))
	for _, rec := range in.sheet.Records {
		in.rows = append(in.rows, model.StagedRow{
			ProjectID:   in.run.ProjectID,
			SheetType:   in.sheet.Type,
			RowNumber:   rec.RowNumber,
			SubjectName: rec.Subject,
			Cells:       rec.Cells,
		})
	}
	in.run.Staged = len(in.rows)

	if err := in.svc.store.ReplaceStagedRows(ctx, in.run.ProjectID, in.sheet.Type, in.rows); err != nil {
		return eris.Wrap(err, "reconcile: stage rows")
	}
	return nil
}

// pool returns the roster snapshot rows are matched against. Dispatch/fleet
// sheets only update collaborators already enrolled in the project;
// physician sheets may name any physician on the roster.
func (in *ingestion) pool(ctx context.Context) ([]model.Collaborator, error) {
	if in.sheet.Type == model.SheetPhysician {
		return in.svc.store.ListCollaborators(ctx, store.CollaboratorFilter{Role: model.RolePhysician})
	}

	proj, err := in.svc.store.GetProject(ctx, in.run.ProjectID)
	if err != nil {
		return nil, err
	}
	ids := proj.CollaboratorIDs()
	if len(ids) == 0 {
		return nil, nil
	}
	all, err := in.svc.store.ListCollaborators(ctx, store.CollaboratorFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.Role == model.RoleDispatch || c.Role == model.RoleFleet {
			out = append(out, c)
		}
	}
	return out, nil
}

func (in *ingestion) link(ctx context.Context) error {
	pool, err := in.pool(ctx)
	if err != nil {
		return eris.Wrap(err, "reconcile: load roster snapshot")
	}
	in.roster = make(map[string]model.Collaborator, len(pool))
	candidates := make([]resolve.Candidate, 0, len(pool))
	for _, c := range pool {
		in.roster[c.ID] = c
		candidates = append(candidates, resolve.Candidate{ID: c.ID, Name: c.Name})
	}
	matcher := resolve.NewMatcher(in.svc.threshold, candidates)
	in.log.Debug("reconcile: roster snapshot", zap.Int("candidates", matcher.Len()))

	type result struct {
		match resolve.Match
		ok    bool
	}
	results := make([]result, len(in.rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.svc.workers)
	for i := range in.rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, ok := matcher.Best(in.rows[i].SubjectName)
			results[i] = result{match: m, ok: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "reconcile: match rows")
	}

	links := make(map[int]string)
	for i := range in.rows {
		row := &in.rows[i]
		res := results[i]
		if !res.ok {
			in.run.Diag(model.Diagnostic{
				Kind:    model.DiagUnmatched,
				Row:     row.RowNumber,
				Subject: row.SubjectName,
				Message: fmt.Sprintf("no roster match at similarity >= %.2f", matcher.Threshold()),
			})
			continue
		}
		row.CollaboratorID = res.match.ID
		links[row.RowNumber] = res.match.ID
		in.log.Debug("reconcile: row linked",
			zap.Int("row", row.RowNumber),
			zap.String("collaborator_id", res.match.ID),
			zap.Float64("similarity", res.match.Similarity),
		)
		if len(res.match.Ambiguous) > 0 {
			in.run.Diag(model.Diagnostic{
				Kind:           model.DiagAmbiguous,
				Row:            row.RowNumber,
				Subject:        row.SubjectName,
				CollaboratorID: res.match.ID,
				Message: fmt.Sprintf("equally similar to %s; linked to %s only",
					strings.Join(res.match.Ambiguous, ", "), res.match.ID),
			})
		}
	}
	in.run.Linked = len(links)

	if err := in.svc.store.LinkStagedRows(ctx, in.run.ProjectID, in.sheet.Type, links); err != nil {
		return eris.Wrap(err, "reconcile: persist links")
	}
	return nil
}

func (in *ingestion) merge(ctx context.Context) error {
	// Reload so manual edits committed since LINKING are honored.
	proj, err := in.svc.store.GetProject(ctx, in.run.ProjectID)
	if err != nil {
		return eris.Wrap(err, "reconcile: reload project")
	}

	metrics := make(map[int]model.Metrics, len(in.sheet.Records))
	for _, rec := range in.sheet.Records {
		metrics[rec.RowNumber] = rec.Metrics
	}

	var touched []string
	persisted := make(map[string]model.Metrics)
	skipped := make(map[string]bool)
	seen := make(map[string]bool)

	for _, row := range in.rows {
		if !row.Linked() {
			continue
		}
		id := row.CollaboratorID

		st := proj.State(id)
		if st == nil {
			if in.sheet.Type != model.SheetPhysician {
				in.run.Diag(model.Diagnostic{
					Kind:           model.DiagNotEnrolled,
					Row:            row.RowNumber,
					Subject:        row.SubjectName,
					CollaboratorID: id,
					Message:        "collaborator is no longer enrolled in the project",
				})
				continue
			}
			st = proj.AddState(model.NewState(in.roster[id]))
			in.run.Created++
		} else if !seen[id] {
			persisted[id] = st.Metrics
		}

		if st.ManuallyEdited {
			if !skipped[id] {
				skipped[id] = true
				in.run.SkippedManual++
				in.run.Diag(model.Diagnostic{
					Kind:           model.DiagManualEdit,
					Row:            row.RowNumber,
					Subject:        row.SubjectName,
					CollaboratorID: id,
					Message:        "state was edited manually; left unchanged",
				})
			}
			continue
		}

		st.Overlay(metrics[row.RowNumber])
		if !seen[id] {
			seen[id] = true
			touched = append(touched, id)
		}
	}

	for _, id := range touched {
		st := proj.State(id)
		var prev *model.Metrics
		if m, ok := persisted[id]; ok {
			prev = &m
		}
		in.lookup(ctx, proj, st, prev)

		res := scorer.Apply(st, in.rules)
		for _, msg := range res.Diagnostics {
			in.run.Diag(model.Diagnostic{
				Kind:           model.DiagScoring,
				CollaboratorID: id,
				Message:        msg,
			})
		}
	}
	in.run.Merged = len(touched)

	if len(touched) == 0 && in.run.Created == 0 {
		return nil
	}
	proj.SortStates()
	if err := in.svc.store.SaveProject(ctx, proj); err != nil {
		return eris.Wrap(err, "reconcile: save project")
	}
	return nil
}

// lookup replaces the removed/pause counters of st with the values of the
// external counter service. When the service fails the counters persisted
// before this run are restored; a state that never had counters keeps what
// the sheet provided.
func (in *ingestion) lookup(ctx context.Context, proj *model.Project, st *model.CollaboratorState, prev *model.Metrics) {
	if in.svc.metrics == nil || proj.PeriodStart.IsZero() || proj.PeriodEnd.IsZero() {
		return
	}
	c, ok := in.roster[st.CollaboratorID]
	if !ok || c.RouteID == "" {
		return
	}

	counters, err := in.svc.metrics.Lookup(ctx, c.RouteID, proj.PeriodStart, proj.PeriodEnd)
	if err == nil {
		st.RemovedCount = model.Int64(counters.RemovedCalls)
		st.MonthlyPauseSeconds = model.Int64(counters.PauseSeconds)
		return
	}

	in.log.Warn("reconcile: metrics lookup failed, using last known counters",
		zap.String("collaborator_id", st.CollaboratorID),
		zap.String("route_id", c.RouteID),
		zap.Error(err),
	)
	if prev != nil {
		if prev.RemovedCount != nil {
			st.RemovedCount = model.Int64(*prev.RemovedCount)
		}
		if prev.MonthlyPauseSeconds != nil {
			st.MonthlyPauseSeconds = model.Int64(*prev.MonthlyPauseSeconds)
		}
	}
	in.run.Diag(model.Diagnostic{
		Kind:           model.DiagLookupFallback,
		CollaboratorID: st.CollaboratorID,
		Message:        "counter lookup failed: " + err.Error(),
	})
}
