package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/staff-eval/internal/db"
	"github.com/sells-group/staff-eval/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres connects to PostgreSQL with sensible pool defaults.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg := db.PoolConfig{URL: connString, MaxConns: 10, MinConns: 2}
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			cfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			cfg.MinConns = poolCfg.MinConns
		}
	}
	pool, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open pool")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS collaborators (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	name_key       TEXT NOT NULL,
	route_id       TEXT NOT NULL DEFAULT '',
	role           TEXT NOT NULL,
	physician_role TEXT NOT NULL DEFAULT 'none',
	shift          TEXT NOT NULL DEFAULT '12h'
);

CREATE TABLE IF NOT EXISTS projects (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	period_start TIMESTAMPTZ NOT NULL,
	period_end   TIMESTAMPTZ NOT NULL,
	version      BIGINT NOT NULL DEFAULT 1,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS project_states (
	project_id                TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	collaborator_id           TEXT NOT NULL,
	role                      TEXT NOT NULL,
	physician_role            TEXT NOT NULL,
	shift                     TEXT NOT NULL,
	duration_seconds          BIGINT,
	critical_duration_seconds BIGINT,
	removed_count             BIGINT,
	monthly_pause_seconds     BIGINT,
	exit_duration_seconds     BIGINT,
	shift_count               BIGINT,
	points                    INTEGER NOT NULL DEFAULT 0,
	manually_edited           BOOLEAN NOT NULL DEFAULT false,
	params                    JSONB,
	PRIMARY KEY (project_id, collaborator_id)
);

CREATE TABLE IF NOT EXISTS staged_rows (
	project_id      TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	sheet_type      TEXT NOT NULL,
	row_number      INTEGER NOT NULL,
	subject_name    TEXT NOT NULL,
	collaborator_id TEXT NOT NULL DEFAULT '',
	cells           JSONB NOT NULL,
	PRIMARY KEY (project_id, sheet_type, row_number)
);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL,
	sheet_type     TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	phase          TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	staged         INTEGER NOT NULL DEFAULT 0,
	linked         INTEGER NOT NULL DEFAULT 0,
	merged         INTEGER NOT NULL DEFAULT 0,
	created        INTEGER NOT NULL DEFAULT 0,
	skipped_manual INTEGER NOT NULL DEFAULT 0,
	diagnostics    JSONB,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scoring_rules (
	role   TEXT NOT NULL,
	metric TEXT NOT NULL,
	bands  JSONB NOT NULL,
	PRIMARY KEY (role, metric)
);

CREATE INDEX IF NOT EXISTS idx_collaborators_role ON collaborators(role);
CREATE INDEX IF NOT EXISTS idx_collaborators_name_key ON collaborators(name_key);
CREATE INDEX IF NOT EXISTS idx_ingestion_runs_project ON ingestion_runs(project_id, started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Roster ---

func (s *PostgresStore) CreateCollaborator(ctx context.Context, c *model.Collaborator) error {
	prepareCollaborator(c)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO collaborators (id, name, name_key, route_id, role, physician_role, shift)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, nameKey(c.Name), c.RouteID, string(c.Role), string(c.PhysicianRole), string(c.Shift),
	)
	return eris.Wrapf(err, "postgres: insert collaborator %s", c.ID)
}

var collaboratorUpsert = db.UpsertConfig{
	Table:        "collaborators",
	Columns:      []string{"id", "name", "name_key", "route_id", "role", "physician_role", "shift"},
	ConflictKeys: []string{"id"},
}

// UpsertCollaborators bulk-loads a roster through a COPY into a temp table.
func (s *PostgresStore) UpsertCollaborators(ctx context.Context, cs []model.Collaborator) (int64, error) {
	rows := make([][]any, 0, len(cs))
	for i := range cs {
		c := &cs[i]
		prepareCollaborator(c)
		rows = append(rows, []any{
			c.ID, c.Name, nameKey(c.Name), c.RouteID, string(c.Role), string(c.PhysicianRole), string(c.Shift),
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, collaboratorUpsert, rows)
	return n, eris.Wrap(err, "postgres: upsert collaborators")
}

func (s *PostgresStore) GetCollaborator(ctx context.Context, id string) (*model.Collaborator, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+collaboratorCols+` FROM collaborators WHERE id = $1`, id)
	c, err := scanCollaborator(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: collaborator %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get collaborator %s", id)
	}
	return &c, nil
}

func (s *PostgresStore) ListCollaborators(ctx context.Context, filter CollaboratorFilter) ([]model.Collaborator, error) {
	query := `SELECT ` + collaboratorCols + ` FROM collaborators WHERE true`
	var args []any

	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return nil, nil
		}
		args = append(args, filter.IDs)
		query += ` AND id = ANY($1)`
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		query += ` AND role = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY id`

	return s.queryCollaborators(ctx, "list collaborators", query, args...)
}

func (s *PostgresStore) SearchCollaborators(ctx context.Context, name string, limit int) ([]model.Collaborator, error) {
	key := nameKey(name)
	if key == "" {
		return nil, nil
	}
	return s.queryCollaborators(ctx, "search collaborators",
		`SELECT `+collaboratorCols+` FROM collaborators WHERE name_key LIKE $1 ORDER BY name_key, id LIMIT $2`,
		"%"+key+"%", listLimit(limit),
	)
}

func (s *PostgresStore) queryCollaborators(ctx context.Context, action, query string, args ...any) ([]model.Collaborator, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", action)
	}
	defer rows.Close()

	var out []model.Collaborator
	for rows.Next() {
		c, err := scanCollaborator(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: %s: scan", action)
		}
		out = append(out, c)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: %s: iterate", action)
}

// --- Projects ---

func (s *PostgresStore) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = now, now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: create project: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO projects (id, name, period_start, period_end, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.PeriodStart.UTC(), p.PeriodEnd.UTC(), p.Version, now, now,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert project %s", p.ID)
	}
	if err := copyStates(ctx, tx, p); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: create project: commit")
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectCols+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: project %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get project %s", id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(stateColumns[1:], ", ")+` FROM project_states
		 WHERE project_id = $1 ORDER BY collaborator_id`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list states of project %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		p.States = append(p.States, st)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: iterate states of project %s", id)
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+projectCols+` FROM projects ORDER BY period_start DESC, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list projects: scan")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list projects: iterate")
}

// SaveProject replaces the project's states if its stored version still
// equals p.Version, then advances p.Version.
func (s *PostgresStore) SaveProject(ctx context.Context, p *model.Project) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: save project: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE projects SET name = $1, period_start = $2, period_end = $3, version = version + 1, updated_at = $4
		 WHERE id = $5 AND version = $6`,
		p.Name, p.PeriodStart.UTC(), p.PeriodEnd.UTC(), now, p.ID, p.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update project %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		var exists int
		err := tx.QueryRow(ctx, `SELECT 1 FROM projects WHERE id = $1`, p.ID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: project %s", p.ID)
		}
		return eris.Wrapf(ErrVersionConflict, "postgres: project %s at version %d", p.ID, p.Version)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM project_states WHERE project_id = $1`, p.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear states of project %s", p.ID)
	}
	if err := copyStates(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: save project: commit")
	}
	p.Version++
	p.UpdatedAt = now
	return nil
}

func copyStates(ctx context.Context, tx pgx.Tx, p *model.Project) error {
	rows := make([][]any, 0, len(p.States))
	for _, st := range p.States {
		args, err := stateArgs(p.ID, st)
		if err != nil {
			return err
		}
		rows = append(rows, args)
	}
	_, err := db.CopyFrom(ctx, tx, "project_states", stateColumns, rows)
	return eris.Wrapf(err, "postgres: write states of project %s", p.ID)
}

// --- Staging ---

var stagedColumns = []string{"project_id", "sheet_type", "row_number", "subject_name", "collaborator_id", "cells"}

func (s *PostgresStore) ReplaceStagedRows(ctx context.Context, projectID string, sheet model.SheetType, rows []model.StagedRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: replace staged rows: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM staged_rows WHERE project_id = $1 AND sheet_type = $2`,
		projectID, string(sheet),
	); err != nil {
		return eris.Wrapf(err, "postgres: purge staged rows of %s/%s", projectID, sheet)
	}

	copyRows := make([][]any, 0, len(rows))
	for _, r := range rows {
		cells, err := encodeJSON(r.Cells, "staged cells")
		if err != nil {
			return err
		}
		copyRows = append(copyRows, []any{projectID, string(sheet), r.RowNumber, r.SubjectName, r.CollaboratorID, cells})
	}
	if _, err := db.CopyFrom(ctx, tx, "staged_rows", stagedColumns, copyRows); err != nil {
		return eris.Wrap(err, "postgres: stage rows")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: replace staged rows: commit")
}

func (s *PostgresStore) LinkStagedRows(ctx context.Context, projectID string, sheet model.SheetType, links map[int]string) error {
	if len(links) == 0 {
		return nil
	}
	rowNums := make([]int32, 0, len(links))
	ids := make([]string, 0, len(links))
	for n, id := range links {
		rowNums = append(rowNums, int32(n))
		ids = append(ids, id)
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE staged_rows AS s SET collaborator_id = l.collaborator_id
		 FROM unnest($3::int[], $4::text[]) AS l(row_number, collaborator_id)
		 WHERE s.project_id = $1 AND s.sheet_type = $2 AND s.row_number = l.row_number`,
		projectID, string(sheet), rowNums, ids,
	)
	return eris.Wrap(err, "postgres: link staged rows")
}

func (s *PostgresStore) ListStagedRows(ctx context.Context, projectID string, sheet model.SheetType) ([]model.StagedRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_number, subject_name, collaborator_id, cells FROM staged_rows
		 WHERE project_id = $1 AND sheet_type = $2 ORDER BY row_number`,
		projectID, string(sheet),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list staged rows")
	}
	defer rows.Close()

	var out []model.StagedRow
	for rows.Next() {
		r := model.StagedRow{ProjectID: projectID, SheetType: sheet}
		var cells []byte
		if err := rows.Scan(&r.RowNumber, &r.SubjectName, &r.CollaboratorID, &cells); err != nil {
			return nil, eris.Wrap(err, "postgres: scan staged row")
		}
		if err := decodeJSON(cells, &r.Cells, "staged cells"); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list staged rows: iterate")
}

// --- Runs ---

func (s *PostgresStore) RecordRun(ctx context.Context, run *model.IngestionRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	diags, err := encodeJSON(run.Diagnostics, "diagnostics")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingestion_runs (id, project_id, sheet_type, status, phase, error,
		   staged, linked, merged, created, skipped_manual, diagnostics, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		   sheet_type = EXCLUDED.sheet_type, status = EXCLUDED.status, phase = EXCLUDED.phase,
		   error = EXCLUDED.error, staged = EXCLUDED.staged, linked = EXCLUDED.linked,
		   merged = EXCLUDED.merged, created = EXCLUDED.created, skipped_manual = EXCLUDED.skipped_manual,
		   diagnostics = EXCLUDED.diagnostics, finished_at = EXCLUDED.finished_at`,
		run.ID, run.ProjectID, string(run.SheetType), string(run.Status), string(run.Phase), run.Error,
		run.Staged, run.Linked, run.Merged, run.Created, run.SkippedManual, diags,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record run %s", run.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, projectID string, limit int) ([]model.IngestionRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runCols+` FROM ingestion_runs WHERE project_id = $1 ORDER BY started_at DESC, id LIMIT $2`,
		projectID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.IngestionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs: iterate")
}

// --- Rules ---

func (s *PostgresStore) ReplaceRules(ctx context.Context, rules []model.Rule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: replace rules: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM scoring_rules`); err != nil {
		return eris.Wrap(err, "postgres: clear rules")
	}
	for _, r := range rules {
		bands, err := encodeJSON(r.Bands, "bands")
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO scoring_rules (role, metric, bands) VALUES ($1, $2, $3)`,
			string(r.Role), string(r.Metric), bands,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert rule %s/%s", r.Role, r.Metric)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: replace rules: commit")
}

func (s *PostgresStore) ListRules(ctx context.Context) ([]model.Rule, error) {
	rows, err := s.pool.Query(ctx, `SELECT role, metric, bands FROM scoring_rules ORDER BY role, metric`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rules")
	}
	defer rows.Close()

	var out []model.Rule
	for rows.Next() {
		var (
			role, metric string
			bands        []byte
		)
		if err := rows.Scan(&role, &metric, &bands); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rule")
		}
		r := model.Rule{Role: model.Role(role), Metric: model.Metric(metric)}
		if err := decodeJSON(bands, &r.Bands, "bands"); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rules: iterate")
}
