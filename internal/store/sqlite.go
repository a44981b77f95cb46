package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/staff-eval/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	period_start DATETIME NOT NULL,
	period_end   DATETIME NOT NULL,
	version      INTEGER NOT NULL DEFAULT 1,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS project_states (
	project_id                TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	collaborator_id           TEXT NOT NULL,
	role                      TEXT NOT NULL,
	physician_role            TEXT NOT NULL,
	shift                     TEXT NOT NULL,
	duration_seconds          INTEGER,
	critical_duration_seconds INTEGER,
	removed_count             INTEGER,
	monthly_pause_seconds     INTEGER,
	exit_duration_seconds     INTEGER,
	shift_count               INTEGER,
	points                    INTEGER NOT NULL DEFAULT 0,
	manually_edited           INTEGER NOT NULL DEFAULT 0,
	params                    TEXT,
	PRIMARY KEY (project_id, collaborator_id)
);

CREATE TABLE IF NOT EXISTS staged_rows (
	project_id      TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	sheet_type      TEXT NOT NULL,
	row_number      INTEGER NOT NULL,
	subject_name    TEXT NOT NULL,
	collaborator_id TEXT NOT NULL DEFAULT '',
	cells           TEXT NOT NULL,
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
	diagnostics    TEXT,
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scoring_rules (
	role   TEXT NOT NULL,
	metric TEXT NOT NULL,
	bands  TEXT NOT NULL,
	PRIMARY KEY (role, metric)
);

CREATE INDEX IF NOT EXISTS idx_collaborators_role ON collaborators(role);
CREATE INDEX IF NOT EXISTS idx_collaborators_name_key ON collaborators(name_key);
CREATE INDEX IF NOT EXISTS idx_ingestion_runs_project ON ingestion_runs(project_id, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Roster ---

func (s *SQLiteStore) CreateCollaborator(ctx context.Context, c *model.Collaborator) error {
	prepareCollaborator(c)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collaborators (id, name, name_key, route_id, role, physician_role, shift)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, nameKey(c.Name), c.RouteID, string(c.Role), string(c.PhysicianRole), string(c.Shift),
	)
	return eris.Wrapf(err, "sqlite: insert collaborator %s", c.ID)
}

func (s *SQLiteStore) UpsertCollaborators(ctx context.Context, cs []model.Collaborator) (int64, error) {
	if len(cs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert collaborators: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for i := range cs {
		c := &cs[i]
		prepareCollaborator(c)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO collaborators (id, name, name_key, route_id, role, physician_role, shift)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   name = excluded.name, name_key = excluded.name_key, route_id = excluded.route_id,
			   role = excluded.role, physician_role = excluded.physician_role, shift = excluded.shift`,
			c.ID, c.Name, nameKey(c.Name), c.RouteID, string(c.Role), string(c.PhysicianRole), string(c.Shift),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert collaborator %s", c.ID)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert collaborators: commit")
	}
	return n, nil
}

const collaboratorCols = `id, name, route_id, role, physician_role, shift`

func scanCollaborator(row scannable) (model.Collaborator, error) {
	var (
		c                model.Collaborator
		role, sub, shift string
	)
	err := row.Scan(&c.ID, &c.Name, &c.RouteID, &role, &sub, &shift)
	c.Role = model.Role(role)
	c.PhysicianRole = model.PhysicianRole(sub)
	c.Shift = model.Shift(shift)
	return c, err
}

func (s *SQLiteStore) GetCollaborator(ctx context.Context, id string) (*model.Collaborator, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+collaboratorCols+` FROM collaborators WHERE id = ?`, id)
	c, err := scanCollaborator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: collaborator %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get collaborator %s", id)
	}
	return &c, nil
}

func (s *SQLiteStore) ListCollaborators(ctx context.Context, filter CollaboratorFilter) ([]model.Collaborator, error) {
	query := `SELECT ` + collaboratorCols + ` FROM collaborators WHERE 1=1`
	var args []any

	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return nil, nil
		}
		query += ` AND id IN (?` + strings.Repeat(", ?", len(filter.IDs)-1) + `)`
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if filter.Role != "" {
		query += ` AND role = ?`
		args = append(args, string(filter.Role))
	}
	query += ` ORDER BY id`

	return s.queryCollaborators(ctx, "list collaborators", query, args...)
}

func (s *SQLiteStore) SearchCollaborators(ctx context.Context, name string, limit int) ([]model.Collaborator, error) {
	key := nameKey(name)
	if key == "" {
		return nil, nil
	}
	return s.queryCollaborators(ctx, "search collaborators",
		`SELECT `+collaboratorCols+` FROM collaborators WHERE name_key LIKE ? ORDER BY name_key, id LIMIT ?`,
		"%"+key+"%", listLimit(limit),
	)
}

func (s *SQLiteStore) queryCollaborators(ctx context.Context, action, query string, args ...any) ([]model.Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", action)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Collaborator
	for rows.Next() {
		c, err := scanCollaborator(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s: scan", action)
		}
		out = append(out, c)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: %s: iterate", action)
}

// --- Projects ---

func (s *SQLiteStore) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: create project: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, period_start, period_end, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.PeriodStart.UTC(), p.PeriodEnd.UTC(), p.Version, now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert project %s", p.ID)
	}
	if err := insertStatesSQLite(ctx, tx, p); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: create project: commit")
}

const projectCols = `id, name, period_start, period_end, version, created_at, updated_at`

func scanProject(row scannable) (model.Project, error) {
	var p model.Project
	err := row.Scan(&p.ID, &p.Name, &p.PeriodStart, &p.PeriodEnd, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: project %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get project %s", id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(stateColumns[1:], ", ")+` FROM project_states
		 WHERE project_id = ? ORDER BY collaborator_id`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list states of project %s", id)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		p.States = append(p.States, st)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: iterate states of project %s", id)
	}
	return &p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectCols+` FROM projects ORDER BY period_start DESC, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list projects: scan")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list projects: iterate")
}

// SaveProject replaces the project's states if its stored version still
// equals p.Version, then advances p.Version.
func (s *SQLiteStore) SaveProject(ctx context.Context, p *model.Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save project: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE projects SET name = ?, period_start = ?, period_end = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		p.Name, p.PeriodStart.UTC(), p.PeriodEnd.UTC(), now, p.ID, p.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update project %s", p.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, p.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "sqlite: project %s", p.ID)
		}
		return eris.Wrapf(ErrVersionConflict, "sqlite: project %s at version %d", p.ID, p.Version)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_states WHERE project_id = ?`, p.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear states of project %s", p.ID)
	}
	if err := insertStatesSQLite(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: save project: commit")
	}
	p.Version++
	p.UpdatedAt = now
	return nil
}

func insertStatesSQLite(ctx context.Context, tx *sql.Tx, p *model.Project) error {
	if len(p.States) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO project_states (`+strings.Join(stateColumns, ", ")+`)
		 VALUES (?`+strings.Repeat(", ?", len(stateColumns)-1)+`)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare state insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, st := range p.States {
		args, err := stateArgs(p.ID, st)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert state %s/%s", p.ID, st.CollaboratorID)
		}
	}
	return nil
}

// --- Staging ---

func (s *SQLiteStore) ReplaceStagedRows(ctx context.Context, projectID string, sheet model.SheetType, rows []model.StagedRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace staged rows: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM staged_rows WHERE project_id = ? AND sheet_type = ?`,
		projectID, string(sheet),
	); err != nil {
		return eris.Wrapf(err, "sqlite: purge staged rows of %s/%s", projectID, sheet)
	}

	for _, r := range rows {
		cells, err := encodeJSON(r.Cells, "staged cells")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO staged_rows (project_id, sheet_type, row_number, subject_name, collaborator_id, cells)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			projectID, string(sheet), r.RowNumber, r.SubjectName, r.CollaboratorID, string(cells),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert staged row %d", r.RowNumber)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: replace staged rows: commit")
}

func (s *SQLiteStore) LinkStagedRows(ctx context.Context, projectID string, sheet model.SheetType, links map[int]string) error {
	if len(links) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: link staged rows: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for rowNum, collaboratorID := range links {
		if _, err := tx.ExecContext(ctx,
			`UPDATE staged_rows SET collaborator_id = ? WHERE project_id = ? AND sheet_type = ? AND row_number = ?`,
			collaboratorID, projectID, string(sheet), rowNum,
		); err != nil {
			return eris.Wrapf(err, "sqlite: link staged row %d", rowNum)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: link staged rows: commit")
}

func (s *SQLiteStore) ListStagedRows(ctx context.Context, projectID string, sheet model.SheetType) ([]model.StagedRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_number, subject_name, collaborator_id, cells FROM staged_rows
		 WHERE project_id = ? AND sheet_type = ? ORDER BY row_number`,
		projectID, string(sheet),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list staged rows")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StagedRow
	for rows.Next() {
		r := model.StagedRow{ProjectID: projectID, SheetType: sheet}
		var cells []byte
		if err := rows.Scan(&r.RowNumber, &r.SubjectName, &r.CollaboratorID, &cells); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan staged row")
		}
		if err := decodeJSON(cells, &r.Cells, "staged cells"); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list staged rows: iterate")
}

// --- Runs ---

func (s *SQLiteStore) RecordRun(ctx context.Context, run *model.IngestionRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	diags, err := encodeJSON(run.Diagnostics, "diagnostics")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingestion_runs (id, project_id, sheet_type, status, phase, error,
		   staged, linked, merged, created, skipped_manual, diagnostics, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   sheet_type = excluded.sheet_type, status = excluded.status, phase = excluded.phase,
		   error = excluded.error, staged = excluded.staged, linked = excluded.linked,
		   merged = excluded.merged, created = excluded.created, skipped_manual = excluded.skipped_manual,
		   diagnostics = excluded.diagnostics, finished_at = excluded.finished_at`,
		run.ID, run.ProjectID, string(run.SheetType), string(run.Status), string(run.Phase), run.Error,
		run.Staged, run.Linked, run.Merged, run.Created, run.SkippedManual, string(diags),
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record run %s", run.ID)
}

const runCols = `id, project_id, sheet_type, status, phase, error, staged, linked, merged, created,
	skipped_manual, diagnostics, started_at, finished_at`

func (s *SQLiteStore) ListRuns(ctx context.Context, projectID string, limit int) ([]model.IngestionRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runCols+` FROM ingestion_runs WHERE project_id = ? ORDER BY started_at DESC, id LIMIT ?`,
		projectID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.IngestionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs: iterate")
}

// --- Rules ---

func (s *SQLiteStore) ReplaceRules(ctx context.Context, rules []model.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace rules: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM scoring_rules`); err != nil {
		return eris.Wrap(err, "sqlite: clear rules")
	}
	for _, r := range rules {
		bands, err := encodeJSON(r.Bands, "bands")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scoring_rules (role, metric, bands) VALUES (?, ?, ?)`,
			string(r.Role), string(r.Metric), string(bands),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert rule %s/%s", r.Role, r.Metric)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: replace rules: commit")
}

func (s *SQLiteStore) ListRules(ctx context.Context) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, metric, bands FROM scoring_rules ORDER BY role, metric`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rules")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Rule
	for rows.Next() {
		var (
			role, metric string
			bands        []byte
		)
		if err := rows.Scan(&role, &metric, &bands); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rule")
		}
		r := model.Rule{Role: model.Role(role), Metric: model.Metric(metric)}
		if err := decodeJSON(bands, &r.Bands, "bands"); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rules: iterate")
}
