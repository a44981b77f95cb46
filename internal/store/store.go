// Package store persists the roster, evaluation projects, staged sheet rows,
// ingestion runs and scoring rules.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/staff-eval/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrVersionConflict is returned by SaveProject when the project changed
	// since it was loaded.
	ErrVersionConflict = eris.New("store: project version conflict")
)

// CollaboratorFilter narrows ListCollaborators. Zero values match all.
type CollaboratorFilter struct {
	IDs  []string   `json:"ids,omitempty"`
	Role model.Role `json:"role,omitempty"`
}

// Store defines the persistence contract of the evaluation engine.
type Store interface {
	// Roster
	CreateCollaborator(ctx context.Context, c *model.Collaborator) error
	UpsertCollaborators(ctx context.Context, cs []model.Collaborator) (int64, error)
	GetCollaborator(ctx context.Context, id string) (*model.Collaborator, error)
	ListCollaborators(ctx context.Context, filter CollaboratorFilter) ([]model.Collaborator, error)
	SearchCollaborators(ctx context.Context, name string, limit int) ([]model.Collaborator, error)

	// Projects
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	SaveProject(ctx context.Context, p *model.Project) error

	// Staging
	ReplaceStagedRows(ctx context.Context, projectID string, sheet model.SheetType, rows []model.StagedRow) error
	LinkStagedRows(ctx context.Context, projectID string, sheet model.SheetType, links map[int]string) error
	ListStagedRows(ctx context.Context, projectID string, sheet model.SheetType) ([]model.StagedRow, error)

	// Runs
	RecordRun(ctx context.Context, run *model.IngestionRun) error
	ListRuns(ctx context.Context, projectID string, limit int) ([]model.IngestionRun, error)

	// Rules
	ReplaceRules(ctx context.Context, rules []model.Rule) error
	ListRules(ctx context.Context) ([]model.Rule, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// defaultListLimit caps ListRuns and SearchCollaborators when no limit is
// given.
const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
