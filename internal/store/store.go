package store

import (
	"context"
	"errors"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/rank"
)

// ErrNotFound is returned when a row addressed by ID does not exist.
var ErrNotFound = errors.New("not found")

// TaskFilter controls filtering and pagination for task queries.
// Results are always ordered by status column, then rank.
type TaskFilter struct {
	ProjectID *string
	Status    *string
	Priority  *int
	Query     *string // search title + description
	Limit     int
	Offset    int
}

// RankUpdate is one row of a bulk rank rewrite. An empty Status keeps the
// task in its current column.
type RankUpdate struct {
	ID     string
	Rank   rank.Rank
	Status string
}

// Store defines the persistence interface for projects and their ranked
// tasks.
type Store interface {
	// === Project CRUD ===

	CreateProject(ctx context.Context, project model.Project) (*model.Project, error)
	GetProjectByID(ctx context.Context, id string) (*model.Project, error)
	GetProjects(ctx context.Context, includeArchived bool) ([]model.Project, error)
	ArchiveProject(ctx context.Context, id string) error
	RestoreProject(ctx context.Context, id string) error
	DeleteProject(ctx context.Context, id string) error

	// === Task CRUD ===

	CreateTask(ctx context.Context, task model.Task) (*model.Task, error)
	UpdateTask(ctx context.Context, task model.Task) error
	DeleteTask(ctx context.Context, id string) error
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	GetTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)

	// === Column ordering ===

	FindColumnOrderedByRank(ctx context.Context, col model.ColumnKey) ([]model.Task, error)
	UpdateRank(ctx context.Context, id string, r rank.Rank, dest *model.ColumnKey) (*model.Task, error)
	UpdateRanksBulk(ctx context.Context, updates []RankUpdate) ([]model.Task, error)
}
