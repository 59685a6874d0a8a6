package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskboard/internal/model"
)

const projectColumns = "id, name, description, owner_id, archived, created_at, updated_at"

// CreateProject inserts a new project. Generates a UUID if ID is empty.
func (s *SQLiteStore) CreateProject(ctx context.Context, project model.Project) (*model.Project, error) {
	if strings.TrimSpace(project.Name) == "" {
		return nil, fmt.Errorf("project name must not be empty")
	}
	if project.ID == "" {
		project.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, owner_id, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.Name, project.Description, project.OwnerID,
		boolToInt(project.Archived), project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return &project, nil
}

// DeleteProject removes a project. Its tasks are removed by cascade.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetProjectByID retrieves a single project by ID.
func (s *SQLiteStore) GetProjectByID(
	ctx context.Context,
	id string,
) (*model.Project, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = ?", id)

	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", id, err)
	}
	return &project, nil
}

// GetProjects retrieves all projects, optionally including archived ones.
func (s *SQLiteStore) GetProjects(
	ctx context.Context,
	includeArchived bool,
) ([]model.Project, error) {
	query := "SELECT " + projectColumns + " FROM projects"
	if !includeArchived {
		query += " WHERE archived = 0"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ArchiveProject sets the archived flag to true.
func (s *SQLiteStore) ArchiveProject(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, true)
}

// RestoreProject sets the archived flag to false.
func (s *SQLiteStore) RestoreProject(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, false)
}

func (s *SQLiteStore) setArchived(ctx context.Context, id string, archived bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE projects SET archived = ?, updated_at = ? WHERE id = ?",
		boolToInt(archived), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating archived flag of project %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// scanProject scans a project row from sqlx.Row or sqlx.Rows.
func scanProject(row interface{ Scan(dest ...interface{}) error }) (model.Project, error) {
	var (
		p           model.Project
		archivedInt int
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.OwnerID,
		&archivedInt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return model.Project{}, err
	}
	p.Archived = archivedInt != 0
	return p, nil
}
