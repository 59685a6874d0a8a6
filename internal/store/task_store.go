package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/rank"
)

const taskColumns = "id, project_id, title, description, status, priority, rank, created_at, updated_at"

// CreateTask inserts a new task at the bottom of its column. Generates a
// UUID if ID is empty.
func (s *SQLiteStore) CreateTask(ctx context.Context, task model.Task) (*model.Task, error) {
	if strings.TrimSpace(task.Title) == "" {
		return nil, fmt.Errorf("task title must not be empty")
	}
	if task.ProjectID == "" {
		return nil, fmt.Errorf("task project must not be empty")
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = model.StatusOpen
	}
	if !model.ValidStatus(task.Status) {
		return nil, fmt.Errorf("unknown task status %q", task.Status)
	}
	if task.Priority < 1 || task.Priority > 5 {
		task.Priority = model.PriorityMedium
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Default rank to just after the last task in the column. A caller
	// supplied rank is stored verbatim (imports, fixtures).
	if task.Rank == "" {
		r, err := nextRank(ctx, tx, task.Column())
		if err != nil {
			return nil, err
		}
		task.Rank = r.String()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (
			id, project_id, title, description, status, priority,
			rank, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.ProjectID, task.Title, task.Description, task.Status,
		task.Priority, task.Rank, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing task: %w", err)
	}
	return &task, nil
}

// nextRank returns a rank sorting after every task in col.
func nextRank(ctx context.Context, tx *sqlx.Tx, col model.ColumnKey) (rank.Rank, error) {
	var last sql.NullString
	err := tx.GetContext(ctx, &last,
		"SELECT MAX(rank) FROM tasks WHERE project_id = ? AND status = ?",
		col.ProjectID, col.Status)
	if err != nil {
		return rank.Rank{}, fmt.Errorf("getting max rank of %s: %w", col, err)
	}
	if !last.Valid {
		return rank.Min(), nil
	}

	lastRank, err := rank.Parse(last.String)
	if err != nil {
		return rank.Rank{}, fmt.Errorf("column %s: %w", col, err)
	}
	return rank.After(lastRank)
}

// UpdateTask updates the title, description and priority of a task.
// Status and rank change only through UpdateRank / UpdateRanksBulk.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task model.Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("task title must not be empty")
	}
	if task.Priority < 1 || task.Priority > 5 {
		task.Priority = model.PriorityMedium
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, priority = ?, updated_at = ?
		WHERE id = ?`,
		task.Title, task.Description, task.Priority, time.Now().UTC(),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", task.ID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task %s: %w", task.ID, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetTaskByID retrieves a single task by ID.
func (s *SQLiteStore) GetTaskByID(
	ctx context.Context,
	id string,
) (*model.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q sqlx.QueryerContext, id string) (*model.Task, error) {
	var task model.Task
	err := sqlx.GetContext(ctx, q, &task,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return &task, nil
}

// GetTasks retrieves tasks matching the filter, ordered by column and rank.
func (s *SQLiteStore) GetTasks(
	ctx context.Context,
	filter TaskFilter,
) ([]model.Task, error) {
	var conditions []string
	var args []interface{}

	if filter.ProjectID != nil {
		conditions = append(conditions, "project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Priority != nil {
		conditions = append(conditions, "priority = ?")
		args = append(args, *filter.Priority)
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(title LIKE ? OR description LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q)
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY project_id, status, rank, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var tasks []model.Task
	if err := s.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	return tasks, nil
}

// FindColumnOrderedByRank returns every task of col in ascending rank
// order. Equal ranks are ordered by ID so reads are deterministic.
func (s *SQLiteStore) FindColumnOrderedByRank(
	ctx context.Context,
	col model.ColumnKey,
) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks,
		"SELECT "+taskColumns+" FROM tasks WHERE project_id = ? AND status = ? ORDER BY rank, id",
		col.ProjectID, col.Status)
	if err != nil {
		return nil, fmt.Errorf("querying column %s: %w", col, err)
	}
	return tasks, nil
}

// UpdateRank stores a new rank for one task and, when dest is non-nil,
// moves it to dest's status column. It returns the updated row.
func (s *SQLiteStore) UpdateRank(
	ctx context.Context,
	id string,
	r rank.Rank,
	dest *model.ColumnKey,
) (*model.Task, error) {
	update := RankUpdate{ID: id, Rank: r}
	if dest != nil {
		update.Status = dest.Status
	}

	updated, err := s.UpdateRanksBulk(ctx, []RankUpdate{update})
	if err != nil {
		return nil, err
	}
	return &updated[0], nil
}

// UpdateRanksBulk applies updates in order inside one transaction and
// returns the updated rows in the same order.
func (s *SQLiteStore) UpdateRanksBulk(
	ctx context.Context,
	updates []RankUpdate,
) ([]model.Task, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	out := make([]model.Task, 0, len(updates))
	for _, u := range updates {
		if u.Rank.IsZero() {
			return nil, fmt.Errorf("updating rank of task %s: %w", u.ID, rank.ErrInvalidRank)
		}

		var result sql.Result
		if u.Status != "" {
			if !model.ValidStatus(u.Status) {
				return nil, fmt.Errorf("unknown task status %q", u.Status)
			}
			result, err = tx.ExecContext(ctx,
				"UPDATE tasks SET rank = ?, status = ?, updated_at = ? WHERE id = ?",
				u.Rank.String(), u.Status, now, u.ID)
		} else {
			result, err = tx.ExecContext(ctx,
				"UPDATE tasks SET rank = ?, updated_at = ? WHERE id = ?",
				u.Rank.String(), now, u.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("updating rank of task %s: %w", u.ID, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return nil, fmt.Errorf("task %s: %w", u.ID, ErrNotFound)
		}

		task, err := getTask(ctx, tx, u.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rank updates: %w", err)
	}
	return out, nil
}
