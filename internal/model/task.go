package model

import (
	"fmt"
	"time"
)

// Board status constants. Each status is one column of a project.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
)

// Statuses lists every board column in display order.
var Statuses = []string{StatusOpen, StatusInProgress, StatusReview, StatusDone}

// Normalized priority constants (lower number = higher priority).
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
	PriorityLowest   = 5
)

// ValidStatus reports whether s names a board column.
func ValidStatus(s string) bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// ColumnKey identifies one ordered column: a project's status lane.
// Ranks are only comparable within a single column.
type ColumnKey struct {
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
}

func (k ColumnKey) String() string {
	return fmt.Sprintf("%s/%s", k.ProjectID, k.Status)
}

// Task is a card on a project board.
type Task struct {
	ID          string    `json:"id" db:"id"`
	ProjectID   string    `json:"project_id" db:"project_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status" db:"status"`
	Priority    int       `json:"priority" db:"priority"`

	// Rank is the stored sort key within the task's column. It is kept as
	// the raw string so malformed rows can still be loaded and repaired.
	Rank string `json:"rank" db:"rank"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Column returns the key of the column the task currently sits in.
func (t Task) Column() ColumnKey {
	return ColumnKey{ProjectID: t.ProjectID, Status: t.Status}
}
