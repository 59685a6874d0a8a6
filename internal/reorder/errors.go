package reorder

import (
	"errors"
	"fmt"

	"github.com/nhle/taskboard/internal/model"
)

var (
	// ErrNotFound is returned when the moved task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidRequest is returned when the request is out of scope for
	// the task: wrong project, unknown status, negative index, or a
	// requester that does not own the project.
	ErrInvalidRequest = errors.New("invalid reorder request")
)

// DataIntegrityError reports stored ranks that break the rank contract
// (malformed strings, duplicates that leave no room, or a rank that cannot
// be undercut). The coordinator repairs the column when it sees one; the
// error only reaches callers when that repair fails.
type DataIntegrityError struct {
	Column model.ColumnKey
	Err    error
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: column %s: %v", e.Column, e.Err)
}

func (e *DataIntegrityError) Unwrap() error { return e.Err }

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
