// Package reorder moves tasks within and between board columns.
//
// A move computes one new rank from the destination column, writes it, and
// re-reads the column. Concurrent moves are not locked against each other:
// if the re-read shows duplicate ranks the whole column is rewritten with
// fresh ranks in its current order.
package reorder

import (
	"context"
	"errors"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/rank"
	"github.com/nhle/taskboard/internal/store"
)

// Store is the persistence the coordinator needs.
type Store interface {
	GetProjectByID(ctx context.Context, id string) (*model.Project, error)
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	FindColumnOrderedByRank(ctx context.Context, col model.ColumnKey) ([]model.Task, error)
	UpdateRank(ctx context.Context, id string, r rank.Rank, dest *model.ColumnKey) (*model.Task, error)
	UpdateRanksBulk(ctx context.Context, updates []store.RankUpdate) ([]model.Task, error)
}

// Coordinator runs reorder operations. It holds no per-column state and
// is safe for concurrent use.
type Coordinator struct {
	store         Store
	maxRankLength int
	concurrency   int
	logger        log.FieldLogger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxRankLength sets the rank length above which a move rebalances the
// destination column. Columns too large for fresh ranks to fit under n are
// held to rank.LengthLimit instead.
func WithMaxRankLength(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxRankLength = n
		}
	}
}

// WithRebalanceConcurrency bounds parallel column rewrites in
// RebalanceProject.
func WithRebalanceConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger replaces the standard logrus logger.
func WithLogger(l log.FieldLogger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Coordinator over st.
func New(st Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         st,
		maxRankLength: model.DefaultRankMaxLength,
		concurrency:   model.DefaultRebalanceConcurrency,
		logger:        log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reorder moves req.TaskID to req.Index of the destination column.
func (c *Coordinator) Reorder(ctx context.Context, req Request) (*Result, error) {
	// Validating.
	task, dest, err := c.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	var destPtr *model.ColumnKey
	if dest != task.Column() {
		destPtr = &dest
	}

	// Loaded.
	column, err := c.store.FindColumnOrderedByRank(ctx, dest)
	if err != nil {
		return nil, err
	}
	others := withoutTask(column, task.ID)

	// RankComputed.
	items, err := parseItems(others)
	if err != nil {
		return c.forceRebalance(ctx, task, dest, others, req.Index, ReasonDataIntegrity,
			&DataIntegrityError{Column: dest, Err: err})
	}
	newRank, err := rank.CalculateNewRank(items, task.ID, req.Index)
	if err != nil {
		return c.forceRebalance(ctx, task, dest, others, req.Index, ReasonDataIntegrity,
			&DataIntegrityError{Column: dest, Err: err})
	}
	if limit := rank.LengthLimit(len(others)+1, c.maxRankLength); newRank.Len() > limit {
		c.logger.WithFields(log.Fields{
			"column": dest.String(),
			"task":   task.ID,
			"length": newRank.Len(),
			"limit":  limit,
		}).Warn("rank exceeds length threshold")
		return c.forceRebalance(ctx, task, dest, others, req.Index, ReasonRankLength, nil)
	}

	// Persisted.
	moved := task
	if destPtr != nil || task.Rank != newRank.String() {
		moved, err = c.store.UpdateRank(ctx, task.ID, newRank, destPtr)
		if err != nil {
			return nil, err
		}
	}

	// Verifying.
	column, err = c.store.FindColumnOrderedByRank(ctx, dest)
	if err != nil {
		return nil, err
	}
	reason := verify(column)
	if reason == ReasonNone {
		c.logger.WithFields(log.Fields{
			"column": dest.String(),
			"task":   task.ID,
			"rank":   moved.Rank,
		}).Debug("task reordered")
		return &Result{Moved: *moved, Affected: []model.Task{}, Outcome: OutcomeClean}, nil
	}

	// Rebalancing.
	updated, err := c.rewrite(ctx, orderColumn(column), "", "")
	if err != nil {
		return nil, err
	}
	c.logRebalance(dest, reason, len(updated))
	return splitMoved(*moved, updated, reason), nil
}

// validate loads the task and resolves the destination column.
func (c *Coordinator) validate(ctx context.Context, req Request) (*model.Task, model.ColumnKey, error) {
	if req.Index < 0 {
		return nil, model.ColumnKey{}, invalidRequest("negative index %d", req.Index)
	}

	task, err := c.store.GetTaskByID(ctx, req.TaskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.ColumnKey{}, fmt.Errorf("task %s: %w", req.TaskID, ErrNotFound)
	}
	if err != nil {
		return nil, model.ColumnKey{}, err
	}

	dest := req.Column
	if dest.ProjectID == "" {
		dest.ProjectID = task.ProjectID
	}
	if dest.Status == "" {
		dest.Status = task.Status
	}
	if dest.ProjectID != task.ProjectID {
		return nil, model.ColumnKey{}, invalidRequest(
			"task %s does not belong to project %s", task.ID, dest.ProjectID)
	}
	if !model.ValidStatus(dest.Status) {
		return nil, model.ColumnKey{}, invalidRequest("unknown status %q", dest.Status)
	}

	project, err := c.store.GetProjectByID(ctx, task.ProjectID)
	if err != nil {
		return nil, model.ColumnKey{}, err
	}
	if project.Archived {
		return nil, model.ColumnKey{}, invalidRequest("project %s is archived", project.ID)
	}
	if req.RequesterID != "" && req.RequesterID != project.OwnerID {
		return nil, model.ColumnKey{}, invalidRequest(
			"requester %s does not own project %s", req.RequesterID, project.ID)
	}

	return task, dest, nil
}

// forceRebalance rewrites dest with task placed at index, without first
// storing a single-row rank. cause is logged and only returned if the
// rewrite fails.
func (c *Coordinator) forceRebalance(
	ctx context.Context,
	task *model.Task,
	dest model.ColumnKey,
	others []model.Task,
	index int,
	reason Reason,
	cause error,
) (*Result, error) {
	if cause != nil {
		c.logger.WithError(cause).WithFields(log.Fields{
			"column": dest.String(),
			"task":   task.ID,
		}).Warn("rank contract broken, rebalancing column")
	}

	ordered := orderColumn(others)
	if index > len(ordered) {
		index = len(ordered)
	}
	ordered = slices.Insert(ordered, index, *task)

	status := ""
	if dest != task.Column() {
		status = dest.Status
	}
	updated, err := c.rewrite(ctx, ordered, task.ID, status)
	if err != nil {
		if cause != nil {
			return nil, errors.Join(cause, err)
		}
		return nil, err
	}
	c.logRebalance(dest, reason, len(updated))
	return splitMoved(*task, updated, reason), nil
}

func (c *Coordinator) logRebalance(col model.ColumnKey, reason Reason, rewritten int) {
	c.logger.WithFields(log.Fields{
		"column":    col.String(),
		"reason":    reason.String(),
		"rewritten": rewritten,
	}).Warn("rebalanced column")
}

// splitMoved separates the moved task's row from the other updated rows.
func splitMoved(moved model.Task, updated []model.Task, reason Reason) *Result {
	res := &Result{
		Moved:    moved,
		Affected: []model.Task{},
		Outcome:  OutcomeRebalanced,
		Reason:   reason,
	}
	for _, t := range updated {
		if t.ID == moved.ID {
			res.Moved = t
			continue
		}
		res.Affected = append(res.Affected, t)
	}
	return res
}

func withoutTask(tasks []model.Task, id string) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func parseItems(tasks []model.Task) ([]rank.Item, error) {
	items := make([]rank.Item, len(tasks))
	for i, t := range tasks {
		r, err := rank.Parse(t.Rank)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		items[i] = rank.Item{ID: t.ID, Rank: r}
	}
	return items, nil
}

// verify inspects a freshly read column and reports why it needs a
// rebalance, if at all.
func verify(column []model.Task) Reason {
	for i, t := range column {
		if _, err := rank.Parse(t.Rank); err != nil {
			return ReasonDataIntegrity
		}
		if i > 0 && column[i-1].Rank == t.Rank {
			return ReasonCollision
		}
	}
	return ReasonNone
}
