package reorder

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/rank"
	"github.com/nhle/taskboard/internal/store"
)

// RebalanceColumn assigns fresh ranks to every task of col, keeping the
// current order. Only tasks whose rank changes are written; those are
// returned in column order. It is also how an unranked or imported column
// gets its initial ranks.
func (c *Coordinator) RebalanceColumn(ctx context.Context, col model.ColumnKey) ([]model.Task, error) {
	if !model.ValidStatus(col.Status) {
		return nil, invalidRequest("unknown status %q", col.Status)
	}
	column, err := c.store.FindColumnOrderedByRank(ctx, col)
	if err != nil {
		return nil, err
	}

	updated, err := c.rewrite(ctx, orderColumn(column), "", "")
	if err != nil {
		return nil, err
	}
	if len(updated) > 0 {
		c.logRebalance(col, ReasonRequested, len(updated))
	}
	return updated, nil
}

// RebalanceProject runs RebalanceColumn for every status column of the
// project, a bounded number at a time. Results are grouped by column in
// model.Statuses order.
func (c *Coordinator) RebalanceProject(ctx context.Context, projectID string) ([]model.Task, error) {
	if _, err := c.store.GetProjectByID(ctx, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalidRequest("unknown project %s", projectID)
		}
		return nil, err
	}

	perColumn := make([][]model.Task, len(model.Statuses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, status := range model.Statuses {
		i := i
		col := model.ColumnKey{ProjectID: projectID, Status: status}
		g.Go(func() error {
			updated, err := c.RebalanceColumn(gctx, col)
			if err != nil {
				return fmt.Errorf("rebalancing column %s: %w", col, err)
			}
			perColumn[i] = updated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.Task
	for _, tasks := range perColumn {
		out = append(out, tasks...)
	}
	c.logger.WithFields(log.Fields{
		"project":   projectID,
		"rewritten": len(out),
	}).Info("rebalanced project")
	return out, nil
}

// rewrite assigns GenerateRanks order to ordered and persists the rows
// whose rank changed. movedStatus, when set, is written for movedID even if
// its rank stays the same.
func (c *Coordinator) rewrite(
	ctx context.Context,
	ordered []model.Task,
	movedID string,
	movedStatus string,
) ([]model.Task, error) {
	items := make([]rank.Item, len(ordered))
	for i, t := range ordered {
		items[i] = rank.Item{ID: t.ID}
	}
	assignments := rank.InitializeRanks(items)

	var updates []store.RankUpdate
	for i, a := range assignments {
		moving := a.ID == movedID && movedStatus != ""
		if ordered[i].Rank == a.Rank.String() && !moving {
			continue
		}
		u := store.RankUpdate{ID: a.ID, Rank: a.Rank}
		if moving {
			u.Status = movedStatus
		}
		updates = append(updates, u)
	}
	if len(updates) == 0 {
		return []model.Task{}, nil
	}
	return c.store.UpdateRanksBulk(ctx, updates)
}

// orderColumn sorts tasks by rank. Rows with malformed ranks cannot be
// parsed, so for those columns the raw strings are compared instead; both
// orders are byte-wise and stable.
func orderColumn(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	items, err := parseItems(tasks)
	if err != nil {
		copy(out, tasks)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
		return out
	}

	byID := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	for i, it := range rank.SortByRank(items) {
		out[i] = byID[it.ID]
	}
	return out
}
