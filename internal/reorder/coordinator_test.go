package reorder_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/rank"
	"github.com/nhle/taskboard/internal/reorder"
	"github.com/nhle/taskboard/internal/store"
	"github.com/nhle/taskboard/internal/testutil"
)

var errBoom = errors.New("boom")

// board is a test project with helpers for seeding columns.
type board struct {
	t       *testing.T
	store   *store.SQLiteStore
	project *model.Project
}

func newBoard(t *testing.T) *board {
	t.Helper()
	s := testutil.NewTestStore(t)
	p, err := s.CreateProject(context.Background(), model.Project{Name: "board", OwnerID: "owner"})
	require.NoError(t, err)
	return &board{t: t, store: s, project: p}
}

func (b *board) col(status string) model.ColumnKey {
	return model.ColumnKey{ProjectID: b.project.ID, Status: status}
}

// add inserts one task with a verbatim rank.
func (b *board) add(id, status, r string) {
	b.t.Helper()
	_, err := b.store.CreateTask(context.Background(), model.Task{
		ID:        id,
		ProjectID: b.project.ID,
		Title:     id,
		Status:    status,
		Rank:      r,
	})
	require.NoError(b.t, err)
}

func (b *board) ids(status string) []string {
	b.t.Helper()
	tasks, err := b.store.FindColumnOrderedByRank(context.Background(), b.col(status))
	require.NoError(b.t, err)
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.ID
	}
	return out
}

func (b *board) ranks(status string) []string {
	b.t.Helper()
	tasks, err := b.store.FindColumnOrderedByRank(context.Background(), b.col(status))
	require.NoError(b.t, err)
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.Rank
	}
	return out
}

func (b *board) move(c *reorder.Coordinator, id, status string, index int) *reorder.Result {
	b.t.Helper()
	res, err := c.Reorder(context.Background(), reorder.Request{
		TaskID: id,
		Column: b.col(status),
		Index:  index,
	})
	require.NoError(b.t, err)
	return res
}

func taskIDs(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func assertStrictlyIncreasing(t *testing.T, ranks []string) {
	t.Helper()
	for i := 1; i < len(ranks); i++ {
		assert.Less(t, ranks[i-1], ranks[i], "ranks %v not strictly increasing at %d", ranks, i)
	}
}

func hasEntry(hook *test.Hook, level logrus.Level, msg string, fields logrus.Fields) bool {
	for _, e := range hook.AllEntries() {
		if e.Level != level || e.Message != msg {
			continue
		}
		match := true
		for k, v := range fields {
			if e.Data[k] != v {
				match = false
			}
		}
		if match {
			return true
		}
	}
	return false
}

// staleStore hides one task from the first column read, as if another move
// committed between that read and this move's write.
type staleStore struct {
	*store.SQLiteStore
	hide  string
	reads int
}

func (s *staleStore) FindColumnOrderedByRank(ctx context.Context, col model.ColumnKey) ([]model.Task, error) {
	tasks, err := s.SQLiteStore.FindColumnOrderedByRank(ctx, col)
	s.reads++
	if err != nil || s.reads > 1 {
		return tasks, err
	}
	out := tasks[:0:0]
	for _, t := range tasks {
		if t.ID != s.hide {
			out = append(out, t)
		}
	}
	return out, nil
}

// faultyStore fails selected operations and counts single-row writes.
type faultyStore struct {
	*store.SQLiteStore
	failFind   bool
	failUpdate bool
	failBulk   bool
	updates    int
}

func (s *faultyStore) FindColumnOrderedByRank(ctx context.Context, col model.ColumnKey) ([]model.Task, error) {
	if s.failFind {
		return nil, errBoom
	}
	return s.SQLiteStore.FindColumnOrderedByRank(ctx, col)
}

func (s *faultyStore) UpdateRank(ctx context.Context, id string, r rank.Rank, dest *model.ColumnKey) (*model.Task, error) {
	s.updates++
	if s.failUpdate {
		return nil, errBoom
	}
	return s.SQLiteStore.UpdateRank(ctx, id, r, dest)
}

func (s *faultyStore) UpdateRanksBulk(ctx context.Context, updates []store.RankUpdate) ([]model.Task, error) {
	if s.failBulk {
		return nil, errBoom
	}
	return s.SQLiteStore.UpdateRanksBulk(ctx, updates)
}

func TestReorderIntoEmptyColumn(t *testing.T) {
	b := newBoard(t)
	b.add("X", model.StatusOpen, "W")
	c := reorder.New(b.store)

	res := b.move(c, "X", model.StatusReview, 0)

	assert.Equal(t, reorder.OutcomeClean, res.Outcome)
	assert.Equal(t, reorder.ReasonNone, res.Reason)
	assert.Equal(t, "U", res.Moved.Rank)
	assert.Equal(t, model.StatusReview, res.Moved.Status)
	assert.Empty(t, res.Affected)
	assert.Empty(t, b.ids(model.StatusOpen))
	assert.Equal(t, []string{"X"}, b.ids(model.StatusReview))
}

func TestReorderBetweenNeighbours(t *testing.T) {
	b := newBoard(t)
	b.add("A", model.StatusOpen, "U")
	b.add("B", model.StatusOpen, "V")
	b.add("X", model.StatusOpen, "W")
	c := reorder.New(b.store)

	res := b.move(c, "X", model.StatusOpen, 1)

	assert.Equal(t, reorder.OutcomeClean, res.Outcome)
	assert.Equal(t, "UU", res.Moved.Rank)
	assert.Equal(t, []string{"A", "X", "B"}, b.ids(model.StatusOpen))
}

func TestReorderOnlyTaskInColumn(t *testing.T) {
	b := newBoard(t)
	b.add("X", model.StatusOpen, "W")
	c := reorder.New(b.store)

	res := b.move(c, "X", model.StatusOpen, 0)

	assert.Equal(t, reorder.OutcomeClean, res.Outcome)
	assert.Equal(t, rank.Min().String(), res.Moved.Rank)
}

func TestReorderToTopAndBottom(t *testing.T) {
	b := newBoard(t)
	b.add("A", model.StatusOpen, "U")
	b.add("B", model.StatusOpen, "V")
	b.add("X", model.StatusOpen, "W")
	c := reorder.New(b.store)

	res := b.move(c, "X", model.StatusOpen, 0)
	assert.Equal(t, "T", res.Moved.Rank)
	assert.Equal(t, []string{"X", "A", "B"}, b.ids(model.StatusOpen))

	res = b.move(c, "X", model.StatusOpen, 99)
	assert.Equal(t, "W", res.Moved.Rank)
	assert.Equal(t, []string{"A", "B", "X"}, b.ids(model.StatusOpen))
}

func TestReorderSeparatesDuplicateRanks(t *testing.T) {
	b := newBoard(t)
	b.add("A", model.StatusOpen, "U")
	b.add("B", model.StatusOpen, "U")
	c := reorder.New(b.store)

	b.move(c, "B", model.StatusOpen, 1)

	assert.Equal(t, []string{"A", "B"}, b.ids(model.StatusOpen))
	assertStrictlyIncreasing(t, b.ranks(model.StatusOpen))
}

func TestReorderSameSlotSkipsWrite(t *testing.T) {
	b := newBoard(t)
	b.add("A", model.StatusOpen, "U")
	b.add("B", model.StatusOpen, "V")
	fs := &faultyStore{SQLiteStore: b.store}
	c := reorder.New(fs)

	res := b.move(c, "B", model.StatusOpen, 1)

	assert.Equal(t, reorder.OutcomeClean, res.Outcome)
	assert.Equal(t, "V", res.Moved.Rank)
	assert.Equal(t, 0, fs.updates)
	assert.Equal(t, []string{"A", "B"}, b.ids(model.StatusOpen))
}

func TestReorderAcrossColumns(t *testing.T) {
	b := newBoard(t)
	b.add("X", model.StatusOpen, "U")
	b.add("A", model.StatusReview, "U")
	c := reorder.New(b.store)

	res := b.move(c, "X", model.StatusReview, 1)

	assert.Equal(t, reorder.OutcomeClean, res.Outcome)
	assert.Equal(t, "V", res.Moved.Rank)
	assert.Equal(t, model.StatusReview, res.Moved.Status)
	assert.Equal(t, []string{"A", "X"}, b.ids(model.StatusReview))
	assert.Empty(t, b.ids(model.StatusOpen))

	// An empty destination status keeps the task in its column.
	res, err := c.Reorder(context.Background(), reorder.Request{TaskID: "X", Index: 0})
	require.NoError(t, err)
	assert.Equal(t, model.StatusReview, res.Moved.Status)
	assert.Equal(t, []string{"X", "A"}, b.ids(model.StatusReview))
}

func TestReorderCollisionRebalances(t *testing.T) {
	b := newBoard(t)
	b.add("A", model.StatusReview, "U")
	b.add("B", model.StatusReview, "V")
	b.add("C", model.StatusReview, "W")
	b.add("X", model.StatusOpen, "U")
	logger, hook := test.NewNullLogger()
	c := reorder.New(&staleStore{SQLiteStore: b.store, hide: "B"}, reorder.WithLogger(logger))

	// The stale read is [A:U, C:W], so X lands on V next to B.
	res := b.move(c, "X", model.StatusReview, 1)

	assert.Equal(t, reorder.OutcomeRebalanced, res.Outcome)
	assert.Equal(t, reorder.ReasonCollision, res.Reason)
	assert.Equal(t, "X", res.Moved.ID)
	assert.Equal(t, "W", res.Moved.Rank)
	assert.Equal(t, model.StatusReview, res.Moved.Status)
	assert.Equal(t, []string{"C"}, taskIDs(res.Affected))
	assert.Equal(t, "X", res.Affected[0].Rank)

	assert.Equal(t, []string{"A", "B", "X", "C"}, b.ids(model.StatusReview))
	assert.Equal(t, []string{"U", "V", "W", "X"}, b.ranks(model.StatusReview))
	assert.True(t, hasEntry(hook, logrus.WarnLevel, "rebalanced column", logrus.Fields{
		"reason":    "collision",
		"rewritten": 2,
	}))
}

func TestReorderMalformedRankForcesRebalance(t *testing.T) {
	b := newBoard(t)
	b.add("A", model.StatusOpen, "U")
	b.add("B", model.StatusOpen, "V!")
	b.add("X", model.StatusOpen, "W")
	logger, hook := test.NewNullLogger()
	c := reorder.New(b.store, reorder.WithLogger(logger))

	res := b.move(c, "X", model.StatusOpen, 1)

	assert.Equal(t, reorder.OutcomeRebalanced, res.Outcome)
	assert.Equal(t, reorder.ReasonDataIntegrity, res.Reason)
	assert.Equal(t, "V", res.Moved.Rank)
	assert.Equal(t, []string{"B"}, taskIDs(res.Affected))
	assert.Equal(t, []string{"A", "X", "B"}, b.ids(model.StatusOpen))
	assert.Equal(t, []string{"U", "V", "W"}, b.ranks(model.StatusOpen))
	assert.True(t, hasEntry(hook, logrus.WarnLevel, "rank contract broken, rebalancing column", logrus.Fields{
		"task": "X",
	}))
}

func TestReorderBeforeMinimumForcesRebalance(t *testing.T) {
	b := newBoard(t)
	b.add("A", model.StatusOpen, "0")
	b.add("B", model.StatusOpen, "U")
	b.add("X", model.StatusReview, "U")
	c := reorder.New(b.store)

	res := b.move(c, "X", model.StatusOpen, 0)

	assert.Equal(t, reorder.OutcomeRebalanced, res.Outcome)
	assert.Equal(t, reorder.ReasonDataIntegrity, res.Reason)
	assert.Equal(t, "U", res.Moved.Rank)
	assert.Equal(t, model.StatusOpen, res.Moved.Status)
	assert.Equal(t, []string{"A", "B"}, taskIDs(res.Affected))
	assert.Equal(t, []string{"X", "A", "B"}, b.ids(model.StatusOpen))
	assert.Empty(t, b.ids(model.StatusReview))
}

func TestReorderRankLengthThreshold(t *testing.T) {
	b := newBoard(t)
	b.add("A", model.StatusOpen, "U")
	b.add("B", model.StatusOpen, "V")
	b.add("X", model.StatusOpen, "W")
	logger, hook := test.NewNullLogger()
	c := reorder.New(b.store, reorder.WithMaxRankLength(1), reorder.WithLogger(logger))

	res := b.move(c, "X", model.StatusOpen, 1)

	assert.Equal(t, reorder.OutcomeRebalanced, res.Outcome)
	assert.Equal(t, reorder.ReasonRankLength, res.Reason)
	assert.Equal(t, "V", res.Moved.Rank)
	assert.Equal(t, []string{"B"}, taskIDs(res.Affected))
	assert.Equal(t, []string{"A", "X", "B"}, b.ids(model.StatusOpen))
	assert.True(t, hasEntry(hook, logrus.WarnLevel, "rank exceeds length threshold", logrus.Fields{
		"length": 2,
		"limit":  1,
	}))
}

func TestReorderLargeColumnStaysClean(t *testing.T) {
	ctx := context.Background()
	b := newBoard(t)
	const n = 1300
	for i, r := range rank.GenerateRanks(n) {
		b.add(fmt.Sprintf("t%04d", i), model.StatusOpen, r.String())
	}
	// Fresh ranks for this many tasks are longer than the default limit.
	require.Greater(t, rank.GeneratedLength(n), model.DefaultRankMaxLength)

	logger, hook := test.NewNullLogger()
	c := reorder.New(b.store, reorder.WithLogger(logger))

	updated, err := c.RebalanceColumn(ctx, b.col(model.StatusOpen))
	require.NoError(t, err)
	assert.Empty(t, updated)

	for _, id := range []string{"t0100", "t0200", "t0300"} {
		res := b.move(c, id, model.StatusOpen, 1250)
		assert.Equal(t, reorder.OutcomeClean, res.Outcome, "moving %s", id)
		assert.Empty(t, res.Affected)
	}
	assert.False(t, hasEntry(hook, logrus.WarnLevel, "rank exceeds length threshold", nil))

	ids := b.ids(model.StatusOpen)
	require.Len(t, ids, n)
	assert.Equal(t, []string{"t0100", "t0200", "t0300"}, ids[1248:1251])
	assertStrictlyIncreasing(t, b.ranks(model.StatusOpen))
}

func TestReorderInvalidRequests(t *testing.T) {
	ctx := context.Background()
	b := newBoard(t)
	b.add("X", model.StatusOpen, "U")
	other, err := b.store.CreateProject(ctx, model.Project{Name: "other", OwnerID: "owner"})
	require.NoError(t, err)
	c := reorder.New(b.store)

	tests := []struct {
		name string
		req  reorder.Request
	}{
		{"negative index", reorder.Request{TaskID: "X", Index: -1}},
		{"other project", reorder.Request{TaskID: "X", Column: model.ColumnKey{ProjectID: other.ID, Status: model.StatusOpen}}},
		{"unknown status", reorder.Request{TaskID: "X", Column: b.col("blocked")}},
		{"not the owner", reorder.Request{TaskID: "X", Column: b.col(model.StatusOpen), RequesterID: "intruder"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Reorder(ctx, tt.req)
			assert.ErrorIs(t, err, reorder.ErrInvalidRequest)
		})
	}

	_, err = c.Reorder(ctx, reorder.Request{TaskID: "X", Column: b.col(model.StatusDone), RequesterID: "owner"})
	assert.NoError(t, err)

	require.NoError(t, b.store.ArchiveProject(ctx, b.project.ID))
	_, err = c.Reorder(ctx, reorder.Request{TaskID: "X", Column: b.col(model.StatusOpen)})
	assert.ErrorIs(t, err, reorder.ErrInvalidRequest)
}

func TestReorderTaskNotFound(t *testing.T) {
	b := newBoard(t)
	c := reorder.New(b.store)

	_, err := c.Reorder(context.Background(), reorder.Request{TaskID: "ghost", Column: b.col(model.StatusOpen)})
	assert.ErrorIs(t, err, reorder.ErrNotFound)
}

func TestReorderPropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	b := newBoard(t)
	b.add("A", model.StatusOpen, "U")
	b.add("X", model.StatusOpen, "V")
	req := reorder.Request{TaskID: "X", Column: b.col(model.StatusOpen), Index: 0}

	_, err := reorder.New(&faultyStore{SQLiteStore: b.store, failFind: true}).Reorder(ctx, req)
	assert.ErrorIs(t, err, errBoom)

	_, err = reorder.New(&faultyStore{SQLiteStore: b.store, failUpdate: true}).Reorder(ctx, req)
	assert.ErrorIs(t, err, errBoom)

	// Nothing was written.
	assert.Equal(t, []string{"U", "V"}, b.ranks(model.StatusOpen))
}

func TestReorderFailedRepairReportsBothErrors(t *testing.T) {
	b := newBoard(t)
	b.add("A", model.StatusOpen, "V!")
	b.add("X", model.StatusOpen, "U")
	c := reorder.New(&faultyStore{SQLiteStore: b.store, failBulk: true})

	_, err := c.Reorder(context.Background(), reorder.Request{TaskID: "X", Column: b.col(model.StatusOpen), Index: 1})
	require.Error(t, err)

	var integrity *reorder.DataIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, b.col(model.StatusOpen), integrity.Column)
	assert.ErrorIs(t, err, rank.ErrInvalidRank)
	assert.ErrorIs(t, err, errBoom)
}

func TestReorderPreservesRequestedOrder(t *testing.T) {
	b := newBoard(t)
	pool := []string{"0", "U", "V", "W", "UU"}
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, id := range ids {
		b.add(id, model.StatusOpen, pool[rng.Intn(len(pool))])
	}
	c := reorder.New(b.store)

	for i := 0; i < 200; i++ {
		moved := ids[rng.Intn(len(ids))]
		index := rng.Intn(len(ids) + 1)

		want := slices.DeleteFunc(b.ids(model.StatusOpen), func(id string) bool { return id == moved })
		want = slices.Insert(want, min(index, len(want)), moved)

		b.move(c, moved, model.StatusOpen, index)

		require.Equal(t, want, b.ids(model.StatusOpen), "move %d: %s to %d", i, moved, index)
		assertStrictlyIncreasing(t, b.ranks(model.StatusOpen))
	}
}

func TestRebalanceColumn(t *testing.T) {
	ctx := context.Background()
	b := newBoard(t)
	b.add("A", model.StatusOpen, "0")
	b.add("B", model.StatusOpen, "0")
	b.add("C", model.StatusOpen, "V!")
	c := reorder.New(b.store)

	updated, err := c.RebalanceColumn(ctx, b.col(model.StatusOpen))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, taskIDs(updated))
	assert.Equal(t, []string{"U", "V", "W"}, b.ranks(model.StatusOpen))

	updated, err = c.RebalanceColumn(ctx, b.col(model.StatusOpen))
	require.NoError(t, err)
	assert.Empty(t, updated)

	_, err = c.RebalanceColumn(ctx, b.col("blocked"))
	assert.ErrorIs(t, err, reorder.ErrInvalidRequest)
}

func TestRebalanceProject(t *testing.T) {
	ctx := context.Background()
	b := newBoard(t)
	b.add("D1", model.StatusDone, "UU")
	b.add("O1", model.StatusOpen, "W")
	b.add("O2", model.StatusOpen, "W")
	b.add("R1", model.StatusReview, "U")
	c := reorder.New(b.store, reorder.WithRebalanceConcurrency(2))

	updated, err := c.RebalanceProject(ctx, b.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"O1", "O2", "D1"}, taskIDs(updated))
	assert.Equal(t, []string{"U", "V"}, b.ranks(model.StatusOpen))
	assert.Equal(t, []string{"U"}, b.ranks(model.StatusReview))
	assert.Equal(t, []string{"U"}, b.ranks(model.StatusDone))

	_, err = c.RebalanceProject(ctx, "missing")
	assert.ErrorIs(t, err, reorder.ErrInvalidRequest)

	_, err = reorder.New(&faultyStore{SQLiteStore: b.store, failFind: true}).RebalanceProject(ctx, b.project.ID)
	assert.ErrorIs(t, err, errBoom)
}
