// Package sweep rebalances board columns in the background before moves
// run into collisions or over-long ranks.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/rank"
)

// runTimeout bounds a single pass over all projects.
const runTimeout = 2 * time.Minute

// Store is what the sweeper reads.
type Store interface {
	GetProjects(ctx context.Context, includeArchived bool) ([]model.Project, error)
	FindColumnOrderedByRank(ctx context.Context, col model.ColumnKey) ([]model.Task, error)
}

// Rebalancer rewrites one column.
type Rebalancer interface {
	RebalanceColumn(ctx context.Context, col model.ColumnKey) ([]model.Task, error)
}

// Status describes the last completed pass.
type Status struct {
	Running    bool
	LastRun    time.Time
	Rebalanced int
	Err        error
}

// Sweeper periodically scans every column of every active project.
type Sweeper struct {
	store      Store
	rebalancer Rebalancer
	interval   time.Duration
	maxLength  int
	logger     log.FieldLogger

	// OnRebalance, when set, is called for every column the sweeper
	// rewrote.
	OnRebalance func(ctx context.Context, col model.ColumnKey, updated []model.Task)

	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}

	mu      sync.Mutex
	started bool
	running bool
	status  Status
}

// New creates a Sweeper. Columns holding a rank longer than maxLength, a
// malformed rank, or two equal ranks are rebalanced.
func New(st Store, rb Rebalancer, interval time.Duration, maxLength int, logger log.FieldLogger) *Sweeper {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Sweeper{
		store:      st,
		rebalancer: rb,
		interval:   interval,
		maxLength:  maxLength,
		logger:     logger,
		triggerCh:  make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately; a non-positive
// interval leaves the sweeper idle. A stopped Sweeper does not restart.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.started || s.interval <= 0 {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.running = true
	s.mu.Unlock()

	go s.loop()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

// Trigger requests an immediate pass. It never blocks.
func (s *Sweeper) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the state of the last pass.
func (s *Sweeper) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sweeper) loop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		case <-s.triggerCh:
		}

		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		go func() {
			select {
			case <-s.stopCh:
				cancel()
			case <-ctx.Done():
			}
		}()
		_, _ = s.RunOnce(ctx)
		cancel()
	}
}

// RunOnce performs a single pass and returns how many columns it rewrote.
// A failing column is logged and skipped; the first such error is returned
// after the pass completes.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	s.setRunning()

	projects, err := s.store.GetProjects(ctx, false)
	if err != nil {
		err = fmt.Errorf("listing projects: %w", err)
		s.finish(0, err)
		return 0, err
	}

	var firstErr error
	rebalanced := 0
	for _, p := range projects {
		for _, status := range model.Statuses {
			if ctx.Err() != nil {
				s.finish(rebalanced, ctx.Err())
				return rebalanced, ctx.Err()
			}
			col := model.ColumnKey{ProjectID: p.ID, Status: status}
			done, err := s.sweepColumn(ctx, col)
			if err != nil {
				s.logger.WithError(err).WithField("column", col.String()).Error("sweeping column")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if done {
				rebalanced++
			}
		}
	}

	s.finish(rebalanced, firstErr)
	if rebalanced > 0 {
		s.logger.WithField("columns", rebalanced).Info("sweep rebalanced columns")
	}
	return rebalanced, firstErr
}

func (s *Sweeper) sweepColumn(ctx context.Context, col model.ColumnKey) (bool, error) {
	tasks, err := s.store.FindColumnOrderedByRank(ctx, col)
	if err != nil {
		return false, err
	}
	if !NeedsRebalance(tasks, s.maxLength) {
		return false, nil
	}

	updated, err := s.rebalancer.RebalanceColumn(ctx, col)
	if err != nil {
		return false, err
	}
	if s.OnRebalance != nil && len(updated) > 0 {
		s.OnRebalance(ctx, col, updated)
	}
	return len(updated) > 0, nil
}

// NeedsRebalance reports whether a column read in rank order holds a
// malformed rank, a duplicate rank, or a rank longer than
// rank.LengthLimit allows for a column of its size.
func NeedsRebalance(tasks []model.Task, maxLength int) bool {
	limit := 0
	if maxLength > 0 {
		limit = rank.LengthLimit(len(tasks), maxLength)
	}
	for i, t := range tasks {
		if !rank.Validate(t.Rank) || t.Rank == "" {
			return true
		}
		if limit > 0 && len(t.Rank) > limit {
			return true
		}
		if i > 0 && tasks[i-1].Rank == t.Rank {
			return true
		}
	}
	return false
}

func (s *Sweeper) setRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = true
}

func (s *Sweeper) finish(rebalanced int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{
		LastRun:    time.Now(),
		Rebalanced: rebalanced,
		Err:        err,
	}
}
