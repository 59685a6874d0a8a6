// Package broadcast tells other clients that a column's order changed.
package broadcast

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/reorder"
)

// EventTaskReordered is the Type of every reorder event.
const EventTaskReordered = "task_reordered"

// Event is the JSON payload published after a reorder or rebalance.
type Event struct {
	Type      string       `json:"type"`
	ProjectID string       `json:"project_id"`
	Status    string       `json:"status"`
	Moved     *model.Task  `json:"moved,omitempty"`
	Affected  []model.Task `json:"affected"`
	Outcome   string       `json:"outcome,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

// Publisher sends reorder events. The HTTP layer depends on this interface
// so the server also runs without Redis.
type Publisher interface {
	PublishReorder(ctx context.Context, col model.ColumnKey, res *reorder.Result) error
	PublishRebalance(ctx context.Context, col model.ColumnKey, updated []model.Task) error
}

// RedisPublisher publishes events to one Redis channel.
type RedisPublisher struct {
	rc      *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher over rc.
func NewRedisPublisher(rc *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = model.DefaultRedisChannel
	}
	return &RedisPublisher{rc: rc, channel: channel}
}

// Channel returns the Redis channel events go to.
func (p *RedisPublisher) Channel() string { return p.channel }

// PublishReorder announces the moved task and every task whose rank changed
// with it.
func (p *RedisPublisher) PublishReorder(ctx context.Context, col model.ColumnKey, res *reorder.Result) error {
	moved := res.Moved
	return p.publish(ctx, Event{
		Type:      EventTaskReordered,
		ProjectID: col.ProjectID,
		Status:    col.Status,
		Moved:     &moved,
		Affected:  nonNil(res.Affected),
		Outcome:   res.Outcome.String(),
		Reason:    res.Reason.String(),
	})
}

// PublishRebalance announces a column rewrite that had no moved task.
func (p *RedisPublisher) PublishRebalance(ctx context.Context, col model.ColumnKey, updated []model.Task) error {
	if len(updated) == 0 {
		return nil
	}
	return p.publish(ctx, Event{
		Type:      EventTaskReordered,
		ProjectID: col.ProjectID,
		Status:    col.Status,
		Affected:  updated,
		Outcome:   reorder.OutcomeRebalanced.String(),
		Reason:    reorder.ReasonRequested.String(),
	})
}

func (p *RedisPublisher) publish(ctx context.Context, ev Event) error {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}
	if err := p.rc.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.channel, err)
	}
	return nil
}

func nonNil(tasks []model.Task) []model.Task {
	if tasks == nil {
		return []model.Task{}
	}
	return tasks
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishReorder(context.Context, model.ColumnKey, *reorder.Result) error { return nil }

func (Nop) PublishRebalance(context.Context, model.ColumnKey, []model.Task) error { return nil }

var (
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = Nop{}
)
