// Package eventlog is the swarm's append-only broadcast channel. It
// carries task auctions and free-form broadcasts; delivery is pull-only,
// consumers poll by timestamp and remember what they have seen.
package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

// Log appends to and polls the shared event sequence.
type Log struct {
	store store.Store
}

// New creates a log over the given store.
func New(s store.Store) *Log {
	return &Log{store: s}
}

// Append writes one event. Events are immutable once written and
// ordered by timestamp, ties broken by insertion order.
func (l *Log) Append(ctx context.Context, eventType string, payload map[string]any) (*models.SwarmEvent, error) {
	if eventType == "" {
		return nil, fmt.Errorf("append: event type is required")
	}
	return l.store.AppendEvent(ctx, eventType, payload)
}

// Poll returns events with ts strictly after since, oldest first. An
// empty types filter matches everything. Polling is the only delivery
// mechanism; callers track the last timestamp they have seen.
func (l *Log) Poll(ctx context.Context, since time.Time, types []string) ([]*models.SwarmEvent, error) {
	return l.store.PollEvents(ctx, since, types)
}

// AnnounceTask opens an auction for a task. The log performs no
// matching or award; resolution is up to whoever polls the bids.
func (l *Log) AnnounceTask(ctx context.Context, taskID, title string, requiredCapabilities []string) (*models.SwarmEvent, error) {
	if taskID == "" {
		return nil, fmt.Errorf("announce: task id is required")
	}
	return l.store.AppendEvent(ctx, models.EventTaskAnnounced, map[string]any{
		"task_id":               taskID,
		"title":                 title,
		"required_capabilities": requiredCapabilities,
	})
}

// Bid records an agent's offer on an announced task.
func (l *Log) Bid(ctx context.Context, taskID, agent string, capabilities []string) (*models.SwarmEvent, error) {
	if taskID == "" || agent == "" {
		return nil, fmt.Errorf("bid: task id and agent are required")
	}
	return l.store.AppendEvent(ctx, models.EventTaskBid, map[string]any{
		"task_id":      taskID,
		"agent":        agent,
		"capabilities": capabilities,
	})
}

// Broadcast sends a free-form message to the whole swarm.
func (l *Log) Broadcast(ctx context.Context, from, message string) (*models.SwarmEvent, error) {
	if message == "" {
		return nil, fmt.Errorf("broadcast: message is required")
	}
	return l.store.AppendEvent(ctx, models.EventBroadcast, map[string]any{
		"from":    from,
		"message": message,
	})
}
