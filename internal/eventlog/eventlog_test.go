package eventlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestAppendAndPoll(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	ev1, err := l.Append(ctx, models.EventBroadcast, map[string]any{"message": "first"})
	require.NoError(t, err)
	ev2, err := l.Append(ctx, models.EventBroadcast, map[string]any{"message": "second"})
	require.NoError(t, err)

	events, err := l.Poll(ctx, time.Time{}, nil)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ev1.EventID, events[0].EventID)
	assert.Equal(t, ev2.EventID, events[1].EventID)
	assert.True(t, events[1].Seq > events[0].Seq)
}

func TestPoll_SinceIsStrict(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	ev, err := l.Append(ctx, models.EventBroadcast, map[string]any{"message": "old"})
	require.NoError(t, err)

	// Polling from the last seen timestamp never replays that event.
	events, err := l.Poll(ctx, ev.TS, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPoll_TypeFilter(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	_, err := l.AnnounceTask(ctx, "task-1", "fix parser", []string{"go"})
	require.NoError(t, err)
	_, err = l.Broadcast(ctx, "agent-a", "lunch")
	require.NoError(t, err)

	events, err := l.Poll(ctx, time.Time{}, []string{models.EventTaskAnnounced})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTaskAnnounced, events[0].Type)
	assert.Equal(t, "task-1", events[0].Payload["task_id"])
}

func TestAnnounceAndBid(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	_, err := l.AnnounceTask(ctx, "task-1", "fix parser", []string{"go", "parsing"})
	require.NoError(t, err)
	_, err = l.Bid(ctx, "task-1", "agent-a", []string{"go"})
	require.NoError(t, err)
	_, err = l.Bid(ctx, "task-1", "agent-b", []string{"go", "parsing"})
	require.NoError(t, err)

	bids, err := l.Poll(ctx, time.Time{}, []string{models.EventTaskBid})
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, "agent-a", bids[0].Payload["agent"])
	assert.Equal(t, "agent-b", bids[1].Payload["agent"])
}

func TestAppend_RequiresType(t *testing.T) {
	l := newTestLog(t)

	_, err := l.Append(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestBid_RequiresAgent(t *testing.T) {
	l := newTestLog(t)

	_, err := l.Bid(context.Background(), "task-1", "", nil)
	assert.Error(t, err)
}
