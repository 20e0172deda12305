package pulse

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

func newTestTracker(t *testing.T) (*Tracker, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return NewTracker(s, 0), s
}

func TestSnapshot_EmptyWhenAbsent(t *testing.T) {
	tr, _ := newTestTracker(t)

	snapshot, err := tr.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestUpdate_WritesOwnEntry(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	err := tr.Update(ctx, models.PulseEntry{
		AgentID:     "agent-1",
		DisplayName: "BlueLake",
		Status:      models.AgentStatusActive,
		CurrentFile: "src/auth.go",
	})
	require.NoError(t, err)

	snapshot, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, snapshot, "agent-1")
	entry := snapshot["agent-1"]
	assert.Equal(t, "src/auth.go", entry.CurrentFile)
	assert.Equal(t, models.AgentStatusActive, entry.Status)
	assert.False(t, entry.LastUpdate.IsZero())
}

func TestUpdate_RequiresAgentID(t *testing.T) {
	tr, _ := newTestTracker(t)

	err := tr.Update(context.Background(), models.PulseEntry{Status: models.AgentStatusIdle})
	assert.Error(t, err)
}

func TestUpdate_OverwritesOwnEntry(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Update(ctx, models.PulseEntry{AgentID: "agent-1", Status: models.AgentStatusActive, CurrentFile: "a.go"}))
	require.NoError(t, tr.Update(ctx, models.PulseEntry{AgentID: "agent-1", Status: models.AgentStatusIdle}))

	snapshot, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, models.AgentStatusIdle, snapshot["agent-1"].Status)
	assert.Empty(t, snapshot["agent-1"].CurrentFile)
}

func TestUpdate_PreservesOtherFreshEntries(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Update(ctx, models.PulseEntry{AgentID: "agent-1", Status: models.AgentStatusActive}))
	require.NoError(t, tr.Update(ctx, models.PulseEntry{AgentID: "agent-2", Status: models.AgentStatusActive}))

	snapshot, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot, 2)
}

func TestUpdate_PrunesStaleEntries(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	base := time.Now().UTC()

	// agent-1 heartbeats, then time advances past the staleness window.
	tr.now = func() time.Time { return base.Add(-20 * time.Minute) }
	require.NoError(t, tr.Update(ctx, models.PulseEntry{AgentID: "agent-1", Status: models.AgentStatusActive}))

	// agent-2's write prunes agent-1's stale entry, never its own.
	tr.now = func() time.Time { return base }
	require.NoError(t, tr.Update(ctx, models.PulseEntry{AgentID: "agent-2", Status: models.AgentStatusActive}))

	snapshot, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotContains(t, snapshot, "agent-1")
	assert.Contains(t, snapshot, "agent-2")
}

func TestUpdate_NeverPrunesWriterOwnEntry(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	base := time.Now().UTC()

	tr.now = func() time.Time { return base.Add(-30 * time.Minute) }
	require.NoError(t, tr.Update(ctx, models.PulseEntry{AgentID: "agent-1", Status: models.AgentStatusActive}))

	// The same agent updating much later keeps its own (previously stale)
	// slot; the fresh write replaces it.
	tr.now = func() time.Time { return base }
	require.NoError(t, tr.Update(ctx, models.PulseEntry{AgentID: "agent-1", Status: models.AgentStatusIdle}))

	snapshot, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, snapshot, "agent-1")
	assert.Equal(t, base, snapshot["agent-1"].LastUpdate)
}

func TestUpdate_DefaultsStatusToActive(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Update(ctx, models.PulseEntry{AgentID: "agent-1"}))

	snapshot, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusActive, snapshot["agent-1"].Status)
}
