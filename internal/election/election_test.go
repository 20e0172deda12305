package election

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

type fakePulses struct {
	snapshot models.SwarmPulse
}

func (f *fakePulses) Snapshot(ctx context.Context) (models.SwarmPulse, error) {
	return f.snapshot, nil
}

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return New(s, nil, time.Minute), s
}

func TestElect_FirstAgentWins(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)
	assert.True(t, res.Won)
	require.NotNil(t, res.Leader)
	assert.Equal(t, "agent-a", res.Leader.AgentID)

	rec, found, err := m.Info(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "BlueLake", rec.DisplayName)
}

func TestElect_SecondAgentBecomesExecutor(t *testing.T) {
	// Agent A elects at t=0, agent B tries 10s later while A's heartbeat
	// is fresh: B must learn "already leader: A", never a second leader.
	m, _ := newTestManager(t)
	ctx := context.Background()

	base := time.Now().UTC()
	m.now = func() time.Time { return base }

	res, err := m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)
	require.True(t, res.Won)

	m.now = func() time.Time { return base.Add(10 * time.Second) }
	res, err = m.Elect(ctx, "agent-b", "RedHill", "darwin")
	require.NoError(t, err)
	assert.False(t, res.Won)
	require.NotNil(t, res.Leader)
	assert.Equal(t, "agent-a", res.Leader.AgentID)
}

func TestElect_TakesOverStaleRecord(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	base := time.Now().UTC()
	m.now = func() time.Time { return base }

	_, err := m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)

	// Past the election timeout without a heartbeat, the record is stale.
	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	res, err := m.Elect(ctx, "agent-b", "RedHill", "darwin")
	require.NoError(t, err)
	assert.True(t, res.Won)
	assert.Equal(t, "agent-b", res.Leader.AgentID)
}

func TestElect_SelfReelectionRenews(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	base := time.Now().UTC()
	m.now = func() time.Time { return base }

	res, err := m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)
	require.True(t, res.Won)
	electedAt := res.Leader.ElectedAt

	m.now = func() time.Time { return base.Add(30 * time.Second) }
	res, err = m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)
	assert.True(t, res.Won)
	assert.Equal(t, electedAt, res.Leader.ElectedAt, "election time survives renewal")
	assert.True(t, res.Leader.LastHeartbeat.After(electedAt))
}

func TestHeartbeat_OnlyHolderRenews(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)

	hb, err := m.Heartbeat(ctx, "agent-a")
	require.NoError(t, err)
	assert.True(t, hb.Renewed)

	// A mismatched caller is rejected, not errored: it means leadership
	// changed and the result names the holder.
	hb, err = m.Heartbeat(ctx, "agent-b")
	require.NoError(t, err)
	assert.False(t, hb.Renewed)
	require.NotNil(t, hb.Leader)
	assert.Equal(t, "agent-a", hb.Leader.AgentID)
}

func TestHeartbeat_NoRecord(t *testing.T) {
	m, _ := newTestManager(t)

	hb, err := m.Heartbeat(context.Background(), "agent-a")
	require.NoError(t, err)
	assert.False(t, hb.Renewed)
	assert.Nil(t, hb.Leader)
}

func TestResign(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)

	// Non-holder resign is a no-op.
	ok, err := m.Resign(ctx, "agent-b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := m.Info(ctx)
	require.NoError(t, err)
	assert.True(t, found)

	ok, err = m.Resign(ctx, "agent-a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, err = m.Info(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	// Resigning twice is a no-op.
	ok, err = m.Resign(ctx, "agent-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInfo_StaleRecordNotFound(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	base := time.Now().UTC()
	m.now = func() time.Time { return base }

	_, err := m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(5 * time.Minute) }
	_, found, err := m.Info(ctx)
	require.NoError(t, err)
	assert.False(t, found, "stale record is equivalent to absent")
}

func TestElect_EmitsEventOnlyOnTakeover(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-time.Second)

	_, err := m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)

	// Self-renewal is not a new election.
	_, err = m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)

	events, err := s.PollEvents(ctx, start, []string{models.EventOrchestratorElected})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestExecutors(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	now := time.Now().UTC()
	pulses := &fakePulses{snapshot: models.SwarmPulse{
		"agent-a": {AgentID: "agent-a", DisplayName: "BlueLake", LastUpdate: now},
		"agent-b": {AgentID: "agent-b", DisplayName: "RedHill", LastUpdate: now},
		"agent-c": {AgentID: "agent-c", DisplayName: "OldCrow", LastUpdate: now.Add(-10 * time.Minute)},
	}}

	m := New(s, pulses, time.Minute)
	ctx := context.Background()

	_, err = m.Elect(ctx, "agent-a", "BlueLake", "linux")
	require.NoError(t, err)

	// Leader excluded, stale pulse excluded, rest sorted by display name.
	executors, err := m.Executors(ctx)
	require.NoError(t, err)
	require.Len(t, executors, 1)
	assert.Equal(t, "RedHill", executors[0].DisplayName)
}
