package health

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

func (f *fakePulses) Snapshot(context.Context) (models.SwarmPulse, error) {
	if f.snapshot == nil {
		return models.SwarmPulse{}, nil
	}
	return f.snapshot, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestMonitor(t *testing.T, pulses *fakePulses) (*Monitor, *store.SQLiteStore) {
	t.Helper()
	s := newTestStore(t)
	return NewMonitor(s, pulses), s
}

func entry(agentID string, lastUpdate time.Time, status models.AgentStatus) models.PulseEntry {
	return models.PulseEntry{
		AgentID:    agentID,
		Status:     status,
		LastUpdate: lastUpdate,
	}
}

func TestCheckHealth_NeverSeen(t *testing.T) {
	m, _ := newTestMonitor(t, &fakePulses{})

	h, err := m.CheckHealth(context.Background(), "agent-ghost", DefaultThreshold)
	require.NoError(t, err)

	assert.False(t, h.Alive)
	assert.Equal(t, "never", h.LastSeen)
	assert.Equal(t, "agent-ghost", h.AgentID)
}

func TestCheckHealth_StaleAgentIsDead(t *testing.T) {
	now := time.Now().UTC()
	pulses := &fakePulses{snapshot: models.SwarmPulse{
		"agent-1": entry("agent-1", now.Add(-40*time.Minute), models.AgentStatusActive),
	}}
	m, _ := newTestMonitor(t, pulses)
	m.now = func() time.Time { return now }

	h, err := m.CheckHealth(context.Background(), "agent-1", 30*time.Minute)
	require.NoError(t, err)

	assert.False(t, h.Alive)
	assert.Equal(t, 40, h.MinutesAgo)
}

func TestCheckHealth_AliveAfterFreshPulse(t *testing.T) {
	now := time.Now().UTC()
	pulses := &fakePulses{snapshot: models.SwarmPulse{
		"agent-1": entry("agent-1", now.Add(-40*time.Minute), models.AgentStatusActive),
	}}
	m, _ := newTestMonitor(t, pulses)
	m.now = func() time.Time { return now }

	h, err := m.CheckHealth(context.Background(), "agent-1", 30*time.Minute)
	require.NoError(t, err)
	require.False(t, h.Alive)

	// Agent pulses again: verdict flips back to alive.
	pulses.snapshot["agent-1"] = entry("agent-1", now, models.AgentStatusActive)

	h, err = m.CheckHealth(context.Background(), "agent-1", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, h.Alive)
	assert.Equal(t, 0, h.MinutesAgo)
}

func TestCheckHealth_OfflineStatusIsAlwaysDead(t *testing.T) {
	now := time.Now().UTC()
	pulses := &fakePulses{snapshot: models.SwarmPulse{
		"agent-1": entry("agent-1", now, models.AgentStatusOffline),
	}}
	m, _ := newTestMonitor(t, pulses)
	m.now = func() time.Time { return now }

	h, err := m.CheckHealth(context.Background(), "agent-1", 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, h.Alive, "offline agent is dead even with a fresh pulse")
}

func TestCheckHealth_MatchesByDisplayName(t *testing.T) {
	now := time.Now().UTC()
	e := entry("agent-1", now, models.AgentStatusActive)
	e.DisplayName = "BlueLake"
	pulses := &fakePulses{snapshot: models.SwarmPulse{"agent-1": e}}
	m, _ := newTestMonitor(t, pulses)
	m.now = func() time.Time { return now }

	h, err := m.CheckHealth(context.Background(), "BlueLake", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, h.Alive)
	assert.Equal(t, "agent-1", h.AgentID)
}

func TestListDeadAgents(t *testing.T) {
	now := time.Now().UTC()
	pulses := &fakePulses{snapshot: models.SwarmPulse{
		"agent-a": entry("agent-a", now.Add(-5*time.Minute), models.AgentStatusActive),
		"agent-b": entry("agent-b", now.Add(-45*time.Minute), models.AgentStatusActive),
		"agent-c": entry("agent-c", now.Add(-90*time.Minute), models.AgentStatusIdle),
	}}
	m, _ := newTestMonitor(t, pulses)
	m.now = func() time.Time { return now }

	report, err := m.ListDeadAgents(context.Background(), 30*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 1, report.AliveCount)
	assert.Equal(t, 2, report.DeadCount)
	require.Len(t, report.DeadAgents, 2)
	assert.Equal(t, "agent-b", report.DeadAgents[0].AgentID)
	assert.Equal(t, "agent-c", report.DeadAgents[1].AgentID)
}

func TestForceReassign_RefusedWhileAlive(t *testing.T) {
	now := time.Now().UTC()
	pulses := &fakePulses{snapshot: models.SwarmPulse{
		"agent-1": entry("agent-1", now.Add(-2*time.Minute), models.AgentStatusActive),
	}}
	m, s := newTestMonitor(t, pulses)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	task := &models.Task{Title: "fix parser"}
	require.NoError(t, s.CreateTask(ctx, task))
	claim, err := s.ClaimTask(ctx, task.ID, "agent-1")
	require.NoError(t, err)
	require.True(t, claim.OK)

	res, err := m.ForceReassign(ctx, task.ID, "agent-1", "agent-2", "suspected hang", 30*time.Minute)
	require.NoError(t, err)

	assert.False(t, res.Reassigned)
	assert.Contains(t, res.Reason, "still alive")

	// Task untouched by the refusal.
	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.Assignee)
}

func TestForceReassign_DeadAgent(t *testing.T) {
	now := time.Now().UTC()
	pulses := &fakePulses{snapshot: models.SwarmPulse{
		"agent-1": entry("agent-1", now.Add(-2*time.Hour), models.AgentStatusActive),
	}}
	m, s := newTestMonitor(t, pulses)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	task := &models.Task{Title: "fix parser"}
	require.NoError(t, s.CreateTask(ctx, task))
	claim, err := s.ClaimTask(ctx, task.ID, "agent-1")
	require.NoError(t, err)
	require.True(t, claim.OK)

	res, err := m.ForceReassign(ctx, task.ID, "agent-1", "agent-2", "no pulse for 2h", 30*time.Minute)
	require.NoError(t, err)

	assert.True(t, res.Reassigned)
	assert.Equal(t, "agent-2", res.NewAssignee)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-2", got.Assignee)
	assert.Equal(t, models.TaskStatusClaimed, got.Status)

	events, err := s.PollEvents(ctx, time.Time{}, []string{models.EventTaskReassigned})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, task.ID, events[0].Payload["task_id"])
}

func TestForceReassign_BackToOpen(t *testing.T) {
	pulses := &fakePulses{} // no pulse entry at all
	m, s := newTestMonitor(t, pulses)

	ctx := context.Background()
	task := &models.Task{Title: "fix parser"}
	require.NoError(t, s.CreateTask(ctx, task))
	claim, err := s.ClaimTask(ctx, task.ID, "agent-1")
	require.NoError(t, err)
	require.True(t, claim.OK)

	res, err := m.ForceReassign(ctx, task.ID, "agent-1", "", "gone", 30*time.Minute)
	require.NoError(t, err)
	require.True(t, res.Reassigned)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusOpen, got.Status)
	assert.Empty(t, got.Assignee)
}

func TestForceReassign_WrongHolder(t *testing.T) {
	pulses := &fakePulses{}
	m, s := newTestMonitor(t, pulses)

	ctx := context.Background()
	task := &models.Task{Title: "fix parser"}
	require.NoError(t, s.CreateTask(ctx, task))
	claim, err := s.ClaimTask(ctx, task.ID, "agent-other")
	require.NoError(t, err)
	require.True(t, claim.OK)

	res, err := m.ForceReassign(ctx, task.ID, "agent-1", "agent-2", "gone", 30*time.Minute)
	require.NoError(t, err)

	assert.False(t, res.Reassigned)
	assert.Contains(t, res.Reason, "not assigned to agent-1")
}

func TestSwarmSummary(t *testing.T) {
	now := time.Now().UTC()
	pulses := &fakePulses{snapshot: models.SwarmPulse{
		"agent-a": entry("agent-a", now, models.AgentStatusActive),
		"agent-b": entry("agent-b", now, models.AgentStatusIdle),
		"agent-c": entry("agent-c", now.Add(-time.Hour), models.AgentStatusActive),
	}}
	m, _ := newTestMonitor(t, pulses)
	m.now = func() time.Time { return now }

	sum, err := m.SwarmSummary(context.Background(), 30*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.TotalAgents)
	assert.Equal(t, 2, sum.AliveAgents)
	assert.Equal(t, 1, sum.DeadAgents)
	assert.Equal(t, 1, sum.IdleAgents)
	assert.Equal(t, 1, sum.ActiveAgents)
	assert.Equal(t, 66, sum.HealthPercentage)
}

func TestSwarmSummary_EmptySwarm(t *testing.T) {
	m, _ := newTestMonitor(t, &fakePulses{})

	sum, err := m.SwarmSummary(context.Background(), DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.TotalAgents)
	assert.Equal(t, 100, sum.HealthPercentage)
}
