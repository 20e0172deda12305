package identity

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

func newTestRegistrar(t *testing.T) (*Registrar, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	r := NewRegistrar(s)
	r.hostname = func() (string, error) { return "test-host", nil }
	r.username = func() string { return "test-user" }
	return r, s
}

func TestAgentID_Stable(t *testing.T) {
	r, _ := newTestRegistrar(t)

	id1, err := r.AgentID()
	require.NoError(t, err)
	id2, err := r.AgentID()
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Regexp(t, `^agent-[0-9a-f]{12}$`, id1)
}

func TestAgentID_DiffersByUser(t *testing.T) {
	r, _ := newTestRegistrar(t)

	id1, err := r.AgentID()
	require.NoError(t, err)

	r.username = func() string { return "other-user" }
	id2, err := r.AgentID()
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestRegister_Idempotent(t *testing.T) {
	r, _ := newTestRegistrar(t)
	ctx := context.Background()

	info1, err := r.Register(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, info1.DisplayName)
	assert.Equal(t, "test-host", info1.Hostname)

	// Same machine/user registers again: same identity, same name.
	info2, err := r.Register(ctx)
	require.NoError(t, err)
	assert.Equal(t, info1.AgentID, info2.AgentID)
	assert.Equal(t, info1.DisplayName, info2.DisplayName)
	assert.False(t, info2.LastSeen.Before(info1.LastSeen))
}

func TestRegister_EmitsEvent(t *testing.T) {
	r, s := newTestRegistrar(t)
	ctx := context.Background()

	info, err := r.Register(ctx)
	require.NoError(t, err)

	events, err := s.PollEvents(ctx, info.CreatedAt.Add(-time.Second), []string{models.EventAgentRegistered})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, info.DisplayName, events[0].Payload["display_name"])

	// Re-registration does not emit another one.
	_, err = r.Register(ctx)
	require.NoError(t, err)
	events, err = s.PollEvents(ctx, info.CreatedAt.Add(-time.Second), []string{models.EventAgentRegistered})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWhoami(t *testing.T) {
	r, _ := newTestRegistrar(t)
	ctx := context.Background()

	// Not registered yet: explicit not-found, no error.
	_, found, err := r.Whoami(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	registered, err := r.Register(ctx)
	require.NoError(t, err)

	info, found, err := r.Whoami(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, registered.AgentID, info.AgentID)
	assert.Equal(t, registered.DisplayName, info.DisplayName)
}

func TestPickName_SkipsTaken(t *testing.T) {
	r, s := newTestRegistrar(t)
	ctx := context.Background()

	// Pin the generator to always produce the first adjective+noun pair.
	r.randInt = func(n int) int { return 0 }
	first := adjectives[0] + nouns[0]

	name, err := r.pickName(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, name)

	// Occupy the pair: probing can never succeed, so the numeric suffix
	// fallback kicks in.
	other := &models.AgentInfo{AgentID: "agent-other", DisplayName: first, Hostname: "h", PlatformTag: "linux"}
	require.NoError(t, s.PutIdentity(ctx, other))

	name, err = r.pickName(ctx)
	require.NoError(t, err)
	assert.Equal(t, first+"2", name)
}
