package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdrAbdr/swarm-mcp/internal/arbiter"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

var (
	_ arbiter.FileLocker  = (*Client)(nil)
	_ arbiter.TaskClaimer = (*Client)(nil)
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, nil)
}

func TestClaimTask(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/claim_task", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "task-1", body["task_id"])
		assert.Equal(t, "agent-a", body["agent"])

		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	res, err := c.ClaimTask(context.Background(), "task-1", "agent-a")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "agent-a", res.ClaimedBy)
}

func TestClaimTask_ConflictNamesHolder(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "claimedBy": "agent-b"})
	})

	res, err := c.ClaimTask(context.Background(), "task-1", "agent-a")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "agent-b", res.ClaimedBy)
}

func TestReserve(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/lock_file", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "claimedBy": "agent-b"})
	})

	res, err := c.Reserve(context.Background(), "src/x.go", "agent-a", true, 0)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "agent-b", res.Holder)
}

func TestReserve_SharedNotSupported(t *testing.T) {
	c := NewClient("http://unused.invalid", nil)

	_, err := c.Reserve(context.Background(), "src/x.go", "agent-a", false, 0)
	assert.Error(t, err)
}

func TestRelease_NotHolder(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/unlock_file", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	})

	err := c.Release(context.Background(), "src/x.go", "agent-a")
	assert.ErrorIs(t, err, store.ErrNotHolder)
}

func TestRateLimited(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.ClaimTask(context.Background(), "task-1", "agent-a")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestStateAndStats(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/state":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"leader":         "agent-a",
				"authorizedMcps": []string{"swarm-mcp"},
			})
		case "/api/stats":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"agentCount": 3, "taskCount": 7, "stopped": true,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	st, err := c.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "agent-a", st.Leader)
	assert.Equal(t, []string{"swarm-mcp"}, st.AuthorizedMCPs)

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.AgentCount)
	assert.Equal(t, 7, stats.TaskCount)
	assert.True(t, stats.Stopped)
}

func TestStopResume(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stop":
			_ = json.NewEncoder(w).Encode(map[string]any{"stopped": true})
		case "/resume":
			_ = json.NewEncoder(w).Encode(map[string]any{"stopped": false})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	stopped, err := c.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, stopped)

	stopped, err = c.Resume(context.Background())
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestNotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.State(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
