// Package election implements single-leader orchestrator election over the
// shared store's compare-and-swap publish.
//
// There is no lock server: an agent reads the orchestrator record, decides
// whether it is absent or stale, and attempts to publish itself as leader
// carrying the revision it read. The store accepts exactly one such publish;
// every loser re-reads and discovers the winner.
package election

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

// DocKey is the shared-store key holding the orchestrator record.
const DocKey = "orchestrator"

// DefaultTimeout is how long a leader may go without heartbeating before
// its record is considered stale and up for grabs.
const DefaultTimeout = 60 * time.Second

// PulseReader is the subset of the pulse tracker the election manager needs
// to derive the executor roster.
type PulseReader interface {
	Snapshot(ctx context.Context) (models.SwarmPulse, error)
}

// Result is the outcome of an Elect call. Leader is always the record that
// holds leadership after the call, whether or not the caller won.
type Result struct {
	Won    bool                       `json:"won"`
	Leader *models.OrchestratorRecord `json:"leader"`
}

// HeartbeatResult reports whether a heartbeat renewed leadership. A failed
// renewal is not an error: it is the signal that leadership changed, and
// Leader names the current holder (nil when no record exists).
type HeartbeatResult struct {
	Renewed bool                       `json:"renewed"`
	Leader  *models.OrchestratorRecord `json:"leader"`
}

// Manager runs orchestrator election against the shared store.
type Manager struct {
	store   store.Store
	pulses  PulseReader
	timeout time.Duration

	now func() time.Time // replaceable in tests
}

// New creates an election manager. A zero timeout selects DefaultTimeout.
// pulses may be nil if Executors is never used.
func New(s store.Store, pulses PulseReader, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{store: s, pulses: pulses, timeout: timeout, now: time.Now}
}

// Elect attempts to become the orchestrator. The caller wins when no record
// exists, the existing record is stale, or the caller already holds the
// record; otherwise it becomes an executor and Result.Leader names the
// current holder. A store error is returned as-is and never means "won".
func (m *Manager) Elect(ctx context.Context, agentID, displayName, platformTag string) (*Result, error) {
	now := m.now().UTC()

	cur, rev, err := m.read(ctx)
	if err != nil {
		return nil, err
	}

	if cur != nil && cur.Valid(now, m.timeout) && cur.AgentID != agentID {
		return &Result{Won: false, Leader: cur}, nil
	}

	rec := &models.OrchestratorRecord{
		AgentID:       agentID,
		DisplayName:   displayName,
		PlatformTag:   platformTag,
		ElectedAt:     now,
		LastHeartbeat: now,
	}
	if cur != nil && cur.AgentID == agentID {
		// Re-electing ourselves renews the heartbeat but keeps the
		// original election time.
		rec.ElectedAt = cur.ElectedAt
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode orchestrator record: %w", err)
	}

	if _, err := m.store.PublishDoc(ctx, DocKey, value, rev); err != nil {
		if !errors.Is(err, store.ErrStaleRevision) {
			return nil, err
		}
		// Lost the race. Re-read to discover the winner.
		winner, _, rerr := m.read(ctx)
		if rerr != nil {
			return nil, rerr
		}
		if winner != nil && winner.AgentID == agentID {
			return &Result{Won: true, Leader: winner}, nil
		}
		return &Result{Won: false, Leader: winner}, nil
	}

	if cur == nil || cur.AgentID != agentID {
		_, _ = m.store.AppendEvent(ctx, models.EventOrchestratorElected, map[string]any{
			"agent_id":     agentID,
			"display_name": displayName,
		})
	}
	return &Result{Won: true, Leader: rec}, nil
}

// Heartbeat refreshes the caller's leadership. Only the record holder may
// renew; anyone else gets Renewed=false with the current leader.
func (m *Manager) Heartbeat(ctx context.Context, agentID string) (*HeartbeatResult, error) {
	cur, rev, err := m.read(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil || cur.AgentID != agentID {
		return &HeartbeatResult{Renewed: false, Leader: cur}, nil
	}

	cur.LastHeartbeat = m.now().UTC()
	value, err := json.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("encode orchestrator record: %w", err)
	}

	if _, err := m.store.PublishDoc(ctx, DocKey, value, rev); err != nil {
		if !errors.Is(err, store.ErrStaleRevision) {
			return nil, err
		}
		// The record moved under us: leadership changed mid-heartbeat.
		winner, _, rerr := m.read(ctx)
		if rerr != nil {
			return nil, rerr
		}
		if winner != nil && winner.AgentID == agentID {
			return &HeartbeatResult{Renewed: true, Leader: winner}, nil
		}
		return &HeartbeatResult{Renewed: false, Leader: winner}, nil
	}
	return &HeartbeatResult{Renewed: true, Leader: cur}, nil
}

// Resign clears the caller's own orchestrator record. For anyone but the
// holder it is a no-op returning false.
func (m *Manager) Resign(ctx context.Context, agentID string) (bool, error) {
	cur, rev, err := m.read(ctx)
	if err != nil {
		return false, err
	}
	if cur == nil || cur.AgentID != agentID {
		return false, nil
	}

	if err := m.store.DeleteDoc(ctx, DocKey, rev); err != nil {
		if errors.Is(err, store.ErrStaleRevision) || errors.Is(err, store.ErrNotFound) {
			// Already superseded or gone; nothing to resign.
			return false, nil
		}
		return false, err
	}

	_, _ = m.store.AppendEvent(ctx, models.EventOrchestratorResigned, map[string]any{
		"agent_id":     agentID,
		"display_name": cur.DisplayName,
	})
	return true, nil
}

// Info returns the current valid orchestrator record, or found=false when
// none exists or the record is stale.
func (m *Manager) Info(ctx context.Context) (*models.OrchestratorRecord, bool, error) {
	cur, _, err := m.read(ctx)
	if err != nil {
		return nil, false, err
	}
	if cur == nil || !cur.Valid(m.now().UTC(), m.timeout) {
		return nil, false, nil
	}
	return cur, true, nil
}

// Executors returns the roster of non-leader agents whose pulse is within
// the election timeout, sorted by display name.
func (m *Manager) Executors(ctx context.Context) ([]models.PulseEntry, error) {
	if m.pulses == nil {
		return nil, nil
	}

	leader, _, err := m.Info(ctx)
	if err != nil {
		return nil, err
	}

	snapshot, err := m.pulses.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	var out []models.PulseEntry
	for _, entry := range snapshot {
		if leader != nil && entry.AgentID == leader.AgentID {
			continue
		}
		if now.Sub(entry.LastUpdate) >= m.timeout {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// read loads and decodes the orchestrator record. Absence is (nil, 0, nil).
func (m *Manager) read(ctx context.Context) (*models.OrchestratorRecord, int64, error) {
	doc, err := m.store.GetDoc(ctx, DocKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	rec := &models.OrchestratorRecord{}
	if err := json.Unmarshal(doc.Value, rec); err != nil {
		return nil, 0, fmt.Errorf("decode orchestrator record: %w", err)
	}
	return rec, doc.Revision, nil
}
