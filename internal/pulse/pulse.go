// Package pulse maintains the shared liveness map all agents heartbeat into.
//
// The map is stored as one snapshot document, so every update is a
// read-merge-publish over the whole map rather than a per-key upsert. Two
// agents publishing at once race on each other's projected entries
// (last-writer-wins), but a writer always places its own entry into the
// merged result last, so its own heartbeat is never lost.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

// DocKey is the shared-store key holding the pulse map.
const DocKey = "pulse"

// DefaultStaleWindow is how old another agent's entry may be before a writer
// prunes it from the map. Independent of (and shorter than) the dead-agent
// threshold used by health checks.
const DefaultStaleWindow = 15 * time.Minute

// Tracker reads and writes the shared pulse map.
type Tracker struct {
	store       store.Store
	staleWindow time.Duration

	now func() time.Time // replaceable in tests
}

// NewTracker creates a pulse tracker. A zero staleWindow selects
// DefaultStaleWindow.
func NewTracker(s store.Store, staleWindow time.Duration) *Tracker {
	if staleWindow <= 0 {
		staleWindow = DefaultStaleWindow
	}
	return &Tracker{store: s, staleWindow: staleWindow, now: time.Now}
}

// Update merges the caller's entry into the shared map, pruning every other
// agent's entry that has gone stale, and republishes the whole snapshot.
// LastUpdate is stamped here; callers fill the rest of the entry.
func (t *Tracker) Update(ctx context.Context, entry models.PulseEntry) error {
	if entry.AgentID == "" {
		return fmt.Errorf("pulse update: agent id required")
	}
	if entry.Status == "" {
		entry.Status = models.AgentStatusActive
	}

	_, err := store.UpdateDoc(ctx, t.store, DocKey, func(cur []byte) ([]byte, error) {
		snapshot := models.SwarmPulse{}
		if cur != nil {
			if err := json.Unmarshal(cur, &snapshot); err != nil {
				return nil, fmt.Errorf("decode pulse map: %w", err)
			}
		}

		now := t.now().UTC()
		for id, e := range snapshot {
			if id == entry.AgentID {
				continue
			}
			if now.Sub(e.LastUpdate) > t.staleWindow {
				delete(snapshot, id)
			}
		}

		// Own entry goes in last so it survives the merge no matter what
		// the read returned.
		entry.LastUpdate = now
		snapshot[entry.AgentID] = entry

		return json.Marshal(snapshot)
	})
	return err
}

// Snapshot returns the current pulse map. An absent document is an empty
// swarm, not an error.
func (t *Tracker) Snapshot(ctx context.Context) (models.SwarmPulse, error) {
	doc, err := t.store.GetDoc(ctx, DocKey)
	if errors.Is(err, store.ErrNotFound) {
		return models.SwarmPulse{}, nil
	}
	if err != nil {
		return nil, err
	}

	snapshot := models.SwarmPulse{}
	if err := json.Unmarshal(doc.Value, &snapshot); err != nil {
		return nil, fmt.Errorf("decode pulse map: %w", err)
	}
	return snapshot, nil
}
