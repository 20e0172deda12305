// Package identity assigns and persists stable per-machine agent identities.
//
// The agent ID is derived from hostname and username, so the same
// machine/user always resolves to the same identity and registration is
// safely retryable. The human-readable display name is generated once at
// first registration and never changes.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/user"
	"runtime"
	"time"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

// nameProbes bounds random adjective+noun probing before falling back to a
// numeric suffix.
const nameProbes = 200

// registerAttempts bounds retries when a freshly probed name loses a
// uniqueness race against another registering agent.
const registerAttempts = 3

// Registrar creates and refreshes agent identities in the shared store.
type Registrar struct {
	store store.Store

	// Replaceable in tests.
	hostname func() (string, error)
	username func() string
	randInt  func(n int) int
}

// NewRegistrar returns a Registrar backed by the given store.
func NewRegistrar(s store.Store) *Registrar {
	return &Registrar{
		store:    s,
		hostname: os.Hostname,
		username: currentUsername,
		randInt:  rand.Intn,
	}
}

// AgentID derives the stable identity key for this machine/user.
func (r *Registrar) AgentID() (string, error) {
	host, err := r.hostname()
	if err != nil {
		return "", fmt.Errorf("resolve hostname: %w", err)
	}
	sum := sha256.Sum256([]byte(host + "\x00" + r.username()))
	return "agent-" + hex.EncodeToString(sum[:])[:12], nil
}

// Register registers this machine/user in the swarm, or refreshes last-seen
// if an identity already exists. Idempotent: the display name survives
// re-registration unchanged.
func (r *Registrar) Register(ctx context.Context) (*models.AgentInfo, error) {
	agentID, err := r.AgentID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if info, err := r.store.GetIdentity(ctx, agentID); err == nil {
		if err := r.store.TouchIdentity(ctx, agentID, now); err != nil {
			return nil, err
		}
		info.LastSeen = now
		return info, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	host, err := r.hostname()
	if err != nil {
		return nil, fmt.Errorf("resolve hostname: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < registerAttempts; attempt++ {
		name, err := r.pickName(ctx)
		if err != nil {
			return nil, err
		}

		info := &models.AgentInfo{
			AgentID:     agentID,
			DisplayName: name,
			Hostname:    host,
			PlatformTag: runtime.GOOS,
			CreatedAt:   now,
			LastSeen:    now,
		}
		if err := r.store.PutIdentity(ctx, info); err != nil {
			// Another agent grabbed the name between our probe and the
			// insert. Pick again.
			lastErr = err
			continue
		}

		_, _ = r.store.AppendEvent(ctx, models.EventAgentRegistered, map[string]any{
			"agent_id":     agentID,
			"display_name": name,
			"hostname":     host,
		})
		return info, nil
	}
	return nil, fmt.Errorf("register %s: %w", agentID, lastErr)
}

// Whoami returns this machine/user's registered identity. The second return
// is false when no registration exists; that is not an error.
func (r *Registrar) Whoami(ctx context.Context) (*models.AgentInfo, bool, error) {
	agentID, err := r.AgentID()
	if err != nil {
		return nil, false, err
	}

	info, err := r.store.GetIdentity(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return info, true, nil
}

// pickName probes random two-word names against existing identities, then
// falls back to appending a numeric suffix.
func (r *Registrar) pickName(ctx context.Context) (string, error) {
	existing, err := r.store.ListIdentities(ctx)
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(existing))
	for _, info := range existing {
		taken[info.DisplayName] = true
	}

	var candidate string
	for i := 0; i < nameProbes; i++ {
		candidate = adjectives[r.randInt(len(adjectives))] + nouns[r.randInt(len(nouns))]
		if !taken[candidate] {
			return candidate, nil
		}
	}

	for suffix := 2; ; suffix++ {
		name := fmt.Sprintf("%s%d", candidate, suffix)
		if !taken[name] {
			return name, nil
		}
	}
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
