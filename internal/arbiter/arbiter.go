// Package arbiter mediates access to shared files. It offers binding
// exclusive reservations and non-binding forecasts of intended edits,
// both kept as versioned documents in the shared store.
package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

const (
	// LocksDocKey is the shared document holding the lock table.
	LocksDocKey = "locks"
	// ForecastsDocKey is the shared document holding active forecasts.
	ForecastsDocKey = "forecasts"
)

// FileLocker is the lock surface of the arbiter. The remote arbiter
// client implements the same surface, so callers can run against either
// the shared store or an external arbitration service.
type FileLocker interface {
	Reserve(ctx context.Context, path, agent string, exclusive bool, ttl time.Duration) (*ReserveResult, error)
	Release(ctx context.Context, path, agent string) error
	List(ctx context.Context) ([]models.FileLock, error)
}

// TaskClaimer is the claim surface shared by the local store and the
// remote arbiter client.
type TaskClaimer interface {
	ClaimTask(ctx context.Context, id, agent string) (*store.ClaimResult, error)
	ReleaseTask(ctx context.Context, id, agent string) error
}

// ReserveResult reports a reservation attempt. A conflict is a result,
// not an error, and always names the current holder.
type ReserveResult struct {
	OK     bool   `json:"ok"`
	Holder string `json:"holder,omitempty"`
}

// ForecastConflict is one overlap between a requested file and another
// agent's active forecast.
type ForecastConflict struct {
	File          string                    `json:"file"`
	ForecastedBy  string                    `json:"forecasted_by"`
	EstimatedTime time.Time                 `json:"estimated_time"`
	Confidence    models.ForecastConfidence `json:"confidence"`
}

// errConflict aborts the update loop when a foreign lock blocks a
// reservation. Translated to a ReserveResult before it reaches callers.
var errConflict = errors.New("lock conflict")

// Arbiter implements file arbitration over the shared store.
type Arbiter struct {
	store store.Store

	now func() time.Time // replaceable in tests
}

// New creates an arbiter backed by the given store.
func New(s store.Store) *Arbiter {
	return &Arbiter{store: s, now: time.Now}
}

// lockTable maps path to the locks held on it. Shared locks may coexist;
// at most one unexpired exclusive lock per path.
type lockTable map[string][]models.FileLock

// Reserve attempts to lock path for agent. An exclusive reservation
// fails while any unexpired lock on the path is held by a different
// agent; a shared reservation fails only against a foreign exclusive
// lock. Re-reserving a path you already hold refreshes the lock.
func (a *Arbiter) Reserve(ctx context.Context, path, agent string, exclusive bool, ttl time.Duration) (*ReserveResult, error) {
	if path == "" || agent == "" {
		return nil, fmt.Errorf("reserve: path and agent are required")
	}

	res := &ReserveResult{}
	_, err := store.UpdateDoc(ctx, a.store, LocksDocKey, func(cur []byte) ([]byte, error) {
		table, err := decodeLocks(cur)
		if err != nil {
			return nil, err
		}
		now := a.now().UTC()
		pruneExpired(table, now)

		*res = ReserveResult{}
		for _, l := range table[path] {
			if l.Holder == agent {
				continue
			}
			if exclusive || l.Exclusive {
				res.Holder = l.Holder
				return nil, errConflict
			}
		}

		kept := table[path][:0]
		for _, l := range table[path] {
			if l.Holder != agent {
				kept = append(kept, l)
			}
		}
		table[path] = append(kept, models.FileLock{
			Path:       path,
			Holder:     agent,
			Exclusive:  exclusive,
			AcquiredAt: now,
			TTL:        ttl,
		})
		res.OK = true
		res.Holder = agent
		return json.Marshal(table)
	})
	if err == nil || errors.Is(err, errConflict) {
		return res, nil
	}
	return nil, err
}

// Release drops agent's lock on path. Only the holder may release;
// anything else is ErrNotHolder, and releasing an absent or expired
// lock is ErrNotFound.
func (a *Arbiter) Release(ctx context.Context, path, agent string) error {
	_, err := store.UpdateDoc(ctx, a.store, LocksDocKey, func(cur []byte) ([]byte, error) {
		table, err := decodeLocks(cur)
		if err != nil {
			return nil, err
		}
		pruneExpired(table, a.now().UTC())

		locks, ok := table[path]
		if !ok || len(locks) == 0 {
			return nil, store.ErrNotFound
		}

		kept := locks[:0]
		released := false
		for _, l := range locks {
			if l.Holder == agent {
				released = true
				continue
			}
			kept = append(kept, l)
		}
		if !released {
			return nil, store.ErrNotHolder
		}
		if len(kept) == 0 {
			delete(table, path)
		} else {
			table[path] = kept
		}
		return json.Marshal(table)
	})
	return err
}

// List returns all currently valid locks, sorted by path then holder.
// Expired locks are filtered out, never returned.
func (a *Arbiter) List(ctx context.Context) ([]models.FileLock, error) {
	doc, err := a.store.GetDoc(ctx, LocksDocKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	table, err := decodeLocks(doc.Value)
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()

	var out []models.FileLock
	for _, locks := range table {
		for _, l := range locks {
			if !l.Expired(now) {
				out = append(out, l)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Holder < out[j].Holder
	})
	return out, nil
}

// Forecast publishes a non-binding declaration that agent intends to
// touch files around estimatedIn from now. Forecasts never block a
// reservation and are immutable once created.
func (a *Arbiter) Forecast(ctx context.Context, agent, taskID string, files []string, estimatedIn time.Duration, confidence models.ForecastConfidence) (*models.FileForecast, error) {
	if agent == "" || len(files) == 0 {
		return nil, fmt.Errorf("forecast: agent and files are required")
	}
	switch confidence {
	case models.ConfidenceLow, models.ConfidenceMedium, models.ConfidenceHigh:
	case "":
		confidence = models.ConfidenceMedium
	default:
		return nil, fmt.Errorf("forecast: unknown confidence %q", confidence)
	}

	now := a.now().UTC()
	fc := &models.FileForecast{
		ForecastID:         ulid.Make().String(),
		Agent:              agent,
		TaskID:             taskID,
		Files:              files,
		EstimatedTouchTime: now.Add(estimatedIn),
		Confidence:         confidence,
		CreatedAt:          now,
	}

	_, err := store.UpdateDoc(ctx, a.store, ForecastsDocKey, func(cur []byte) ([]byte, error) {
		forecasts, err := decodeForecasts(cur)
		if err != nil {
			return nil, err
		}
		kept := forecasts[:0]
		for _, f := range forecasts {
			if !f.Expired(now) {
				kept = append(kept, f)
			}
		}
		return json.Marshal(append(kept, *fc))
	})
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// Conflicts cross-references files against other agents' active
// forecasts. excludeAgent leaves that agent's own forecasts out, so an
// agent can ask "who else plans to touch what I plan to touch".
func (a *Arbiter) Conflicts(ctx context.Context, files []string, excludeAgent string) ([]ForecastConflict, error) {
	doc, err := a.store.GetDoc(ctx, ForecastsDocKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	forecasts, err := decodeForecasts(doc.Value)
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()

	wanted := make(map[string]bool, len(files))
	for _, f := range files {
		wanted[f] = true
	}

	var out []ForecastConflict
	for _, fc := range forecasts {
		if fc.Expired(now) || fc.Agent == excludeAgent {
			continue
		}
		for _, file := range fc.Files {
			if wanted[file] {
				out = append(out, ForecastConflict{
					File:          file,
					ForecastedBy:  fc.Agent,
					EstimatedTime: fc.EstimatedTouchTime,
					Confidence:    fc.Confidence,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].ForecastedBy < out[j].ForecastedBy
	})
	return out, nil
}

func decodeLocks(raw []byte) (lockTable, error) {
	if len(raw) == 0 {
		return lockTable{}, nil
	}
	var table lockTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("decode lock table: %w", err)
	}
	if table == nil {
		table = lockTable{}
	}
	return table, nil
}

func decodeForecasts(raw []byte) ([]models.FileForecast, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var forecasts []models.FileForecast
	if err := json.Unmarshal(raw, &forecasts); err != nil {
		return nil, fmt.Errorf("decode forecasts: %w", err)
	}
	return forecasts, nil
}

// pruneExpired drops expired locks in place. Expiry is lazy; this runs
// only when the table is being rewritten anyway.
func pruneExpired(table lockTable, now time.Time) {
	for path, locks := range table {
		kept := locks[:0]
		for _, l := range locks {
			if !l.Expired(now) {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(table, path)
		} else {
			table[path] = kept
		}
	}
}
