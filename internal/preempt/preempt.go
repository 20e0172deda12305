// Package preempt interrupts agents mid-work for urgent changes. It
// snapshots the pulse map to decide who is affected, persists the
// interrupt, and broadcasts it over the event log so even agents that
// never read pulse will see it.
package preempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

// docPrefix namespaces urgent records in the document table.
const docPrefix = "urgent/"

// PulseReader is the subset of the pulse tracker the controller needs.
type PulseReader interface {
	Snapshot(ctx context.Context) (models.SwarmPulse, error)
}

// Controller triggers and resolves urgent interrupts.
type Controller struct {
	store  store.Store
	pulses PulseReader

	now func() time.Time // replaceable in tests
}

// New creates a preemption controller.
func New(s store.Store, pulses PulseReader) *Controller {
	return &Controller{store: s, pulses: pulses, now: time.Now}
}

// Trigger creates an urgent interrupt over affectedFiles. The preempted
// set is a snapshot of agents whose current file overlaps the affected
// files, taken now and never recomputed. A second trigger while one is
// active creates an independent record; precedence is the caller's call.
func (c *Controller) Trigger(ctx context.Context, taskID, title, reason, initiator string, affectedFiles []string) (*models.UrgentTask, error) {
	if title == "" || len(affectedFiles) == 0 {
		return nil, fmt.Errorf("trigger: title and affected files are required")
	}

	snapshot, err := c.pulses.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pulse: %w", err)
	}

	affected := make(map[string]bool, len(affectedFiles))
	for _, f := range affectedFiles {
		affected[f] = true
	}

	var preempted []string
	for _, entry := range snapshot {
		if entry.CurrentFile != "" && affected[entry.CurrentFile] {
			preempted = append(preempted, entry.AgentID)
		}
	}
	sort.Strings(preempted)

	ut := &models.UrgentTask{
		UrgentID:        ulid.Make().String(),
		TaskID:          taskID,
		Title:           title,
		Reason:          reason,
		Initiator:       initiator,
		AffectedFiles:   affectedFiles,
		PreemptedAgents: preempted,
		Status:          models.UrgentStatusActive,
		CreatedAt:       c.now().UTC(),
	}

	value, err := json.Marshal(ut)
	if err != nil {
		return nil, fmt.Errorf("encode urgent task: %w", err)
	}
	if _, err := c.store.PublishDoc(ctx, docPrefix+ut.UrgentID, value, 0); err != nil {
		return nil, fmt.Errorf("persist urgent task: %w", err)
	}

	_, _ = c.store.AppendEvent(ctx, models.EventUrgentPreemption, map[string]any{
		"urgent_id":        ut.UrgentID,
		"task_id":          ut.TaskID,
		"title":            ut.Title,
		"reason":           ut.Reason,
		"initiator":        ut.Initiator,
		"affected_files":   ut.AffectedFiles,
		"preempted_agents": ut.PreemptedAgents,
	})
	return ut, nil
}

// Resolve moves an urgent interrupt to resolved. The transition is
// one-way; resolving an already resolved record is a no-op success.
func (c *Controller) Resolve(ctx context.Context, urgentID string) (*models.UrgentTask, error) {
	var resolved models.UrgentTask
	var changed bool

	_, err := store.UpdateDoc(ctx, c.store, docPrefix+urgentID, func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, store.ErrNotFound
		}
		var ut models.UrgentTask
		if err := json.Unmarshal(cur, &ut); err != nil {
			return nil, fmt.Errorf("decode urgent task: %w", err)
		}
		changed = ut.Status != models.UrgentStatusResolved
		if changed {
			ut.Status = models.UrgentStatusResolved
			at := c.now().UTC()
			ut.ResolvedAt = &at
		}
		resolved = ut
		return json.Marshal(ut)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		_, _ = c.store.AppendEvent(ctx, models.EventUrgentResolved, map[string]any{
			"urgent_id": resolved.UrgentID,
			"task_id":   resolved.TaskID,
		})
	}
	return &resolved, nil
}

// Get returns one urgent record by id.
func (c *Controller) Get(ctx context.Context, urgentID string) (*models.UrgentTask, error) {
	doc, err := c.store.GetDoc(ctx, docPrefix+urgentID)
	if err != nil {
		return nil, err
	}
	var ut models.UrgentTask
	if err := json.Unmarshal(doc.Value, &ut); err != nil {
		return nil, fmt.Errorf("decode urgent task: %w", err)
	}
	return &ut, nil
}

// Active returns the current active urgent interrupt, or found=false
// when none exists. With multiple active records the newest wins.
func (c *Controller) Active(ctx context.Context) (*models.UrgentTask, bool, error) {
	all, err := c.list(ctx)
	if err != nil {
		return nil, false, err
	}

	var newest *models.UrgentTask
	for _, ut := range all {
		if ut.Status != models.UrgentStatusActive {
			continue
		}
		if newest == nil || ut.CreatedAt.After(newest.CreatedAt) {
			newest = ut
		}
	}
	if newest == nil {
		return nil, false, nil
	}
	return newest, true, nil
}

// List returns all urgent records, newest first.
func (c *Controller) List(ctx context.Context) ([]*models.UrgentTask, error) {
	all, err := c.list(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

func (c *Controller) list(ctx context.Context) ([]*models.UrgentTask, error) {
	docs, err := c.store.ListDocs(ctx, docPrefix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var out []*models.UrgentTask
	for _, doc := range docs {
		if !strings.HasPrefix(doc.Key, docPrefix) {
			continue
		}
		var ut models.UrgentTask
		if err := json.Unmarshal(doc.Value, &ut); err != nil {
			return nil, fmt.Errorf("decode urgent task %s: %w", doc.Key, err)
		}
		out = append(out, &ut)
	}
	return out, nil
}
