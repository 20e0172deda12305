// Package health derives agent liveness from the shared pulse map and
// guards task reassignment so work is only ever taken from dead agents.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

// DefaultThreshold is how long an agent may go without a pulse update
// before it is considered dead.
const DefaultThreshold = 30 * time.Minute

// PulseReader is the subset of the pulse tracker the monitor needs.
type PulseReader interface {
	Snapshot(ctx context.Context) (models.SwarmPulse, error)
}

// AgentHealth is the liveness verdict for one agent. LastSeen is "never"
// when the agent has no pulse entry at all.
type AgentHealth struct {
	AgentID     string             `json:"agent_id"`
	DisplayName string             `json:"display_name,omitempty"`
	Alive       bool               `json:"alive"`
	LastSeen    string             `json:"last_seen"`
	MinutesAgo  int                `json:"minutes_ago"`
	Status      models.AgentStatus `json:"status,omitempty"`
	CurrentTask string             `json:"current_task,omitempty"`
}

// DeadReport partitions the swarm by the liveness threshold.
type DeadReport struct {
	DeadAgents []AgentHealth `json:"dead_agents"`
	AliveCount int           `json:"alive_count"`
	DeadCount  int           `json:"dead_count"`
}

// ReassignResult is the outcome of a guarded reassignment. Refusals carry
// the reason; they are results, not errors, and are never partially applied.
type ReassignResult struct {
	Reassigned  bool   `json:"reassigned"`
	Reason      string `json:"reason,omitempty"`
	NewAssignee string `json:"new_assignee,omitempty"`
}

// Summary is an aggregate snapshot for dashboards. Purely derived.
type Summary struct {
	TotalAgents      int `json:"total_agents"`
	AliveAgents      int `json:"alive_agents"`
	DeadAgents       int `json:"dead_agents"`
	IdleAgents       int `json:"idle_agents"`
	ActiveAgents     int `json:"active_agents"`
	HealthPercentage int `json:"health_percentage"`
}

// Monitor detects dead agents and reassigns their tasks.
type Monitor struct {
	store  store.Store
	pulses PulseReader

	now func() time.Time // replaceable in tests
}

// NewMonitor creates a health monitor over the given store and pulse map.
func NewMonitor(s store.Store, pulses PulseReader) *Monitor {
	return &Monitor{store: s, pulses: pulses, now: time.Now}
}

// CheckHealth reports liveness for one agent, matched by agent ID or
// display name. An agent with no pulse entry is dead with LastSeen "never".
func (m *Monitor) CheckHealth(ctx context.Context, agent string, threshold time.Duration) (*AgentHealth, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	snapshot, err := m.pulses.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	entry, ok := findEntry(snapshot, agent)
	if !ok {
		return &AgentHealth{AgentID: agent, Alive: false, LastSeen: "never"}, nil
	}

	return m.verdict(entry, threshold), nil
}

// ListDeadAgents partitions the pulse map by the threshold. Offline status
// counts as dead regardless of elapsed time.
func (m *Monitor) ListDeadAgents(ctx context.Context, threshold time.Duration) (*DeadReport, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	snapshot, err := m.pulses.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	report := &DeadReport{}
	for _, entry := range snapshot {
		h := m.verdict(entry, threshold)
		if h.Alive {
			report.AliveCount++
		} else {
			report.DeadCount++
			report.DeadAgents = append(report.DeadAgents, *h)
		}
	}
	sort.Slice(report.DeadAgents, func(i, j int) bool {
		return report.DeadAgents[i].AgentID < report.DeadAgents[j].AgentID
	})
	return report, nil
}

// ForceReassign moves a task off a dead agent, to toAgent or back to open
// when toAgent is empty. Refused unless CheckHealth reports the source
// agent not alive; this guard is the only protection against a live
// agent's task being stolen.
func (m *Monitor) ForceReassign(ctx context.Context, taskID, fromAgent, toAgent, reason string, threshold time.Duration) (*ReassignResult, error) {
	h, err := m.CheckHealth(ctx, fromAgent, threshold)
	if err != nil {
		return nil, err
	}
	if h.Alive {
		return &ReassignResult{
			Reassigned: false,
			Reason:     fmt.Sprintf("agent %s is still alive (last seen %dm ago)", fromAgent, h.MinutesAgo),
		}, nil
	}

	if err := m.store.ReassignTask(ctx, taskID, fromAgent, toAgent); err != nil {
		if errors.Is(err, store.ErrNotHolder) {
			return &ReassignResult{
				Reassigned: false,
				Reason:     fmt.Sprintf("task %s is not assigned to %s", taskID, fromAgent),
			}, nil
		}
		return nil, err
	}

	_, _ = m.store.AppendEvent(ctx, models.EventTaskReassigned, map[string]any{
		"task_id": taskID,
		"from":    fromAgent,
		"to":      toAgent,
		"reason":  reason,
	})
	return &ReassignResult{Reassigned: true, NewAssignee: toAgent}, nil
}

// SwarmSummary aggregates liveness counts across the whole pulse map.
func (m *Monitor) SwarmSummary(ctx context.Context, threshold time.Duration) (*Summary, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	snapshot, err := m.pulses.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{TotalAgents: len(snapshot)}
	for _, entry := range snapshot {
		h := m.verdict(entry, threshold)
		if !h.Alive {
			sum.DeadAgents++
			continue
		}
		sum.AliveAgents++
		switch entry.Status {
		case models.AgentStatusIdle:
			sum.IdleAgents++
		case models.AgentStatusActive:
			sum.ActiveAgents++
		}
	}

	if sum.TotalAgents == 0 {
		sum.HealthPercentage = 100
	} else {
		sum.HealthPercentage = sum.AliveAgents * 100 / sum.TotalAgents
	}
	return sum, nil
}

// verdict computes the liveness call for one pulse entry.
func (m *Monitor) verdict(entry models.PulseEntry, threshold time.Duration) *AgentHealth {
	elapsed := m.now().UTC().Sub(entry.LastUpdate)
	alive := elapsed < threshold && entry.Status != models.AgentStatusOffline

	return &AgentHealth{
		AgentID:     entry.AgentID,
		DisplayName: entry.DisplayName,
		Alive:       alive,
		LastSeen:    entry.LastUpdate.Format(time.RFC3339),
		MinutesAgo:  int(elapsed.Minutes()),
		Status:      entry.Status,
		CurrentTask: entry.CurrentTaskID,
	}
}

// findEntry matches by agent ID first, then display name.
func findEntry(snapshot models.SwarmPulse, agent string) (models.PulseEntry, bool) {
	if entry, ok := snapshot[agent]; ok {
		return entry, true
	}
	for _, entry := range snapshot {
		if entry.DisplayName == agent {
			return entry, true
		}
	}
	return models.PulseEntry{}, false
}
