package models

import "time"

// AgentStatus represents what an agent is currently doing.
type AgentStatus string

const (
	AgentStatusActive  AgentStatus = "active"
	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusPaused  AgentStatus = "paused"
	AgentStatusOffline AgentStatus = "offline"
)

// AgentInfo is the stable identity of one agent on one machine/user.
// AgentID is derived from host+user and never changes; DisplayName is
// assigned once at first registration.
type AgentInfo struct {
	AgentID     string    `json:"agent_id"`
	DisplayName string    `json:"display_name"`
	Hostname    string    `json:"hostname"`
	PlatformTag string    `json:"platform_tag"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// PulseEntry is one agent's liveness heartbeat in the shared pulse map.
// Only the owning agent writes its entry; everyone reads.
type PulseEntry struct {
	AgentID       string      `json:"agent_id"`
	DisplayName   string      `json:"display_name"`
	PlatformTag   string      `json:"platform_tag"`
	Hostname      string      `json:"hostname"`
	Branch        string      `json:"branch,omitempty"`
	CurrentFile   string      `json:"current_file,omitempty"`
	CurrentTaskID string      `json:"current_task_id,omitempty"`
	Status        AgentStatus `json:"status"`
	LastUpdate    time.Time   `json:"last_update"`
}

// SwarmPulse is the whole pulse map, keyed by agent ID. The backing store
// holds it as a single snapshot document.
type SwarmPulse map[string]PulseEntry
