package models

import "time"

// OrchestratorRecord names the current leader. At most one valid record
// exists at a time; validity is defined by heartbeat freshness, not by the
// record's presence.
type OrchestratorRecord struct {
	AgentID       string    `json:"agent_id"`
	DisplayName   string    `json:"display_name"`
	PlatformTag   string    `json:"platform_tag"`
	ElectedAt     time.Time `json:"elected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Valid reports whether the record's heartbeat is fresh at the given instant.
func (r *OrchestratorRecord) Valid(now time.Time, timeout time.Duration) bool {
	return now.Sub(r.LastHeartbeat) < timeout
}
