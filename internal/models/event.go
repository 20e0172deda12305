package models

import "time"

// Event types carried on the shared append-only log.
const (
	EventTaskAnnounced        = "task_announced"
	EventTaskBid              = "task_bid"
	EventTaskReassigned       = "task_reassigned"
	EventAgentRegistered      = "agent_registered"
	EventOrchestratorElected  = "orchestrator_elected"
	EventOrchestratorResigned = "orchestrator_resigned"
	EventUrgentPreemption     = "urgent_preemption"
	EventUrgentResolved       = "urgent_resolved"
	EventBroadcast            = "broadcast"
)

// SwarmEvent is one record on the append-only broadcast log. Immutable once
// written. Seq is assigned by the store and breaks timestamp ties in
// insertion order.
type SwarmEvent struct {
	EventID string         `json:"event_id"`
	Seq     int64          `json:"seq"`
	TS      time.Time      `json:"ts"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}
