package models

import "time"

// UrgentStatus is the lifecycle of an urgent interrupt. Transitions are
// one-way, active to resolved.
type UrgentStatus string

const (
	UrgentStatusActive   UrgentStatus = "active"
	UrgentStatusResolved UrgentStatus = "resolved"
)

// UrgentTask is an urgent interrupt over a set of files. PreemptedAgents is
// a snapshot of the pulse map taken at creation time; it is never recomputed.
type UrgentTask struct {
	UrgentID        string       `json:"urgent_id"`
	TaskID          string       `json:"task_id"`
	Title           string       `json:"title"`
	Reason          string       `json:"reason"`
	Initiator       string       `json:"initiator"`
	AffectedFiles   []string     `json:"affected_files"`
	PreemptedAgents []string     `json:"preempted_agents"`
	Status          UrgentStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
}
