package models

import "time"

// TaskStatus represents the claim state of a swarm task.
type TaskStatus string

const (
	TaskStatusOpen    TaskStatus = "open"
	TaskStatusClaimed TaskStatus = "claimed"
	TaskStatusDone    TaskStatus = "done"
)

// Task is a unit of work agents bid on and claim. Claiming is exclusive and
// atomic; everything else about task execution lives outside this core.
type Task struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	RequiredCapabilities []string   `json:"required_capabilities,omitempty"`
	Status               TaskStatus `json:"status"`
	Assignee             string     `json:"assignee,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
