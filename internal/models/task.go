package models

import (
	"time"

	"github.com/google/uuid"
)

// Task status constants
const (
	TaskStatusPending   = "pending"
	TaskStatusAssigned  = "assigned"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusExhausted = "exhausted"
	TaskStatusAbandoned = "abandoned"
)

// Task is the unit of assignable work derived from an attack. AgentID is set
// iff status is assigned or running; a given agent holds at most one such
// task at any time.
type Task struct {
	ID                uuid.UUID  `json:"id"`
	AttackID          uuid.UUID  `json:"attack_id"`
	AgentID           *int       `json:"agent_id,omitempty"`
	Status            string     `json:"status"`
	ProgressPercent   float64    `json:"progress_percent"`
	KeyspaceTotal     int64      `json:"keyspace_total"`
	KeyspaceProcessed int64      `json:"keyspace_processed"`
	RetryCount        int        `json:"retry_count"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	AssignedAt        *time.Time `json:"assignedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

// IsTerminal reports whether the task has reached a terminal status.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusExhausted, TaskStatusAbandoned:
		return true
	}
	return false
}

// IsOutstanding reports whether the task counts against its agent's
// one-outstanding-task limit.
func (t *Task) IsOutstanding() bool {
	return t.Status == TaskStatusAssigned || t.Status == TaskStatusRunning
}
