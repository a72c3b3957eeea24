package services

import (
	"errors"
	"fmt"
)

// ErrNoPendingTasks is the well-defined empty result of task assignment. It
// is the normal outcome when no eligible work exists and must be
// distinguished from failures by callers.
var ErrNoPendingTasks = errors.New("no compatible pending tasks available")

// Sentinel causes for conflict errors, so callers can branch on the specific
// rejected transition with errors.Is.
var (
	ErrTaskAlreadyExhausted = errors.New("task already exhausted")
	ErrTaskAlreadyAbandoned = errors.New("task already abandoned")
	ErrTaskAlreadyTerminal  = errors.New("task already in a terminal status")
	ErrTaskNotAssigned      = errors.New("task is not in assigned status")
	ErrTaskNotAbandoned     = errors.New("task is not abandoned")
	ErrTaskNotOwned         = errors.New("task is not assigned to this agent")
	ErrTaskNotRunning       = errors.New("task is not running")
	ErrCampaignArchived     = errors.New("campaign is archived")
	ErrCampaignCompleted    = errors.New("campaign is completed")
	ErrAttackTerminal       = errors.New("attack already in a terminal state")
)

// NotFoundError indicates an unknown entity id (404-class). Archived
// campaigns are reported as not found on direct access.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError indicates a rejected state transition (409-class). Cause is
// one of the sentinel errors above.
type ConflictError struct {
	Resource string
	ID       string
	Cause    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Resource, e.ID, e.Cause)
}

func (e *ConflictError) Unwrap() error {
	return e.Cause
}

// AgentBusyError indicates the agent already holds an outstanding task
// (distinct 409-class). The held task id is included so callers can report
// it, never silently return it.
type AgentBusyError struct {
	AgentID int
	TaskID  string
}

func (e *AgentBusyError) Error() string {
	return fmt.Sprintf("agent %d already has an outstanding task %s", e.AgentID, e.TaskID)
}

// ValidationError indicates malformed input rejected before any persistence
// (400/422-class).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// EditRequiresConfirmationError rejects an edit to a running attack with
// outstanding tasks when confirm was not set (409-class). State is left
// untouched.
type EditRequiresConfirmationError struct {
	AttackID         string
	OutstandingTasks int
}

func (e *EditRequiresConfirmationError) Error() string {
	return fmt.Sprintf("attack %s has %d outstanding task(s); edit requires confirmation", e.AttackID, e.OutstandingTasks)
}
