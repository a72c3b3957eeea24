package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/crackops/taskforge/internal/models"
	"github.com/crackops/taskforge/internal/repository"
	"github.com/crackops/taskforge/pkg/debug"
)

// TaskAssignmentService hands pending tasks to requesting agents. The claim
// itself is a single database transaction; this service layers capability
// filtering, error translation and the attack state flip on top.
type TaskAssignmentService struct {
	taskRepo   *repository.TaskRepository
	attackRepo *repository.AttackRepository
	agentRepo  *repository.AgentRepository
	capability *CapabilityService
}

// NewTaskAssignmentService creates a new task assignment service.
func NewTaskAssignmentService(
	taskRepo *repository.TaskRepository,
	attackRepo *repository.AttackRepository,
	agentRepo *repository.AgentRepository,
	capability *CapabilityService,
) *TaskAssignmentService {
	return &TaskAssignmentService{
		taskRepo:   taskRepo,
		attackRepo: attackRepo,
		agentRepo:  agentRepo,
		capability: capability,
	}
}

// AssignNext claims the highest-priority eligible task for the agent.
// Ordering is campaign priority desc, then attack position asc, then task age.
// Returns ErrNoPendingTasks when no compatible work exists; this is the
// normal idle outcome, not a failure. An agent that already holds an
// outstanding task gets an AgentBusyError, never the held task back.
func (s *TaskAssignmentService) AssignNext(ctx context.Context, agentID int) (*models.Task, error) {
	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "agent", ID: fmt.Sprintf("%d", agentID)}
		}
		return nil, err
	}
	if !agent.IsEnabled {
		return nil, &ValidationError{Field: "agent", Message: fmt.Sprintf("agent %d is disabled", agentID)}
	}

	hashTypes, err := s.capability.HashTypes(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if len(hashTypes) == 0 {
		debug.Debug("Agent %d has no benchmarked hash types, nothing to assign", agentID)
		return nil, ErrNoPendingTasks
	}

	task, err := s.taskRepo.ClaimNextForAgent(ctx, agentID, hashTypes)
	if err != nil {
		var busy *repository.AgentBusyError
		switch {
		case errors.Is(err, repository.ErrNoEligibleTasks):
			return nil, ErrNoPendingTasks
		case errors.As(err, &busy):
			return nil, &AgentBusyError{AgentID: agentID, TaskID: busy.TaskID.String()}
		default:
			return nil, err
		}
	}

	// First claim against a pending attack flips it to running. A zero-row
	// result means another claim got there first, which is fine.
	if _, err := s.attackRepo.UpdateStateGuarded(ctx, task.AttackID, models.AttackStatePending, models.AttackStateRunning); err != nil {
		debug.Warning("Failed to flip attack %s to running after claim: %v", task.AttackID, err)
	}

	if err := s.agentRepo.UpdateLastSeen(ctx, agentID); err != nil {
		debug.Warning("Failed to update last seen for agent %d: %v", agentID, err)
	}

	debug.Info("Assigned task %s to agent %d", task.ID, agentID)
	return task, nil
}
