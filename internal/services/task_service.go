package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/crackops/taskforge/internal/models"
	"github.com/crackops/taskforge/internal/repository"
	"github.com/crackops/taskforge/pkg/debug"
)

// TaskService drives the task lifecycle: accept, progress, exhaust, abandon,
// retry. Terminal transitions cascade upward: the parent attack finishes when
// its last task does, and the parent campaign completes when its last attack
// does.
type TaskService struct {
	taskRepo     *repository.TaskRepository
	attackRepo   *repository.AttackRepository
	campaignRepo *repository.CampaignRepository
	hashlistRepo *repository.HashlistRepository
	agentRepo    *repository.AgentRepository
	progress     *ProgressService
	cracks       *CrackSubmissionService
	dispatcher   *Dispatcher
}

// NewTaskService creates a new task service.
func NewTaskService(
	taskRepo *repository.TaskRepository,
	attackRepo *repository.AttackRepository,
	campaignRepo *repository.CampaignRepository,
	hashlistRepo *repository.HashlistRepository,
	agentRepo *repository.AgentRepository,
	progress *ProgressService,
	cracks *CrackSubmissionService,
	dispatcher *Dispatcher,
) *TaskService {
	return &TaskService{
		taskRepo:     taskRepo,
		attackRepo:   attackRepo,
		campaignRepo: campaignRepo,
		hashlistRepo: hashlistRepo,
		agentRepo:    agentRepo,
		progress:     progress,
		cracks:       cracks,
		dispatcher:   dispatcher,
	}
}

// Accept moves an assigned task to running. Only the owning agent may accept.
func (s *TaskService) Accept(ctx context.Context, taskID uuid.UUID, agentID int) error {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.AgentID == nil || *task.AgentID != agentID {
		return &ConflictError{Resource: "task", ID: taskID.String(), Cause: ErrTaskNotOwned}
	}
	if task.Status != models.TaskStatusAssigned {
		return s.transitionConflict(task)
	}

	affected, err := s.taskRepo.TransitionStatus(ctx, taskID, []string{models.TaskStatusAssigned}, models.TaskStatusRunning)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ConflictError{Resource: "task", ID: taskID.String(), Cause: ErrTaskNotAssigned}
	}

	if err := s.agentRepo.UpdateLastSeen(ctx, agentID); err != nil {
		debug.Warning("Failed to update last seen for agent %d: %v", agentID, err)
	}
	return nil
}

// UpdateProgress records a progress report from the owning agent. Reports
// against a task that is no longer running, or owned by someone else, get a
// conflict so the agent knows its work is stale.
func (s *TaskService) UpdateProgress(ctx context.Context, taskID uuid.UUID, agentID int, progressPercent float64, keyspaceProcessed int64) error {
	if progressPercent < 0 || progressPercent > 100 {
		return &ValidationError{Field: "progress_percent", Message: "must be between 0 and 100"}
	}
	if keyspaceProcessed < 0 {
		return &ValidationError{Field: "keyspace_processed", Message: "must not be negative"}
	}

	affected, err := s.taskRepo.UpdateProgress(ctx, taskID, agentID, progressPercent, keyspaceProcessed)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ConflictError{Resource: "task", ID: taskID.String(), Cause: ErrTaskNotRunning}
	}

	if err := s.agentRepo.UpdateLastSeen(ctx, agentID); err != nil {
		debug.Warning("Failed to update last seen for agent %d: %v", agentID, err)
	}
	return nil
}

// Exhaust is the agent's signal that it finished its keyspace slice. The
// terminal label depends on the hashlist at the moment of the signal: fully
// cracked means completed, otherwise exhausted. Only the owning agent may
// exhaust a running task.
func (s *TaskService) Exhaust(ctx context.Context, taskID uuid.UUID, agentID int) error {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.AgentID == nil || *task.AgentID != agentID {
		return &ConflictError{Resource: "task", ID: taskID.String(), Cause: ErrTaskNotOwned}
	}
	if task.Status != models.TaskStatusRunning {
		return s.transitionConflict(task)
	}

	hashlist, err := s.hashlistForAttack(ctx, task.AttackID)
	if err != nil {
		return err
	}

	toStatus := models.TaskStatusExhausted
	if hashlist != nil && hashlist.IsFullyCracked() {
		toStatus = models.TaskStatusCompleted
	}

	affected, err := s.taskRepo.MarkExhausted(ctx, taskID, toStatus)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ConflictError{Resource: "task", ID: taskID.String(), Cause: ErrTaskNotRunning}
	}

	debug.Info("Task %s finished as %s by agent %d", taskID, toStatus, agentID)
	s.dispatcher.Dispatch(ctx, TopicTaskCompleted, map[string]interface{}{
		"task_id":  taskID.String(),
		"agent_id": agentID,
		"status":   toStatus,
	})

	s.afterTerminal(ctx, task.AttackID)
	return nil
}

// Abandon moves an outstanding task back out of its agent's hands, marking it
// abandoned. Already-terminal tasks yield a conflict naming the current
// status.
func (s *TaskService) Abandon(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return s.transitionConflict(task)
	}

	affected, err := s.taskRepo.TransitionStatus(ctx, taskID,
		[]string{models.TaskStatusPending, models.TaskStatusAssigned, models.TaskStatusRunning},
		models.TaskStatusAbandoned)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ConflictError{Resource: "task", ID: taskID.String(), Cause: ErrTaskAlreadyTerminal}
	}

	debug.Info("Task %s abandoned", taskID)
	s.dispatcher.Dispatch(ctx, TopicTaskAbandoned, map[string]interface{}{
		"task_id": taskID.String(),
	})

	s.afterTerminal(ctx, task.AttackID)
	return nil
}

// Retry returns an abandoned task to the pending pool with its progress
// cleared and retry count incremented.
func (s *TaskService) Retry(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusAbandoned {
		return &ConflictError{Resource: "task", ID: taskID.String(), Cause: ErrTaskNotAbandoned}
	}

	affected, err := s.taskRepo.Requeue(ctx, taskID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ConflictError{Resource: "task", ID: taskID.String(), Cause: ErrTaskNotAbandoned}
	}

	// The parent attack may have finished while all its tasks were terminal;
	// a retried task reopens it.
	if _, err := s.attackRepo.UpdateStateGuarded(ctx, task.AttackID, models.AttackStateExhausted, models.AttackStateRunning); err != nil {
		debug.Warning("Failed to reopen attack %s after retry: %v", task.AttackID, err)
	}

	debug.Info("Task %s requeued for retry", taskID)
	return nil
}

// SubmitCracks attaches cracked hash results to a task the agent holds.
// Terminal tasks reject the submission so a stale agent learns its work was
// invalidated. Returns the number of newly cracked hashes.
func (s *TaskService) SubmitCracks(ctx context.Context, taskID uuid.UUID, agentID int, submissions []models.CrackSubmission) (int, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if task.AgentID == nil || *task.AgentID != agentID {
		return 0, &ConflictError{Resource: "task", ID: taskID.String(), Cause: ErrTaskNotOwned}
	}
	if task.IsTerminal() {
		return 0, s.transitionConflict(task)
	}

	hashlist, err := s.hashlistForAttack(ctx, task.AttackID)
	if err != nil {
		return 0, err
	}
	if hashlist == nil {
		return 0, &ValidationError{Field: "task_id", Message: "task's attack targets no hashlist"}
	}

	newlyCracked, err := s.cracks.Submit(ctx, hashlist.ID, submissions)
	if err != nil {
		return 0, err
	}

	if err := s.agentRepo.UpdateLastSeen(ctx, agentID); err != nil {
		debug.Warning("Failed to update last seen for agent %d: %v", agentID, err)
	}
	return newlyCracked, nil
}

// GetCrackedHashes returns the cracked hashes of the hashlist the task
// targets. Agents use it to trim already-cracked values from their work, so
// only the owning agent of an outstanding task may fetch it.
func (s *TaskService) GetCrackedHashes(ctx context.Context, taskID uuid.UUID, agentID int) ([]models.Hash, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AgentID == nil || *task.AgentID != agentID {
		return nil, &ConflictError{Resource: "task", ID: taskID.String(), Cause: ErrTaskNotOwned}
	}
	if task.IsTerminal() {
		return nil, s.transitionConflict(task)
	}

	hashlist, err := s.hashlistForAttack(ctx, task.AttackID)
	if err != nil {
		return nil, err
	}
	if hashlist == nil {
		return nil, nil
	}
	return s.hashlistRepo.ListCracked(ctx, hashlist.ID)
}

func (s *TaskService) getTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "task", ID: taskID.String()}
		}
		return nil, err
	}
	return task, nil
}

// hashlistForAttack resolves the hashlist an attack targets through its
// campaign. A standalone attack (template) has none.
func (s *TaskService) hashlistForAttack(ctx context.Context, attackID uuid.UUID) (*models.Hashlist, error) {
	attack, err := s.attackRepo.GetByID(ctx, attackID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "attack", ID: attackID.String()}
		}
		return nil, err
	}
	if attack.CampaignID == nil {
		return nil, nil
	}

	campaign, err := s.campaignRepo.GetByID(ctx, *attack.CampaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "campaign", ID: fmt.Sprintf("%d", *attack.CampaignID)}
		}
		return nil, err
	}

	hashlist, err := s.hashlistRepo.GetByID(ctx, campaign.HashlistID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "hashlist", ID: fmt.Sprintf("%d", campaign.HashlistID)}
		}
		return nil, err
	}
	return hashlist, nil
}

func (s *TaskService) transitionConflict(task *models.Task) error {
	var cause error
	switch task.Status {
	case models.TaskStatusExhausted:
		cause = ErrTaskAlreadyExhausted
	case models.TaskStatusAbandoned:
		cause = ErrTaskAlreadyAbandoned
	case models.TaskStatusCompleted:
		cause = ErrTaskAlreadyTerminal
	case models.TaskStatusRunning:
		cause = ErrTaskNotAssigned
	default:
		cause = ErrTaskNotRunning
	}
	return &ConflictError{Resource: "task", ID: task.ID.String(), Cause: cause}
}

// afterTerminal runs the cascade after a task reaches a terminal status:
// finish the attack when its last task finishes, complete the campaign when
// its last attack finishes, and refresh the progress snapshot. Everything
// here is best effort; the task transition has already committed.
func (s *TaskService) afterTerminal(ctx context.Context, attackID uuid.UUID) {
	remaining, err := s.taskRepo.CountNonTerminalByAttack(ctx, attackID)
	if err != nil {
		debug.Error("Cascade failed to count tasks for attack %s: %v", attackID, err)
		return
	}
	if remaining > 0 {
		s.refreshProgress(ctx, attackID)
		return
	}

	attack, err := s.attackRepo.GetByID(ctx, attackID)
	if err != nil {
		debug.Error("Cascade failed to load attack %s: %v", attackID, err)
		return
	}
	if attack.IsTerminal() {
		s.refreshProgress(ctx, attackID)
		return
	}

	hashlist, err := s.hashlistForAttack(ctx, attackID)
	if err != nil {
		debug.Error("Cascade failed to resolve hashlist for attack %s: %v", attackID, err)
		return
	}

	toState := models.AttackStateExhausted
	if hashlist != nil && hashlist.IsFullyCracked() {
		toState = models.AttackStateCompleted
	}

	affected, err := s.attackRepo.UpdateStateGuarded(ctx, attackID, attack.State, toState)
	if err != nil {
		debug.Error("Cascade failed to finish attack %s: %v", attackID, err)
		return
	}
	if affected > 0 {
		debug.Info("Attack %s finished as %s", attackID, toState)
		s.dispatcher.Dispatch(ctx, TopicAttackFinished, map[string]interface{}{
			"attack_id": attackID.String(),
			"state":     toState,
		})
	}

	if attack.CampaignID != nil {
		s.completeCampaignIfDone(ctx, *attack.CampaignID)
	}
	s.refreshProgress(ctx, attackID)
}

func (s *TaskService) completeCampaignIfDone(ctx context.Context, campaignID int) {
	attacks, err := s.attackRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		debug.Error("Cascade failed to list attacks for campaign %d: %v", campaignID, err)
		return
	}
	for _, attack := range attacks {
		if !attack.IsTerminal() {
			return
		}
	}

	affected, err := s.campaignRepo.UpdateStateGuarded(ctx, campaignID, models.CampaignStateActive, models.CampaignStateCompleted)
	if err != nil {
		debug.Error("Cascade failed to complete campaign %d: %v", campaignID, err)
		return
	}
	if affected > 0 {
		debug.Info("Campaign %d completed", campaignID)
		s.dispatcher.Dispatch(ctx, TopicCampaignCompleted, map[string]interface{}{
			"campaign_id": campaignID,
		})
	}
}

func (s *TaskService) refreshProgress(ctx context.Context, attackID uuid.UUID) {
	if s.progress == nil {
		return
	}
	attack, err := s.attackRepo.GetByID(ctx, attackID)
	if err != nil || attack.CampaignID == nil {
		return
	}
	if _, err := s.progress.ComputeCampaignProgress(ctx, *attack.CampaignID); err != nil {
		debug.Warning("Failed to refresh progress for campaign %d: %v", *attack.CampaignID, err)
	}
}
