package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crackops/taskforge/internal/repository"
	"github.com/crackops/taskforge/pkg/debug"
)

// AgentMonitorService periodically abandons the outstanding tasks of agents
// that stopped heartbeating. Abandoned tasks return to the pool via Retry or
// operator action; the sweep itself never requeues.
type AgentMonitorService struct {
	agentRepo *repository.AgentRepository
	tasks     *TaskService

	offlineThreshold time.Duration
	schedule         string

	cron *cron.Cron
}

// NewAgentMonitorService creates a new agent monitor.
func NewAgentMonitorService(
	agentRepo *repository.AgentRepository,
	tasks *TaskService,
	offlineThreshold time.Duration,
	schedule string,
) *AgentMonitorService {
	return &AgentMonitorService{
		agentRepo:        agentRepo,
		tasks:            tasks,
		offlineThreshold: offlineThreshold,
		schedule:         schedule,
	}
}

// Start schedules the sweep. The schedule string uses cron syntax, including
// the @every form.
func (s *AgentMonitorService) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	debug.Info("Agent offline sweep scheduled (%s), threshold %s", s.schedule, s.offlineThreshold)
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (s *AgentMonitorService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep abandons outstanding tasks held by agents unseen since the offline
// threshold. Exported for tests and manual triggering.
func (s *AgentMonitorService) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.offlineThreshold)

	agentIDs, err := s.agentRepo.ListWithOutstandingBefore(ctx, cutoff)
	if err != nil {
		debug.Error("Offline sweep failed to list stale agents: %v", err)
		return
	}

	for _, agentID := range agentIDs {
		taskIDs, err := s.tasks.taskRepo.AbandonByAgent(ctx, agentID)
		if err != nil {
			debug.Error("Offline sweep failed to abandon tasks for agent %d: %v", agentID, err)
			continue
		}
		for _, taskID := range taskIDs {
			debug.Warning("Abandoned task %s: agent %d offline since %s", taskID, agentID, cutoff.Format(time.RFC3339))
			s.tasks.dispatcher.Dispatch(ctx, TopicTaskAbandoned, map[string]interface{}{
				"task_id":  taskID.String(),
				"agent_id": agentID,
				"reason":   "agent offline",
			})
		}
		if len(taskIDs) > 0 {
			// Task rows changed under the attack; run the cascade per task.
			for _, taskID := range taskIDs {
				if task, err := s.tasks.taskRepo.GetByID(ctx, taskID); err == nil {
					s.tasks.afterTerminal(ctx, task.AttackID)
				}
			}
		}
	}
}

func (s *AgentMonitorService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.Sweep(ctx)
}
