package app

import (
	"fmt"

	"github.com/crackops/taskforge/internal/cache/capability"
	"github.com/crackops/taskforge/internal/config"
	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/internal/filestore"
	"github.com/crackops/taskforge/internal/repository"
	"github.com/crackops/taskforge/internal/services"
	"github.com/crackops/taskforge/pkg/debug"
)

// App wires the repositories and services of the scheduling core together.
// Transport layers mount on top of it; background loops are owned here.
type App struct {
	DB *db.DB

	Campaigns        *services.CampaignService
	Attacks          *services.AttackService
	Tasks            *services.TaskService
	Assignment       *services.TaskAssignmentService
	Capability       *services.CapabilityService
	Progress         *services.ProgressService
	CrackSubmissions *services.CrackSubmissionService
	Dispatcher       *services.Dispatcher

	monitor *services.AgentMonitorService
}

// New builds the application graph from configuration. The database must be
// migrated; resourceDir hosts the wordlist, rule and mask files.
func New(cfg *config.Config, database *db.DB, resourceDir string) (*App, error) {
	resolver, err := filestore.NewResolver(resourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resource store: %w", err)
	}

	campaignRepo := repository.NewCampaignRepository(database)
	attackRepo := repository.NewAttackRepository(database)
	taskRepo := repository.NewTaskRepository(database)
	agentRepo := repository.NewAgentRepository(database)
	benchmarkRepo := repository.NewBenchmarkRepository(database)
	hashlistRepo := repository.NewHashlistRepository(database)

	dispatcher := services.NewDispatcher()
	estimator := services.NewKeyspaceEstimationService(resolver)
	capabilitySvc := services.NewCapabilityService(benchmarkRepo, agentRepo, capability.New(cfg.CapabilityCacheTTL))
	progressSvc := services.NewProgressService(campaignRepo, attackRepo, taskRepo, cfg.ProgressPollInterval)
	crackSvc := services.NewCrackSubmissionService(database, hashlistRepo, dispatcher)
	taskSvc := services.NewTaskService(taskRepo, attackRepo, campaignRepo, hashlistRepo, agentRepo, progressSvc, crackSvc, dispatcher)

	return &App{
		DB:               database,
		Campaigns:        services.NewCampaignService(campaignRepo, hashlistRepo),
		Attacks:          services.NewAttackService(database, attackRepo, taskRepo, campaignRepo, estimator),
		Tasks:            taskSvc,
		Assignment:       services.NewTaskAssignmentService(taskRepo, attackRepo, agentRepo, capabilitySvc),
		Capability:       capabilitySvc,
		Progress:         progressSvc,
		CrackSubmissions: crackSvc,
		Dispatcher:       dispatcher,
		monitor:          services.NewAgentMonitorService(agentRepo, taskSvc, cfg.AgentOfflineThreshold, cfg.AgentSweepSchedule),
	}, nil
}

// Start launches the background loops: progress polling and the agent
// offline sweep.
func (a *App) Start() error {
	if err := a.monitor.Start(); err != nil {
		return fmt.Errorf("failed to start agent monitor: %w", err)
	}
	a.Progress.Start()
	debug.Info("Application started")
	return nil
}

// Stop shuts the background loops down and drains in-flight notifications.
func (a *App) Stop() {
	a.Progress.Stop()
	a.monitor.Stop()
	a.Dispatcher.Wait()
	debug.Info("Application stopped")
}
