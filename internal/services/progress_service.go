package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crackops/taskforge/internal/models"
	"github.com/crackops/taskforge/internal/repository"
	"github.com/crackops/taskforge/pkg/debug"
)

// ProgressService aggregates task progress up to attacks and campaigns.
// Aggregation is read-only and derived; nothing it computes is written back
// to the database. A polling loop keeps a snapshot fresh for active
// campaigns, and callers can also compute on demand.
type ProgressService struct {
	campaignRepo *repository.CampaignRepository
	attackRepo   *repository.AttackRepository
	taskRepo     *repository.TaskRepository

	pollInterval time.Duration

	mu        sync.RWMutex
	snapshots map[int]models.CampaignProgress

	stopChan chan struct{}
	stopOnce sync.Once
	running  bool
	runMu    sync.Mutex
}

// NewProgressService creates a new progress service.
func NewProgressService(
	campaignRepo *repository.CampaignRepository,
	attackRepo *repository.AttackRepository,
	taskRepo *repository.TaskRepository,
	pollInterval time.Duration,
) *ProgressService {
	return &ProgressService{
		campaignRepo: campaignRepo,
		attackRepo:   attackRepo,
		taskRepo:     taskRepo,
		pollInterval: pollInterval,
		snapshots:    make(map[int]models.CampaignProgress),
		stopChan:     make(chan struct{}),
	}
}

// AttackProgressPercent computes an attack's progress as the keyspace-weighted
// mean of its task progress. Tasks with zero keyspace fall back to an equal
// weighting. An attack with no tasks is at 0%.
func AttackProgressPercent(tasks []models.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}

	var totalKeyspace int64
	for _, t := range tasks {
		totalKeyspace += t.KeyspaceTotal
	}

	if totalKeyspace == 0 {
		var sum float64
		for _, t := range tasks {
			sum += t.ProgressPercent
		}
		return sum / float64(len(tasks))
	}

	var weighted float64
	for _, t := range tasks {
		weighted += t.ProgressPercent * float64(t.KeyspaceTotal)
	}
	return weighted / float64(totalKeyspace)
}

// CampaignProgressPercent computes a campaign's progress as the mean of its
// attacks' progress weighted by estimated keyspace, with an equal-weight
// fallback when every estimate is zero. attackProgress is keyed by attack id.
func CampaignProgressPercent(attacks []models.Attack, attackProgress map[uuid.UUID]float64) float64 {
	if len(attacks) == 0 {
		return 0
	}

	var totalKeyspace int64
	for _, a := range attacks {
		totalKeyspace += a.EstimatedKeyspace
	}

	if totalKeyspace == 0 {
		var sum float64
		for _, a := range attacks {
			sum += attackProgress[a.ID]
		}
		return sum / float64(len(attacks))
	}

	var weighted float64
	for _, a := range attacks {
		weighted += attackProgress[a.ID] * float64(a.EstimatedKeyspace)
	}
	return weighted / float64(totalKeyspace)
}

// ComputeCampaignProgress builds a fresh progress snapshot for one campaign.
func (s *ProgressService) ComputeCampaignProgress(ctx context.Context, campaignID int) (*models.CampaignProgress, error) {
	attacks, err := s.attackRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attacks for campaign %d: %w", campaignID, err)
	}

	attackProgress := make(map[uuid.UUID]float64, len(attacks))
	totalTasks := 0
	activeAgents := make(map[int]struct{})

	for _, attack := range attacks {
		tasks, err := s.taskRepo.ListByAttack(ctx, attack.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load tasks for attack %s: %w", attack.ID, err)
		}
		attackProgress[attack.ID] = AttackProgressPercent(tasks)
		totalTasks += len(tasks)
		for _, t := range tasks {
			if t.AgentID != nil && t.IsOutstanding() {
				activeAgents[*t.AgentID] = struct{}{}
			}
		}
	}

	progress := &models.CampaignProgress{
		CampaignID:      campaignID,
		ProgressPercent: CampaignProgressPercent(attacks, attackProgress),
		TotalTasks:      totalTasks,
		ActiveAgents:    len(activeAgents),
	}

	s.mu.Lock()
	s.snapshots[campaignID] = *progress
	s.mu.Unlock()

	return progress, nil
}

// Snapshot returns the last computed progress for a campaign, if any.
func (s *ProgressService) Snapshot(campaignID int) (models.CampaignProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.snapshots[campaignID]
	return p, ok
}

// Start launches the polling loop. Safe to call once; subsequent calls are
// no-ops.
func (s *ProgressService) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true

	debug.Info("Starting progress polling loop with interval %s", s.pollInterval)
	go s.pollLoop()
}

// Stop terminates the polling loop.
func (s *ProgressService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *ProgressService) pollLoop() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			debug.Info("Progress polling loop stopped")
			return
		case <-ticker.C:
			s.pollOnce()
		}
	}
}

func (s *ProgressService) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval)
	defer cancel()

	campaigns, err := s.campaignRepo.List(ctx, false)
	if err != nil {
		debug.Error("Progress poll failed to list campaigns: %v", err)
		return
	}

	for _, campaign := range campaigns {
		if campaign.State != models.CampaignStateActive {
			continue
		}
		if _, err := s.ComputeCampaignProgress(ctx, campaign.ID); err != nil {
			debug.Error("Progress poll failed for campaign %d: %v", campaign.ID, err)
		}
	}
}
