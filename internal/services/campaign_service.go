package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crackops/taskforge/internal/models"
	"github.com/crackops/taskforge/internal/repository"
	"github.com/crackops/taskforge/pkg/debug"
)

// CampaignService manages the campaign lifecycle: draft, active, completed,
// archived. Start and Stop are idempotent; archive is a soft delete and the
// only transition allowed out of any state.
type CampaignService struct {
	campaignRepo *repository.CampaignRepository
	hashlistRepo *repository.HashlistRepository
}

// NewCampaignService creates a new campaign service.
func NewCampaignService(
	campaignRepo *repository.CampaignRepository,
	hashlistRepo *repository.HashlistRepository,
) *CampaignService {
	return &CampaignService{
		campaignRepo: campaignRepo,
		hashlistRepo: hashlistRepo,
	}
}

// Create makes a new campaign in draft state targeting an existing hashlist.
func (s *CampaignService) Create(ctx context.Context, campaign *models.Campaign) error {
	if campaign.Name == "" {
		return &ValidationError{Field: "name", Message: "name must not be empty"}
	}
	if campaign.Priority < 0 {
		return &ValidationError{Field: "priority", Message: "priority must not be negative"}
	}

	if _, err := s.hashlistRepo.GetByID(ctx, campaign.HashlistID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Resource: "hashlist", ID: fmt.Sprintf("%d", campaign.HashlistID)}
		}
		return err
	}

	campaign.State = models.CampaignStateDraft
	campaign.ArchivedAt = nil
	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return err
	}

	debug.Info("Created campaign %d (%s)", campaign.ID, campaign.Name)
	return nil
}

// Get returns a campaign. Archived campaigns are not visible through direct
// access and come back as not found.
func (s *CampaignService) Get(ctx context.Context, id int) (*models.Campaign, error) {
	campaign, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.IsArchived() {
		return nil, &NotFoundError{Resource: "campaign", ID: fmt.Sprintf("%d", id)}
	}
	return campaign, nil
}

// List returns campaigns ordered by priority. Archived campaigns appear only
// when explicitly requested.
func (s *CampaignService) List(ctx context.Context, includeArchived bool) ([]models.Campaign, error) {
	return s.campaignRepo.List(ctx, includeArchived)
}

// Update applies a partial update. Only present fields change; state is never
// touched through this path.
func (s *CampaignService) Update(ctx context.Context, id int, patch models.CampaignPatch) (*models.Campaign, error) {
	campaign, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return campaign, nil
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, &ValidationError{Field: "name", Message: "name must not be empty"}
		}
		campaign.Name = *patch.Name
	}
	if patch.Description != nil {
		campaign.Description = patch.Description
	}
	if patch.Priority != nil {
		if *patch.Priority < 0 {
			return nil, &ValidationError{Field: "priority", Message: "priority must not be negative"}
		}
		campaign.Priority = *patch.Priority
	}

	if err := s.campaignRepo.Update(ctx, campaign); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "campaign", ID: fmt.Sprintf("%d", id)}
		}
		return nil, err
	}
	return campaign, nil
}

// Start activates a campaign, making its tasks eligible for assignment.
// Starting an already-active campaign is a no-op. Completed and archived
// campaigns cannot be started.
func (s *CampaignService) Start(ctx context.Context, id int) error {
	campaign, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	switch campaign.State {
	case models.CampaignStateActive:
		return nil
	case models.CampaignStateCompleted:
		return &ConflictError{Resource: "campaign", ID: fmt.Sprintf("%d", id), Cause: ErrCampaignCompleted}
	case models.CampaignStateArchived:
		return &ConflictError{Resource: "campaign", ID: fmt.Sprintf("%d", id), Cause: ErrCampaignArchived}
	}

	affected, err := s.campaignRepo.UpdateStateGuarded(ctx, id, models.CampaignStateDraft, models.CampaignStateActive)
	if err != nil {
		return err
	}
	if affected == 0 {
		// Lost a race; re-read to report the real obstacle.
		return s.Start(ctx, id)
	}

	debug.Info("Campaign %d started", id)
	return nil
}

// Stop pauses an active campaign back to draft. Stopping a draft campaign is
// a no-op. Outstanding tasks are allowed to finish; only new assignment
// stops.
func (s *CampaignService) Stop(ctx context.Context, id int) error {
	campaign, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	switch campaign.State {
	case models.CampaignStateDraft:
		return nil
	case models.CampaignStateCompleted:
		return &ConflictError{Resource: "campaign", ID: fmt.Sprintf("%d", id), Cause: ErrCampaignCompleted}
	case models.CampaignStateArchived:
		return &ConflictError{Resource: "campaign", ID: fmt.Sprintf("%d", id), Cause: ErrCampaignArchived}
	}

	affected, err := s.campaignRepo.UpdateStateGuarded(ctx, id, models.CampaignStateActive, models.CampaignStateDraft)
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.Stop(ctx, id)
	}

	debug.Info("Campaign %d stopped", id)
	return nil
}

// Archive soft-deletes a campaign from any state, including directly from
// active. Archiving twice is a conflict.
func (s *CampaignService) Archive(ctx context.Context, id int) error {
	if _, err := s.get(ctx, id); err != nil {
		return err
	}

	affected, err := s.campaignRepo.Archive(ctx, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ConflictError{Resource: "campaign", ID: fmt.Sprintf("%d", id), Cause: ErrCampaignArchived}
	}

	debug.Info("Campaign %d archived", id)
	return nil
}

// RaisePriority bumps a campaign's priority by one so its pending tasks claim
// ahead of lower-priority work on the next assignment.
func (s *CampaignService) RaisePriority(ctx context.Context, id int) (int, error) {
	campaign, err := s.get(ctx, id)
	if err != nil {
		return 0, err
	}
	if campaign.IsArchived() {
		return 0, &NotFoundError{Resource: "campaign", ID: fmt.Sprintf("%d", id)}
	}

	priority, err := s.campaignRepo.RaisePriority(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, &NotFoundError{Resource: "campaign", ID: fmt.Sprintf("%d", id)}
		}
		return 0, err
	}

	debug.Info("Campaign %d priority raised to %d", id, priority)
	return priority, nil
}

// get loads a campaign without the archive visibility filter; lifecycle
// operations need to see archived rows to report the right conflict.
func (s *CampaignService) get(ctx context.Context, id int) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "campaign", ID: fmt.Sprintf("%d", id)}
		}
		return nil, err
	}
	return campaign, nil
}
