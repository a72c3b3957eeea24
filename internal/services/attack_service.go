package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/internal/models"
	"github.com/crackops/taskforge/internal/repository"
	"github.com/crackops/taskforge/internal/utils"
	"github.com/crackops/taskforge/pkg/debug"
)

// AttackService manages attacks within a campaign: creation with synchronous
// keyspace estimation, ordered positioning, edits that invalidate in-flight
// work, duplication and template export/import.
type AttackService struct {
	database     *db.DB
	attackRepo   *repository.AttackRepository
	taskRepo     *repository.TaskRepository
	campaignRepo *repository.CampaignRepository
	estimator    *KeyspaceEstimationService
}

// NewAttackService creates a new attack service.
func NewAttackService(
	database *db.DB,
	attackRepo *repository.AttackRepository,
	taskRepo *repository.TaskRepository,
	campaignRepo *repository.CampaignRepository,
	estimator *KeyspaceEstimationService,
) *AttackService {
	return &AttackService{
		database:     database,
		attackRepo:   attackRepo,
		taskRepo:     taskRepo,
		campaignRepo: campaignRepo,
		estimator:    estimator,
	}
}

// Create adds an attack to a campaign at the end of its ordering. Estimation
// runs synchronously; an invalid configuration rejects the create and nothing
// is written. The attack's initial tasks are generated from the estimate.
func (s *AttackService) Create(ctx context.Context, campaignID int, attack *models.Attack) error {
	campaign, err := s.writableCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	return s.create(ctx, campaign, attack)
}

// create validates, estimates and persists an attack with its generated
// tasks as one transaction.
func (s *AttackService) create(ctx context.Context, campaign *models.Campaign, attack *models.Attack) error {
	if err := s.validateConfig(attack); err != nil {
		return err
	}
	if err := s.estimator.Estimate(ctx, attack); err != nil {
		return err
	}

	maxPosition, err := s.attackRepo.MaxPosition(ctx, campaign.ID)
	if err != nil {
		return err
	}

	attack.CampaignID = &campaign.ID
	attack.Position = maxPosition + 1
	attack.State = models.AttackStatePending

	err = s.database.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.attackRepo.CreateTx(ctx, tx, attack); err != nil {
			return err
		}
		return s.createTasksTx(ctx, tx, attack)
	})
	if err != nil {
		return err
	}

	debug.Info("Created attack %s in campaign %d at position %d", attack.ID, campaign.ID, attack.Position)
	return nil
}

// Get retrieves a single attack.
func (s *AttackService) Get(ctx context.Context, id uuid.UUID) (*models.Attack, error) {
	return s.getAttack(ctx, id)
}

// List returns a campaign's attacks in position order.
func (s *AttackService) List(ctx context.Context, campaignID int) ([]models.Attack, error) {
	if _, err := s.campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.attackRepo.ListByCampaign(ctx, campaignID)
}

// Update applies a partial update to an attack. A name-only change is
// cosmetic and applies in place. A configuration change invalidates the
// attack's tasks: with outstanding work it requires confirm, and on
// confirmation the task abandonment, re-estimation, config rewrite and task
// regeneration commit as one transaction.
func (s *AttackService) Update(ctx context.Context, id uuid.UUID, patch models.AttackPatch, confirm bool) (*models.Attack, error) {
	attack, err := s.getAttack(ctx, id)
	if err != nil {
		return nil, err
	}
	if attack.IsTerminal() {
		return nil, &ConflictError{Resource: "attack", ID: id.String(), Cause: ErrAttackTerminal}
	}

	if !patch.ConfigChanged() {
		if patch.Name == nil {
			return attack, nil
		}
		if *patch.Name == "" {
			return nil, &ValidationError{Field: "name", Message: "name must not be empty"}
		}
		attack.Name = *patch.Name
		return attack, s.updateInPlace(ctx, attack)
	}

	outstanding, err := s.taskRepo.CountOutstandingByAttack(ctx, id)
	if err != nil {
		return nil, err
	}
	if outstanding > 0 && !confirm {
		return nil, &EditRequiresConfirmationError{AttackID: id.String(), OutstandingTasks: outstanding}
	}

	applyPatch(attack, patch)
	if err := s.validateConfig(attack); err != nil {
		return nil, err
	}
	if err := s.estimator.Estimate(ctx, attack); err != nil {
		return nil, err
	}
	attack.State = models.AttackStatePending

	err = s.database.WithTx(ctx, func(tx *sql.Tx) error {
		abandoned, err := s.taskRepo.AbandonByAttackTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.attackRepo.UpdateConfigTx(ctx, tx, attack); err != nil {
			return err
		}
		if err := s.createTasksTx(ctx, tx, attack); err != nil {
			return err
		}
		debug.Log("Attack edited, tasks regenerated", map[string]interface{}{
			"attack_id":       id,
			"abandoned_tasks": abandoned,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attack, nil
}

// Delete removes an attack and its tasks. With outstanding tasks it requires
// force. Remaining attacks are renumbered to keep positions contiguous.
func (s *AttackService) Delete(ctx context.Context, id uuid.UUID, force bool) error {
	return s.BulkDelete(ctx, []uuid.UUID{id}, force)
}

// BulkDelete removes several attacks at once under the same force rule as
// Delete. All attacks must belong to the same campaign.
func (s *AttackService) BulkDelete(ctx context.Context, ids []uuid.UUID, force bool) error {
	if len(ids) == 0 {
		return &ValidationError{Field: "ids", Message: "at least one attack id is required"}
	}

	var campaignID *int
	for _, id := range ids {
		attack, err := s.getAttack(ctx, id)
		if err != nil {
			return err
		}
		if attack.CampaignID == nil {
			return &ValidationError{Field: "ids", Message: fmt.Sprintf("attack %s is not part of a campaign", id)}
		}
		if campaignID == nil {
			campaignID = attack.CampaignID
		} else if *campaignID != *attack.CampaignID {
			return &ValidationError{Field: "ids", Message: "attacks must belong to the same campaign"}
		}

		if !force {
			outstanding, err := s.taskRepo.CountOutstandingByAttack(ctx, id)
			if err != nil {
				return err
			}
			if outstanding > 0 {
				return &EditRequiresConfirmationError{AttackID: id.String(), OutstandingTasks: outstanding}
			}
		}
	}

	err := s.database.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := s.taskRepo.AbandonByAttackTx(ctx, tx, id); err != nil {
				return err
			}
		}
		_, err := s.attackRepo.DeleteTx(ctx, tx, ids)
		return err
	})
	if err != nil {
		return err
	}

	debug.Info("Deleted %d attack(s) from campaign %d", len(ids), *campaignID)
	return s.renumber(ctx, *campaignID)
}

// Duplicate copies an attack's configuration into a new pending attack at the
// end of the campaign, recording the source as its template. Any source state
// works, including terminal ones, and a campaign that completed when its last
// attack finished still accepts the copy.
func (s *AttackService) Duplicate(ctx context.Context, id uuid.UUID) (*models.Attack, error) {
	source, err := s.getAttack(ctx, id)
	if err != nil {
		return nil, err
	}
	if source.CampaignID == nil {
		return nil, &ValidationError{Field: "id", Message: fmt.Sprintf("attack %s is not part of a campaign", id)}
	}

	campaign, err := s.campaign(ctx, *source.CampaignID)
	if err != nil {
		return nil, err
	}

	dup := *source
	dup.ID = uuid.Nil
	dup.Name = source.Name + " (copy)"
	dup.TemplateID = &source.ID

	if err := s.create(ctx, campaign, &dup); err != nil {
		return nil, err
	}
	return &dup, nil
}

// Move reorders an attack within its campaign. Positions stay contiguous.
func (s *AttackService) Move(ctx context.Context, id uuid.UUID, direction string) error {
	attack, err := s.getAttack(ctx, id)
	if err != nil {
		return err
	}
	if attack.CampaignID == nil {
		return &ValidationError{Field: "id", Message: fmt.Sprintf("attack %s is not part of a campaign", id)}
	}

	attacks, err := s.attackRepo.ListByCampaign(ctx, *attack.CampaignID)
	if err != nil {
		return err
	}

	current := -1
	for i, a := range attacks {
		if a.ID == id {
			current = i
			break
		}
	}
	if current == -1 {
		return &NotFoundError{Resource: "attack", ID: id.String()}
	}

	target := current
	switch direction {
	case models.AttackMoveUp:
		target = current - 1
	case models.AttackMoveDown:
		target = current + 1
	case models.AttackMoveTop:
		target = 0
	case models.AttackMoveBottom:
		target = len(attacks) - 1
	default:
		return &ValidationError{Field: "direction", Message: fmt.Sprintf("unknown direction %q", direction)}
	}

	if target < 0 || target >= len(attacks) || target == current {
		return nil
	}

	moved := attacks[current]
	attacks = append(attacks[:current], attacks[current+1:]...)
	attacks = append(attacks[:target], append([]models.Attack{moved}, attacks[target:]...)...)

	for i, a := range attacks {
		if a.Position == i {
			continue
		}
		if err := s.attackRepo.SetPosition(ctx, a.ID, i); err != nil {
			return err
		}
	}
	return nil
}

// ExportTemplate returns the portable configuration of an attack, stripped of
// identity and campaign binding.
func (s *AttackService) ExportTemplate(ctx context.Context, id uuid.UUID) (*models.AttackTemplate, error) {
	attack, err := s.getAttack(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.AttackTemplate{
		Name:             attack.Name,
		AttackMode:       attack.AttackMode,
		HashTypeID:       attack.HashTypeID,
		Mask:             attack.Mask,
		IncrementMode:    attack.IncrementMode,
		IncrementMinimum: attack.IncrementMinimum,
		IncrementMaximum: attack.IncrementMaximum,
		CustomCharset1:   attack.CustomCharset1,
		CustomCharset2:   attack.CustomCharset2,
		CustomCharset3:   attack.CustomCharset3,
		CustomCharset4:   attack.CustomCharset4,
		WordlistID:       attack.WordlistID,
		RuleListID:       attack.RuleListID,
		MaskListID:       attack.MaskListID,
	}, nil
}

// ImportTemplate instantiates a template as a new attack at the end of a
// campaign. The template is validated and estimated like any other create.
// Like Duplicate, a completed campaign still accepts the import.
func (s *AttackService) ImportTemplate(ctx context.Context, campaignID int, template *models.AttackTemplate) (*models.Attack, error) {
	campaign, err := s.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	attack := &models.Attack{
		Name:             template.Name,
		AttackMode:       template.AttackMode,
		HashTypeID:       template.HashTypeID,
		Mask:             template.Mask,
		IncrementMode:    template.IncrementMode,
		IncrementMinimum: template.IncrementMinimum,
		IncrementMaximum: template.IncrementMaximum,
		CustomCharset1:   template.CustomCharset1,
		CustomCharset2:   template.CustomCharset2,
		CustomCharset3:   template.CustomCharset3,
		CustomCharset4:   template.CustomCharset4,
		WordlistID:       template.WordlistID,
		RuleListID:       template.RuleListID,
		MaskListID:       template.MaskListID,
	}

	if err := s.create(ctx, campaign, attack); err != nil {
		return nil, err
	}
	return attack, nil
}

// createTasksTx generates the attack's pending tasks from its estimate inside
// the caller's transaction. An increment-mode mask attack gets one task per
// length layer; everything else gets a single task covering the whole
// keyspace.
func (s *AttackService) createTasksTx(ctx context.Context, tx *sql.Tx, attack *models.Attack) error {
	for _, t := range buildTasks(attack) {
		task := t
		if err := s.taskRepo.CreateTx(ctx, tx, &task); err != nil {
			return err
		}
	}
	return nil
}

func buildTasks(attack *models.Attack) []models.Task {
	if attack.AttackMode == models.AttackModeMask && attack.IncrementMode && attack.Mask != nil {
		layers, err := utils.GenerateIncrementLayers(*attack.Mask, attack.IncrementMinimum, attack.IncrementMaximum, false)
		if err == nil && len(layers) > 0 {
			charsets := attack.CustomCharsets()
			tasks := make([]models.Task, 0, len(layers))
			for _, layer := range layers {
				keyspace, err := utils.MaskKeyspace(layer, charsets)
				if err != nil {
					keyspace = 0
				}
				tasks = append(tasks, models.Task{
					AttackID:      attack.ID,
					Status:        models.TaskStatusPending,
					KeyspaceTotal: keyspace,
				})
			}
			return tasks
		}
	}

	return []models.Task{{
		AttackID:      attack.ID,
		Status:        models.TaskStatusPending,
		KeyspaceTotal: attack.EstimatedKeyspace,
	}}
}

// validateConfig checks mode-specific requirements before estimation.
func (s *AttackService) validateConfig(attack *models.Attack) error {
	if attack.Name == "" {
		return &ValidationError{Field: "name", Message: "name must not be empty"}
	}

	switch attack.AttackMode {
	case models.AttackModeDictionary:
		if attack.WordlistID == nil {
			return &ValidationError{Field: "wordlist_id", Message: "dictionary attack requires a wordlist"}
		}
	case models.AttackModeMask:
		if (attack.Mask == nil || *attack.Mask == "") && attack.MaskListID == nil {
			return &ValidationError{Field: "mask", Message: "mask attack requires a mask or mask list"}
		}
		if attack.Mask != nil && *attack.Mask != "" {
			if err := utils.ValidateMask(*attack.Mask); err != nil {
				return &ValidationError{Field: "mask", Message: err.Error()}
			}
		}
		if attack.IncrementMode {
			if attack.IncrementMinimum < 1 {
				return &ValidationError{Field: "increment_minimum", Message: "must be at least 1"}
			}
			if attack.IncrementMaximum < attack.IncrementMinimum {
				return &ValidationError{Field: "increment_maximum", Message: "must be >= increment_minimum"}
			}
		}
	case models.AttackModeHybridDictionary, models.AttackModeHybridMask:
		if attack.WordlistID == nil {
			return &ValidationError{Field: "wordlist_id", Message: "hybrid attack requires a wordlist"}
		}
		if attack.Mask == nil || *attack.Mask == "" {
			return &ValidationError{Field: "mask", Message: "hybrid attack requires a mask"}
		}
		if err := utils.ValidateMask(*attack.Mask); err != nil {
			return &ValidationError{Field: "mask", Message: err.Error()}
		}
	default:
		return &ValidationError{Field: "attack_mode", Message: fmt.Sprintf("unknown attack mode %q", attack.AttackMode)}
	}
	return nil
}

func applyPatch(attack *models.Attack, patch models.AttackPatch) {
	if patch.Name != nil {
		attack.Name = *patch.Name
	}
	if patch.Mask != nil {
		attack.Mask = patch.Mask
	}
	if patch.IncrementMode != nil {
		attack.IncrementMode = *patch.IncrementMode
	}
	if patch.IncrementMinimum != nil {
		attack.IncrementMinimum = *patch.IncrementMinimum
	}
	if patch.IncrementMaximum != nil {
		attack.IncrementMaximum = *patch.IncrementMaximum
	}
	if patch.CustomCharset1 != nil {
		attack.CustomCharset1 = patch.CustomCharset1
	}
	if patch.CustomCharset2 != nil {
		attack.CustomCharset2 = patch.CustomCharset2
	}
	if patch.CustomCharset3 != nil {
		attack.CustomCharset3 = patch.CustomCharset3
	}
	if patch.CustomCharset4 != nil {
		attack.CustomCharset4 = patch.CustomCharset4
	}
	if patch.WordlistID != nil {
		attack.WordlistID = patch.WordlistID
	}
	if patch.RuleListID != nil {
		attack.RuleListID = patch.RuleListID
	}
	if patch.MaskListID != nil {
		attack.MaskListID = patch.MaskListID
	}
}

// updateInPlace rewrites the attack row without touching tasks. Uses the
// transactional writer on a single-statement transaction to share the query.
func (s *AttackService) updateInPlace(ctx context.Context, attack *models.Attack) error {
	return s.database.WithTx(ctx, func(tx *sql.Tx) error {
		return s.attackRepo.UpdateConfigTx(ctx, tx, attack)
	})
}

// renumber compacts a campaign's attack positions to 0..n-1 after deletions.
func (s *AttackService) renumber(ctx context.Context, campaignID int) error {
	attacks, err := s.attackRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	for i, a := range attacks {
		if a.Position == i {
			continue
		}
		if err := s.attackRepo.SetPosition(ctx, a.ID, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *AttackService) getAttack(ctx context.Context, id uuid.UUID) (*models.Attack, error) {
	attack, err := s.attackRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "attack", ID: id.String()}
		}
		return nil, err
	}
	return attack, nil
}

func (s *AttackService) campaign(ctx context.Context, id int) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "campaign", ID: fmt.Sprintf("%d", id)}
		}
		return nil, err
	}
	if campaign.IsArchived() {
		return nil, &NotFoundError{Resource: "campaign", ID: fmt.Sprintf("%d", id)}
	}
	return campaign, nil
}

// writableCampaign rejects structural changes to completed campaigns.
func (s *AttackService) writableCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	campaign, err := s.campaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.State == models.CampaignStateCompleted {
		return nil, &ConflictError{Resource: "campaign", ID: fmt.Sprintf("%d", id), Cause: ErrCampaignCompleted}
	}
	return campaign, nil
}
