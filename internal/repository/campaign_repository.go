package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/internal/models"
)

// ErrNotFound is returned when a row does not exist. Services translate it
// into their domain NotFound errors.
var ErrNotFound = errors.New("record not found")

// CampaignRepository handles database operations for campaigns.
type CampaignRepository struct {
	db *db.DB
}

// NewCampaignRepository creates a new instance of CampaignRepository.
func NewCampaignRepository(database *db.DB) *CampaignRepository {
	return &CampaignRepository{db: database}
}

const campaignColumns = `id, name, description, project_id, hashlist_id, priority, state, archived_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*models.Campaign, error) {
	var c models.Campaign
	var description sql.NullString
	var archivedAt sql.NullTime

	err := row.Scan(
		&c.ID,
		&c.Name,
		&description,
		&c.ProjectID,
		&c.HashlistID,
		&c.Priority,
		&c.State,
		&archivedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		c.Description = &description.String
	}
	if archivedAt.Valid {
		c.ArchivedAt = &archivedAt.Time
	}
	return &c, nil
}

// Create inserts a new campaign in draft state and fills in its id and
// timestamps.
func (r *CampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	query := `
		INSERT INTO campaigns (name, description, project_id, hashlist_id, priority, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		campaign.Name,
		campaign.Description,
		campaign.ProjectID,
		campaign.HashlistID,
		campaign.Priority,
		campaign.State,
	).Scan(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign regardless of archive state. Callers decide
// whether an archived row is visible for their operation.
func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign %d: %w", id, err)
	}
	return campaign, nil
}

// List returns campaigns, excluding archived ones unless includeArchived is
// set.
func (r *CampaignRepository) List(ctx context.Context, includeArchived bool) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	if !includeArchived {
		query += ` WHERE archived_at IS NULL`
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		campaigns = append(campaigns, *campaign)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaign rows: %w", err)
	}
	return campaigns, nil
}

// Update persists name, description and priority.
func (r *CampaignRepository) Update(ctx context.Context, campaign *models.Campaign) error {
	query := `
		UPDATE campaigns
		SET name = $1, description = $2, priority = $3, updated_at = NOW()
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		campaign.Name,
		campaign.Description,
		campaign.Priority,
		campaign.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign %d: %w", campaign.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStateGuarded moves a campaign from one state to another. Returns the
// number of rows affected; zero means the campaign was not in fromState.
func (r *CampaignRepository) UpdateStateGuarded(ctx context.Context, id int, fromState, toState string) (int64, error) {
	query := `
		UPDATE campaigns
		SET state = $1, updated_at = NOW()
		WHERE id = $2 AND state = $3 AND archived_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, toState, id, fromState)
	if err != nil {
		return 0, fmt.Errorf("failed to transition campaign %d from %s to %s: %w", id, fromState, toState, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}

// Archive soft-deletes a campaign: the archival timestamp is set, the row is
// retained. Zero rows affected means the campaign was already archived or
// does not exist.
func (r *CampaignRepository) Archive(ctx context.Context, id int, archivedAt time.Time) (int64, error) {
	query := `
		UPDATE campaigns
		SET state = $1, archived_at = $2, updated_at = NOW()
		WHERE id = $3 AND archived_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, models.CampaignStateArchived, archivedAt, id)
	if err != nil {
		return 0, fmt.Errorf("failed to archive campaign %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}

// RaisePriority bumps a campaign's priority by one and returns the new value.
func (r *CampaignRepository) RaisePriority(ctx context.Context, id int) (int, error) {
	query := `
		UPDATE campaigns
		SET priority = priority + 1, updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
		RETURNING priority
	`
	var priority int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&priority)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to raise priority for campaign %d: %w", id, err)
	}
	return priority, nil
}
