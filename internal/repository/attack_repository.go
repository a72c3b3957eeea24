package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/internal/models"
)

// AttackRepository handles database operations for attacks.
type AttackRepository struct {
	db *db.DB
}

// NewAttackRepository creates a new instance of AttackRepository.
func NewAttackRepository(database *db.DB) *AttackRepository {
	return &AttackRepository{db: database}
}

const attackColumns = `id, campaign_id, name, attack_mode, position, state, hash_type_id,
	mask, increment_mode, increment_minimum, increment_maximum,
	custom_charset_1, custom_charset_2, custom_charset_3, custom_charset_4,
	wordlist_id, rule_list_id, mask_list_id,
	estimated_keyspace, complexity_score, template_id, created_at, updated_at`

func scanAttack(row interface{ Scan(...interface{}) error }) (*models.Attack, error) {
	var a models.Attack
	var campaignID sql.NullInt64
	var mask, cs1, cs2, cs3, cs4 sql.NullString
	var wordlistID, ruleListID, maskListID, templateID uuid.NullUUID

	err := row.Scan(
		&a.ID,
		&campaignID,
		&a.Name,
		&a.AttackMode,
		&a.Position,
		&a.State,
		&a.HashTypeID,
		&mask,
		&a.IncrementMode,
		&a.IncrementMinimum,
		&a.IncrementMaximum,
		&cs1,
		&cs2,
		&cs3,
		&cs4,
		&wordlistID,
		&ruleListID,
		&maskListID,
		&a.EstimatedKeyspace,
		&a.ComplexityScore,
		&templateID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if campaignID.Valid {
		id := int(campaignID.Int64)
		a.CampaignID = &id
	}
	if mask.Valid {
		a.Mask = &mask.String
	}
	if cs1.Valid {
		a.CustomCharset1 = &cs1.String
	}
	if cs2.Valid {
		a.CustomCharset2 = &cs2.String
	}
	if cs3.Valid {
		a.CustomCharset3 = &cs3.String
	}
	if cs4.Valid {
		a.CustomCharset4 = &cs4.String
	}
	if wordlistID.Valid {
		a.WordlistID = &wordlistID.UUID
	}
	if ruleListID.Valid {
		a.RuleListID = &ruleListID.UUID
	}
	if maskListID.Valid {
		a.MaskListID = &maskListID.UUID
	}
	if templateID.Valid {
		a.TemplateID = &templateID.UUID
	}
	return &a, nil
}

// Create inserts a new attack and fills in its id and timestamps.
func (r *AttackRepository) Create(ctx context.Context, attack *models.Attack) error {
	query := `
		INSERT INTO attacks (
			campaign_id, name, attack_mode, position, state, hash_type_id,
			mask, increment_mode, increment_minimum, increment_maximum,
			custom_charset_1, custom_charset_2, custom_charset_3, custom_charset_4,
			wordlist_id, rule_list_id, mask_list_id,
			estimated_keyspace, complexity_score, template_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		attack.CampaignID,
		attack.Name,
		attack.AttackMode,
		attack.Position,
		attack.State,
		attack.HashTypeID,
		attack.Mask,
		attack.IncrementMode,
		attack.IncrementMinimum,
		attack.IncrementMaximum,
		attack.CustomCharset1,
		attack.CustomCharset2,
		attack.CustomCharset3,
		attack.CustomCharset4,
		attack.WordlistID,
		attack.RuleListID,
		attack.MaskListID,
		attack.EstimatedKeyspace,
		attack.ComplexityScore,
		attack.TemplateID,
	).Scan(&attack.ID, &attack.CreatedAt, &attack.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create attack: %w", err)
	}
	return nil
}

// CreateTx inserts a new attack inside the caller's transaction, so the
// attack row and its generated tasks commit together.
func (r *AttackRepository) CreateTx(ctx context.Context, tx *sql.Tx, attack *models.Attack) error {
	query := `
		INSERT INTO attacks (
			campaign_id, name, attack_mode, position, state, hash_type_id,
			mask, increment_mode, increment_minimum, increment_maximum,
			custom_charset_1, custom_charset_2, custom_charset_3, custom_charset_4,
			wordlist_id, rule_list_id, mask_list_id,
			estimated_keyspace, complexity_score, template_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRowContext(ctx, query,
		attack.CampaignID,
		attack.Name,
		attack.AttackMode,
		attack.Position,
		attack.State,
		attack.HashTypeID,
		attack.Mask,
		attack.IncrementMode,
		attack.IncrementMinimum,
		attack.IncrementMaximum,
		attack.CustomCharset1,
		attack.CustomCharset2,
		attack.CustomCharset3,
		attack.CustomCharset4,
		attack.WordlistID,
		attack.RuleListID,
		attack.MaskListID,
		attack.EstimatedKeyspace,
		attack.ComplexityScore,
		attack.TemplateID,
	).Scan(&attack.ID, &attack.CreatedAt, &attack.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create attack: %w", err)
	}
	return nil
}

// GetByID retrieves a single attack.
func (r *AttackRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Attack, error) {
	query := `SELECT ` + attackColumns + ` FROM attacks WHERE id = $1`
	attack, err := scanAttack(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attack %s: %w", id, err)
	}
	return attack, nil
}

// ListByCampaign returns a campaign's attacks ordered by position.
func (r *AttackRepository) ListByCampaign(ctx context.Context, campaignID int) ([]models.Attack, error) {
	query := `SELECT ` + attackColumns + ` FROM attacks WHERE campaign_id = $1 ORDER BY position ASC`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attacks for campaign %d: %w", campaignID, err)
	}
	defer rows.Close()

	var attacks []models.Attack
	for rows.Next() {
		attack, err := scanAttack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attack row: %w", err)
		}
		attacks = append(attacks, *attack)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attack rows: %w", err)
	}
	return attacks, nil
}

// MaxPosition returns the highest position used within a campaign, or -1 when
// the campaign has no attacks.
func (r *AttackRepository) MaxPosition(ctx context.Context, campaignID int) (int, error) {
	query := `SELECT COALESCE(MAX(position), -1) FROM attacks WHERE campaign_id = $1`
	var position int
	if err := r.db.QueryRowContext(ctx, query, campaignID).Scan(&position); err != nil {
		return 0, fmt.Errorf("failed to get max position for campaign %d: %w", campaignID, err)
	}
	return position, nil
}

// UpdateConfigTx rewrites an attack's configuration, estimation results and
// state inside the caller's transaction. Used by the lifecycle-reset path so
// the attack update and the task abandonment commit together.
func (r *AttackRepository) UpdateConfigTx(ctx context.Context, tx *sql.Tx, attack *models.Attack) error {
	query := `
		UPDATE attacks
		SET name = $1, mask = $2,
			increment_mode = $3, increment_minimum = $4, increment_maximum = $5,
			custom_charset_1 = $6, custom_charset_2 = $7, custom_charset_3 = $8, custom_charset_4 = $9,
			wordlist_id = $10, rule_list_id = $11, mask_list_id = $12,
			estimated_keyspace = $13, complexity_score = $14, state = $15,
			updated_at = NOW()
		WHERE id = $16
	`
	result, err := tx.ExecContext(ctx, query,
		attack.Name,
		attack.Mask,
		attack.IncrementMode,
		attack.IncrementMinimum,
		attack.IncrementMaximum,
		attack.CustomCharset1,
		attack.CustomCharset2,
		attack.CustomCharset3,
		attack.CustomCharset4,
		attack.WordlistID,
		attack.RuleListID,
		attack.MaskListID,
		attack.EstimatedKeyspace,
		attack.ComplexityScore,
		attack.State,
		attack.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update attack %s: %w", attack.ID, err)
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

// UpdateStateGuarded moves an attack from one state to another. Zero rows
// affected means the attack was not in fromState.
func (r *AttackRepository) UpdateStateGuarded(ctx context.Context, id uuid.UUID, fromState, toState string) (int64, error) {
	query := `
		UPDATE attacks
		SET state = $1, updated_at = NOW()
		WHERE id = $2 AND state = $3
	`
	result, err := r.db.ExecContext(ctx, query, toState, id, fromState)
	if err != nil {
		return 0, fmt.Errorf("failed to transition attack %s from %s to %s: %w", id, fromState, toState, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}

// SetPosition updates a single attack's position.
func (r *AttackRepository) SetPosition(ctx context.Context, id uuid.UUID, position int) error {
	query := `UPDATE attacks SET position = $1, updated_at = NOW() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, position, id); err != nil {
		return fmt.Errorf("failed to set position for attack %s: %w", id, err)
	}
	return nil
}

// DeleteTx removes attacks and their tasks inside the caller's transaction.
// Task rows cascade via the schema.
func (r *AttackRepository) DeleteTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) (int64, error) {
	query := `DELETE FROM attacks WHERE id = ANY($1)`
	result, err := tx.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete attacks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}
