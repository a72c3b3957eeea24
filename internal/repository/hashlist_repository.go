package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/internal/models"
)

// HashlistRepository handles database operations for hashlists and their
// hashes. The scheduling core reads hashlists and only writes through crack
// submission.
type HashlistRepository struct {
	db *db.DB
}

// NewHashlistRepository creates a new instance of HashlistRepository.
func NewHashlistRepository(database *db.DB) *HashlistRepository {
	return &HashlistRepository{db: database}
}

// GetByID retrieves a single hashlist.
func (r *HashlistRepository) GetByID(ctx context.Context, id int64) (*models.Hashlist, error) {
	query := `
		SELECT id, name, hash_type_id, total_hashes, cracked_hashes, created_at, updated_at
		FROM hashlists WHERE id = $1
	`
	var h models.Hashlist
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&h.ID,
		&h.Name,
		&h.HashTypeID,
		&h.TotalHashes,
		&h.CrackedHashes,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hashlist %d: %w", id, err)
	}
	return &h, nil
}

// ListHashValues returns every hash value in a hashlist. Used to seed the
// crack submission pre-filter.
func (r *HashlistRepository) ListHashValues(ctx context.Context, hashlistID int64) ([]string, error) {
	query := `
		SELECT h.hash_value
		FROM hashes h
		JOIN hashlist_hashes hh ON hh.hash_id = h.id
		WHERE hh.hashlist_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, hashlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hash values for hashlist %d: %w", hashlistID, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan hash value: %w", err)
		}
		values = append(values, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hash values: %w", err)
	}
	return values, nil
}

// ListCracked returns the cracked hashes of a hashlist with their plaintexts.
func (r *HashlistRepository) ListCracked(ctx context.Context, hashlistID int64) ([]models.Hash, error) {
	query := `
		SELECT h.id, h.hash_value, h.plain_text, h.last_updated
		FROM hashes h
		JOIN hashlist_hashes hh ON hh.hash_id = h.id
		WHERE hh.hashlist_id = $1 AND h.plain_text IS NOT NULL
		ORDER BY h.last_updated DESC
	`
	rows, err := r.db.QueryContext(ctx, query, hashlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cracked hashes for hashlist %d: %w", hashlistID, err)
	}
	defer rows.Close()

	var hashes []models.Hash
	for rows.Next() {
		var h models.Hash
		var plainText sql.NullString
		if err := rows.Scan(&h.ID, &h.HashValue, &plainText, &h.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan cracked hash row: %w", err)
		}
		if plainText.Valid {
			h.PlainText = &plainText.String
		}
		hashes = append(hashes, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cracked hash rows: %w", err)
	}
	return hashes, nil
}

// GetHashByValue retrieves a hash by its value within a hashlist.
func (r *HashlistRepository) GetHashByValue(ctx context.Context, hashlistID int64, hashValue string) (*models.Hash, error) {
	query := `
		SELECT h.id, h.hash_value, h.plain_text, h.last_updated
		FROM hashes h
		JOIN hashlist_hashes hh ON hh.hash_id = h.id
		WHERE hh.hashlist_id = $1 AND h.hash_value = $2
	`
	var h models.Hash
	var plainText sql.NullString
	err := r.db.QueryRowContext(ctx, query, hashlistID, hashValue).Scan(
		&h.ID,
		&h.HashValue,
		&plainText,
		&h.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hash by value in hashlist %d: %w", hashlistID, err)
	}
	if plainText.Valid {
		h.PlainText = &plainText.String
	}
	return &h, nil
}

// SetPlainTextTx records a plaintext for a hash inside the caller's
// transaction. The guard on plain_text IS NULL makes duplicate submissions
// no-ops; rows affected tells the caller whether this was a new crack.
func (r *HashlistRepository) SetPlainTextTx(ctx context.Context, tx *sql.Tx, hashID uuid.UUID, plainText string) (int64, error) {
	query := `
		UPDATE hashes
		SET plain_text = $1, last_updated = NOW()
		WHERE id = $2 AND plain_text IS NULL
	`
	result, err := tx.ExecContext(ctx, query, plainText, hashID)
	if err != nil {
		return 0, fmt.Errorf("failed to set plaintext for hash %s: %w", hashID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}

// IncrementCrackedTx bumps a hashlist's cracked counter inside the caller's
// transaction and returns the new count.
func (r *HashlistRepository) IncrementCrackedTx(ctx context.Context, tx *sql.Tx, hashlistID int64, delta int) (int, error) {
	query := `
		UPDATE hashlists
		SET cracked_hashes = cracked_hashes + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING cracked_hashes
	`
	var cracked int
	err := tx.QueryRowContext(ctx, query, delta, hashlistID).Scan(&cracked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment cracked count for hashlist %d: %w", hashlistID, err)
	}
	return cracked, nil
}
