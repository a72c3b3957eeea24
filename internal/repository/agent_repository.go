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

// AgentRepository handles database operations for agents.
type AgentRepository struct {
	db *db.DB
}

// NewAgentRepository creates a new instance of AgentRepository.
func NewAgentRepository(database *db.DB) *AgentRepository {
	return &AgentRepository{db: database}
}

const agentColumns = `id, name, token, is_enabled, last_seen_at, created_at, updated_at`

func scanAgent(row interface{ Scan(...interface{}) error }) (*models.Agent, error) {
	var a models.Agent
	var lastSeenAt sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Token,
		&a.IsEnabled,
		&lastSeenAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSeenAt.Valid {
		a.LastSeenAt = &lastSeenAt.Time
	}
	return &a, nil
}

// Create registers a new agent.
func (r *AgentRepository) Create(ctx context.Context, agent *models.Agent) error {
	query := `
		INSERT INTO agents (name, token, is_enabled)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		agent.Name,
		agent.Token,
		agent.IsEnabled,
	).Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// GetByID retrieves a single agent.
func (r *AgentRepository) GetByID(ctx context.Context, id int) (*models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	agent, err := scanAgent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %d: %w", id, err)
	}
	return agent, nil
}

// UpdateLastSeen stamps the agent's heartbeat time.
func (r *AgentRepository) UpdateLastSeen(ctx context.Context, id int) error {
	query := `UPDATE agents SET last_seen_at = NOW(), updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to update last seen for agent %d: %w", id, err)
	}
	return nil
}

// ListWithOutstandingBefore returns the ids of agents that hold an
// outstanding task but have not been seen since the cutoff. Used by the
// offline sweep.
func (r *AgentRepository) ListWithOutstandingBefore(ctx context.Context, cutoff time.Time) ([]int, error) {
	query := `
		SELECT DISTINCT a.id
		FROM agents a
		JOIN tasks t ON t.agent_id = a.id
		WHERE t.status IN ('assigned', 'running')
		  AND (a.last_seen_at IS NULL OR a.last_seen_at < $1)
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale agents: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan agent id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent ids: %w", err)
	}
	return ids, nil
}
