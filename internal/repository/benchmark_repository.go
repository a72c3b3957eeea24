package repository

import (
	"context"
	"fmt"

	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/internal/models"
)

// BenchmarkRepository handles database operations for agent benchmarks.
// Benchmarks are append-only; capability questions are answered from the
// latest set of rows per agent.
type BenchmarkRepository struct {
	db *db.DB
}

// NewBenchmarkRepository creates a new instance of BenchmarkRepository.
func NewBenchmarkRepository(database *db.DB) *BenchmarkRepository {
	return &BenchmarkRepository{db: database}
}

// Create records one benchmark result.
func (r *BenchmarkRepository) Create(ctx context.Context, benchmark *models.Benchmark) error {
	query := `
		INSERT INTO benchmarks (agent_id, hash_type_id, device, speed)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		benchmark.AgentID,
		benchmark.HashTypeID,
		benchmark.Device,
		benchmark.Speed,
	).Scan(&benchmark.ID, &benchmark.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create benchmark: %w", err)
	}
	return nil
}

// HashTypesForAgent returns the distinct hash types the agent has benchmarked
// with a positive speed.
func (r *BenchmarkRepository) HashTypesForAgent(ctx context.Context, agentID int) ([]int, error) {
	query := `
		SELECT DISTINCT hash_type_id
		FROM benchmarks
		WHERE agent_id = $1 AND speed > 0
		ORDER BY hash_type_id
	`
	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hash types for agent %d: %w", agentID, err)
	}
	defer rows.Close()

	var hashTypes []int
	for rows.Next() {
		var hashType int
		if err := rows.Scan(&hashType); err != nil {
			return nil, fmt.Errorf("failed to scan hash type: %w", err)
		}
		hashTypes = append(hashTypes, hashType)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hash types: %w", err)
	}
	return hashTypes, nil
}

// ListByAgent returns all benchmark rows for an agent, newest first.
func (r *BenchmarkRepository) ListByAgent(ctx context.Context, agentID int) ([]models.Benchmark, error) {
	query := `
		SELECT id, agent_id, hash_type_id, device, speed, created_at
		FROM benchmarks
		WHERE agent_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmarks for agent %d: %w", agentID, err)
	}
	defer rows.Close()

	var benchmarks []models.Benchmark
	for rows.Next() {
		var b models.Benchmark
		if err := rows.Scan(&b.ID, &b.AgentID, &b.HashTypeID, &b.Device, &b.Speed, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark row: %w", err)
		}
		benchmarks = append(benchmarks, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating benchmark rows: %w", err)
	}
	return benchmarks, nil
}
