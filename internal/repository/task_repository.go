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
	"github.com/crackops/taskforge/pkg/debug"
)

// ErrNoEligibleTasks is the empty claim result. Services translate it into
// their domain error taxonomy.
var ErrNoEligibleTasks = errors.New("no eligible pending tasks")

// AgentBusyError reports that an agent already holds an outstanding task,
// identifying the held task.
type AgentBusyError struct {
	AgentID int
	TaskID  uuid.UUID
}

func (e *AgentBusyError) Error() string {
	if e.TaskID == uuid.Nil {
		return fmt.Sprintf("agent %d already holds an outstanding task", e.AgentID)
	}
	return fmt.Sprintf("agent %d already holds outstanding task %s", e.AgentID, e.TaskID)
}

// TaskRepository handles database operations for tasks, including the atomic
// claim used by task assignment.
type TaskRepository struct {
	db *db.DB
}

// NewTaskRepository creates a new instance of TaskRepository.
func NewTaskRepository(database *db.DB) *TaskRepository {
	return &TaskRepository{db: database}
}

const taskColumns = `id, attack_id, agent_id, status, progress_percent,
	keyspace_total, keyspace_processed, retry_count, error_message,
	created_at, updated_at, assigned_at, completed_at`

func scanTask(row interface{ Scan(...interface{}) error }) (*models.Task, error) {
	var t models.Task
	var agentID sql.NullInt64
	var errorMessage sql.NullString
	var assignedAt, completedAt sql.NullTime

	err := row.Scan(
		&t.ID,
		&t.AttackID,
		&agentID,
		&t.Status,
		&t.ProgressPercent,
		&t.KeyspaceTotal,
		&t.KeyspaceProcessed,
		&t.RetryCount,
		&errorMessage,
		&t.CreatedAt,
		&t.UpdatedAt,
		&assignedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if agentID.Valid {
		id := int(agentID.Int64)
		t.AgentID = &id
	}
	if errorMessage.Valid {
		t.ErrorMessage = &errorMessage.String
	}
	if assignedAt.Valid {
		t.AssignedAt = &assignedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

// Create inserts a new pending task.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (attack_id, status, keyspace_total)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		task.AttackID,
		task.Status,
		task.KeyspaceTotal,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// CreateTx inserts a new pending task inside the caller's transaction. Used
// when attack edits regenerate tasks atomically with the config rewrite.
func (r *TaskRepository) CreateTx(ctx context.Context, tx *sql.Tx, task *models.Task) error {
	query := `
		INSERT INTO tasks (attack_id, status, keyspace_total)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRowContext(ctx, query,
		task.AttackID,
		task.Status,
		task.KeyspaceTotal,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID retrieves a single task.
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return task, nil
}

// ListByAttack returns all tasks of an attack, oldest first.
func (r *TaskRepository) ListByAttack(ctx context.Context, attackID uuid.UUID) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE attack_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, attackID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks for attack %s: %w", attackID, err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

// CountOutstandingByAttack counts tasks of an attack in assigned or running
// status.
func (r *TaskRepository) CountOutstandingByAttack(ctx context.Context, attackID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM tasks WHERE attack_id = $1 AND status IN ('assigned', 'running')`
	var count int
	if err := r.db.QueryRowContext(ctx, query, attackID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outstanding tasks for attack %s: %w", attackID, err)
	}
	return count, nil
}

// CountNonTerminalByAttack counts tasks of an attack that have not reached a
// terminal status.
func (r *TaskRepository) CountNonTerminalByAttack(ctx context.Context, attackID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM tasks WHERE attack_id = $1 AND status IN ('pending', 'assigned', 'running')`
	var count int
	if err := r.db.QueryRowContext(ctx, query, attackID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count non-terminal tasks for attack %s: %w", attackID, err)
	}
	return count, nil
}

// ClaimNextForAgent atomically claims the next eligible pending task for an
// agent. The busy check and the claim happen in one transaction with row
// locks so concurrent callers can never double-assign a task or race the
// outstanding-task check.
//
// Eligibility: task pending, parent attack pending or running, parent
// campaign active (not archived), attack hash type within capableHashTypes.
// Ordering: campaign priority desc, attack position asc, task created_at asc.
func (r *TaskRepository) ClaimNextForAgent(ctx context.Context, agentID int, capableHashTypes []int) (*models.Task, error) {
	if len(capableHashTypes) == 0 {
		return nil, ErrNoEligibleTasks
	}

	var claimed *models.Task
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		// Lock the agent's outstanding task, if any. Holding the lock until
		// commit serialises racing claims for the same agent.
		var heldID uuid.UUID
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM tasks
			WHERE agent_id = $1 AND status IN ('assigned', 'running')
			FOR UPDATE
		`, agentID).Scan(&heldID)
		if err == nil {
			return &AgentBusyError{AgentID: agentID, TaskID: heldID}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check outstanding tasks for agent %d: %w", agentID, err)
		}

		// Pick the first eligible task. SKIP LOCKED lets concurrent claimers
		// move past rows another transaction is already taking.
		row := tx.QueryRowContext(ctx, `
			SELECT t.id
			FROM tasks t
			JOIN attacks a ON a.id = t.attack_id
			JOIN campaigns c ON c.id = a.campaign_id
			WHERE t.status = 'pending'
			  AND a.state IN ('pending', 'running')
			  AND c.state = 'active'
			  AND c.archived_at IS NULL
			  AND a.hash_type_id = ANY($1)
			ORDER BY c.priority DESC, a.position ASC, t.created_at ASC
			LIMIT 1
			FOR UPDATE OF t SKIP LOCKED
		`, pq.Array(capableHashTypes))

		var taskID uuid.UUID
		if err := row.Scan(&taskID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoEligibleTasks
			}
			return fmt.Errorf("failed to select eligible task for agent %d: %w", agentID, err)
		}

		task, err := scanTask(tx.QueryRowContext(ctx, `
			UPDATE tasks
			SET agent_id = $1, status = 'assigned', assigned_at = NOW(), updated_at = NOW()
			WHERE id = $2 AND status = 'pending'
			RETURNING `+taskColumns+`
		`, agentID, taskID))
		if err != nil {
			// Two concurrent claims by the same agent both pass the busy
			// check before either row exists; the partial unique index on
			// (agent_id) breaks the tie and the loser is busy, not broken.
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return &AgentBusyError{AgentID: agentID}
			}
			return fmt.Errorf("failed to claim task %s for agent %d: %w", taskID, agentID, err)
		}

		claimed = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	debug.Log("Claimed task for agent", map[string]interface{}{
		"agent_id": agentID,
		"task_id":  claimed.ID,
	})
	return claimed, nil
}

// TransitionStatus moves a task from one of fromStatuses to toStatus. The
// agent reference is cleared on terminal transitions so the agent-ref
// invariant holds. Returns rows affected; zero signals a conflict to the
// caller.
func (r *TaskRepository) TransitionStatus(ctx context.Context, id uuid.UUID, fromStatuses []string, toStatus string) (int64, error) {
	terminal := toStatus == models.TaskStatusCompleted ||
		toStatus == models.TaskStatusExhausted ||
		toStatus == models.TaskStatusAbandoned

	var query string
	if terminal {
		query = `
			UPDATE tasks
			SET status = $1, agent_id = NULL, completed_at = NOW(), updated_at = NOW()
			WHERE id = $2 AND status = ANY($3)
		`
	} else {
		query = `
			UPDATE tasks
			SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status = ANY($3)
		`
	}

	result, err := r.db.ExecContext(ctx, query, toStatus, id, pq.Array(fromStatuses))
	if err != nil {
		return 0, fmt.Errorf("failed to transition task %s to %s: %w", id, toStatus, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}

// MarkExhausted finishes a running task, recording full progress. toStatus is
// completed or exhausted depending on whether the hashlist is fully cracked.
func (r *TaskRepository) MarkExhausted(ctx context.Context, id uuid.UUID, toStatus string) (int64, error) {
	query := `
		UPDATE tasks
		SET status = $1, agent_id = NULL, progress_percent = 100,
			keyspace_processed = keyspace_total, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = 'running'
	`
	result, err := r.db.ExecContext(ctx, query, toStatus, id)
	if err != nil {
		return 0, fmt.Errorf("failed to mark task %s %s: %w", id, toStatus, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}

// AbandonByAttackTx abandons every non-terminal task of an attack inside the
// caller's transaction. Used by the lifecycle-reset path.
func (r *TaskRepository) AbandonByAttackTx(ctx context.Context, tx *sql.Tx, attackID uuid.UUID) (int64, error) {
	query := `
		UPDATE tasks
		SET status = 'abandoned', agent_id = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE attack_id = $1 AND status IN ('pending', 'assigned', 'running')
	`
	result, err := tx.ExecContext(ctx, query, attackID)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon tasks for attack %s: %w", attackID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}

// AbandonByAgent abandons the outstanding tasks of an agent. Used by the
// offline sweep. Returns the ids of the abandoned tasks.
func (r *TaskRepository) AbandonByAgent(ctx context.Context, agentID int) ([]uuid.UUID, error) {
	query := `
		UPDATE tasks
		SET status = 'abandoned', agent_id = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE agent_id = $1 AND status IN ('assigned', 'running')
		RETURNING id
	`
	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to abandon tasks for agent %d: %w", agentID, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan abandoned task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating abandoned task ids: %w", err)
	}
	return ids, nil
}

// Requeue returns an abandoned task to pending, clearing its progress and
// incrementing retry_count. Zero rows affected means the task was not
// abandoned.
func (r *TaskRepository) Requeue(ctx context.Context, id uuid.UUID) (int64, error) {
	query := `
		UPDATE tasks
		SET status = 'pending', agent_id = NULL, progress_percent = 0,
			keyspace_processed = 0, retry_count = retry_count + 1,
			assigned_at = NULL, completed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'abandoned'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue task %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}

// UpdateProgress records progress for a running task held by the given
// agent. Zero rows affected tells the agent its task is stale (reassigned or
// terminal).
func (r *TaskRepository) UpdateProgress(ctx context.Context, id uuid.UUID, agentID int, progressPercent float64, keyspaceProcessed int64) (int64, error) {
	query := `
		UPDATE tasks
		SET progress_percent = $1, keyspace_processed = $2, updated_at = NOW()
		WHERE id = $3 AND agent_id = $4 AND status = 'running'
	`
	result, err := r.db.ExecContext(ctx, query, progressPercent, keyspaceProcessed, id, agentID)
	if err != nil {
		return 0, fmt.Errorf("failed to update progress for task %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}
