package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crackops/taskforge/internal/models"
)

func taskRows(taskID uuid.UUID, attackID uuid.UUID, agentID int, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "attack_id", "agent_id", "status", "progress_percent",
		"keyspace_total", "keyspace_processed", "retry_count", "error_message",
		"created_at", "updated_at", "assigned_at", "completed_at",
	}).AddRow(taskID, attackID, agentID, status, 0.0, int64(1000), int64(0), 0, nil, now, now, now, nil)
}

func TestClaimNextForAgentSuccess(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewTaskRepository(database)

	taskID := uuid.New()
	attackID := uuid.New()

	mock.ExpectBegin()
	// No outstanding task held by the agent.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tasks")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	// Candidate selection binds only the capability array.
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF t SKIP LOCKED")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(taskID))
	// Claim.
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE tasks")).
		WithArgs(7, taskID).
		WillReturnRows(taskRows(taskID, attackID, 7, models.TaskStatusAssigned))
	mock.ExpectCommit()

	task, err := repo.ClaimNextForAgent(context.Background(), 7, []int{1000, 1800})
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, models.TaskStatusAssigned, task.Status)
	require.NotNil(t, task.AgentID)
	assert.Equal(t, 7, *task.AgentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextForAgentBusy(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewTaskRepository(database)

	heldID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tasks")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(heldID))
	mock.ExpectRollback()

	_, err := repo.ClaimNextForAgent(context.Background(), 7, []int{1000})
	var busy *AgentBusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, 7, busy.AgentID)
	assert.Equal(t, heldID, busy.TaskID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextForAgentNoEligibleTasks(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewTaskRepository(database)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tasks")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF t SKIP LOCKED")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.ClaimNextForAgent(context.Background(), 7, []int{1000})
	assert.ErrorIs(t, err, ErrNoEligibleTasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextForAgentUniqueViolationMeansBusy(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewTaskRepository(database)

	taskID := uuid.New()

	// A second claim by the same agent passes the busy check before the
	// first has committed; the claim update then trips the one-outstanding
	// unique index.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tasks")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF t SKIP LOCKED")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(taskID))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE tasks")).
		WithArgs(7, taskID).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_tasks_one_outstanding_per_agent"})
	mock.ExpectRollback()

	_, err := repo.ClaimNextForAgent(context.Background(), 7, []int{1000})
	var busy *AgentBusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, 7, busy.AgentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextForAgentEmptyCapabilities(t *testing.T) {
	database, _ := newMockDB(t)
	repo := NewTaskRepository(database)

	_, err := repo.ClaimNextForAgent(context.Background(), 7, nil)
	assert.ErrorIs(t, err, ErrNoEligibleTasks)
}

func TestTransitionStatusClearsAgentOnTerminal(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewTaskRepository(database)
	taskID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("agent_id = NULL")).
		WithArgs(models.TaskStatusAbandoned, taskID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.TransitionStatus(context.Background(), taskID,
		[]string{models.TaskStatusAssigned, models.TaskStatusRunning}, models.TaskStatusAbandoned)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProgressGuard(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewTaskRepository(database)
	taskID := uuid.New()

	// A report against a task no longer running (or reassigned) matches no
	// rows; the caller turns that into a conflict.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks")).
		WithArgs(55.5, int64(555), taskID, 7).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := repo.UpdateProgress(context.Background(), taskID, 7, 55.5, 555)
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequeue(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewTaskRepository(database)
	taskID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("retry_count = retry_count + 1")).
		WithArgs(taskID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.Requeue(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAbandonByAgent(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewTaskRepository(database)

	first := uuid.New()
	second := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE tasks")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(first).AddRow(second))

	ids, err := repo.AbandonByAgent(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
