package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crackops/taskforge/internal/cache/capability"
	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/internal/repository"
)

func newAssignmentService(t *testing.T) (*TaskAssignmentService, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	database := &db.DB{DB: mockDB}
	capabilitySvc := NewCapabilityService(
		repository.NewBenchmarkRepository(database),
		repository.NewAgentRepository(database),
		capability.New(time.Minute),
	)
	return NewTaskAssignmentService(
		repository.NewTaskRepository(database),
		repository.NewAttackRepository(database),
		repository.NewAgentRepository(database),
		capabilitySvc,
	), mock
}

func agentRow(id int, enabled bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "token", "is_enabled", "last_seen_at", "created_at", "updated_at",
	}).AddRow(id, "agent", "tok", enabled, now, now, now)
}

func TestAssignNextUnknownAgent(t *testing.T) {
	svc, mock := newAssignmentService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM agents")).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.AssignNext(context.Background(), 99)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "agent", notFound.Resource)
}

func TestAssignNextDisabledAgent(t *testing.T) {
	svc, mock := newAssignmentService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM agents")).
		WithArgs(7).
		WillReturnRows(agentRow(7, false))

	_, err := svc.AssignNext(context.Background(), 7)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestAssignNextNoBenchmarksMeansNoWork(t *testing.T) {
	svc, mock := newAssignmentService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM agents")).
		WithArgs(7).
		WillReturnRows(agentRow(7, true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM benchmarks")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"hash_type_id"}))

	_, err := svc.AssignNext(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNoPendingTasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignNextBusyAgent(t *testing.T) {
	svc, mock := newAssignmentService(t)
	heldID := "3c0f9f1e-0000-4000-8000-000000000001"

	mock.ExpectQuery(regexp.QuoteMeta("FROM agents")).
		WithArgs(7).
		WillReturnRows(agentRow(7, true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM benchmarks")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"hash_type_id"}).AddRow(1000))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tasks")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(heldID))
	mock.ExpectRollback()

	_, err := svc.AssignNext(context.Background(), 7)
	var busy *AgentBusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, 7, busy.AgentID)
	assert.Equal(t, heldID, busy.TaskID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
