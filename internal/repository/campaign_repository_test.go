package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/internal/models"
)

func newMockDB(t *testing.T) (*db.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &db.DB{DB: mockDB}, mock
}

func TestCampaignCreate(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewCampaignRepository(database)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO campaigns")).
		WithArgs("ntlm sweep", nil, 1, int64(10), 5, models.CampaignStateDraft).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	campaign := &models.Campaign{
		Name:       "ntlm sweep",
		ProjectID:  1,
		HashlistID: 10,
		Priority:   5,
		State:      models.CampaignStateDraft,
	}
	require.NoError(t, repo.Create(context.Background(), campaign))
	assert.Equal(t, 7, campaign.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignGetByIDNotFound(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewCampaignRepository(database)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignUpdateStateGuarded(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewCampaignRepository(database)

	t.Run("transition applies when state matches", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns")).
			WithArgs(models.CampaignStateActive, 3, models.CampaignStateDraft).
			WillReturnResult(sqlmock.NewResult(0, 1))

		affected, err := repo.UpdateStateGuarded(context.Background(), 3, models.CampaignStateDraft, models.CampaignStateActive)
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)
	})

	t.Run("stale transition affects zero rows", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns")).
			WithArgs(models.CampaignStateActive, 3, models.CampaignStateDraft).
			WillReturnResult(sqlmock.NewResult(0, 0))

		affected, err := repo.UpdateStateGuarded(context.Background(), 3, models.CampaignStateDraft, models.CampaignStateActive)
		require.NoError(t, err)
		assert.Zero(t, affected)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignArchiveGuard(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewCampaignRepository(database)
	archivedAt := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns")).
		WithArgs(models.CampaignStateArchived, archivedAt, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns")).
		WithArgs(models.CampaignStateArchived, archivedAt, 4).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := repo.Archive(context.Background(), 4, archivedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// Second archive is a no-op detected through rows affected.
	affected, err = repo.Archive(context.Background(), 4, archivedAt)
	require.NoError(t, err)
	assert.Zero(t, affected)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRaisePriority(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewCampaignRepository(database)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE campaigns")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"priority"}).AddRow(6))

	priority, err := repo.RaisePriority(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 6, priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}
