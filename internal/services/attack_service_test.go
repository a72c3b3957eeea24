package services

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/internal/models"
	"github.com/crackops/taskforge/internal/repository"
)

func newAttackService(t *testing.T) (*AttackService, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	database := &db.DB{DB: mockDB}
	return NewAttackService(
		database,
		repository.NewAttackRepository(database),
		repository.NewTaskRepository(database),
		repository.NewCampaignRepository(database),
		NewKeyspaceEstimationService(&fakeResolver{}),
	), mock
}

func nullableStr(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullableUUID(p *uuid.UUID) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func attackRowFromModel(a *models.Attack) *sqlmock.Rows {
	now := time.Now()
	var campaignID interface{}
	if a.CampaignID != nil {
		campaignID = *a.CampaignID
	}
	return sqlmock.NewRows([]string{
		"id", "campaign_id", "name", "attack_mode", "position", "state", "hash_type_id",
		"mask", "increment_mode", "increment_minimum", "increment_maximum",
		"custom_charset_1", "custom_charset_2", "custom_charset_3", "custom_charset_4",
		"wordlist_id", "rule_list_id", "mask_list_id",
		"estimated_keyspace", "complexity_score", "template_id", "created_at", "updated_at",
	}).AddRow(a.ID, campaignID, a.Name, a.AttackMode, a.Position, a.State, a.HashTypeID,
		nullableStr(a.Mask), a.IncrementMode, a.IncrementMinimum, a.IncrementMaximum,
		nullableStr(a.CustomCharset1), nullableStr(a.CustomCharset2),
		nullableStr(a.CustomCharset3), nullableStr(a.CustomCharset4),
		nullableUUID(a.WordlistID), nullableUUID(a.RuleListID), nullableUUID(a.MaskListID),
		a.EstimatedKeyspace, a.ComplexityScore, nullableUUID(a.TemplateID), now, now)
}

func campaignRowInState(id int, state string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "description", "project_id", "hashlist_id",
		"priority", "state", "archived_at", "created_at", "updated_at",
	}).AddRow(id, "campaign", nil, 1, int64(10), 0, state, nil, now, now)
}

// expectAttackInsert covers the create path after validation: campaign
// lookup, position query, then the attack insert and its single generated
// task committing as one transaction.
func expectAttackInsert(mock sqlmock.Sqlmock, campaignID int, campaignState string, maxPosition int, newID uuid.UUID) {
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns")).
		WithArgs(campaignID).
		WillReturnRows(campaignRowInState(campaignID, campaignState))
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(MAX(position)")).
		WithArgs(campaignID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(maxPosition))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attacks")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(newID, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tasks")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(uuid.New(), now, now))
	mock.ExpectCommit()
}

func TestDuplicateCreatesPendingAtEnd(t *testing.T) {
	svc, mock := newAttackService(t)

	campaignID := 1
	source := &models.Attack{
		ID:                uuid.New(),
		CampaignID:        &campaignID,
		Name:              "digits",
		AttackMode:        models.AttackModeMask,
		Position:          0,
		State:             models.AttackStateRunning,
		HashTypeID:        1000,
		Mask:              strPtr("?d?d?d?d"),
		EstimatedKeyspace: 10000,
		ComplexityScore:   1,
	}
	newID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM attacks")).
		WithArgs(source.ID).
		WillReturnRows(attackRowFromModel(source))
	expectAttackInsert(mock, campaignID, models.CampaignStateActive, 0, newID)

	dup, err := svc.Duplicate(context.Background(), source.ID)
	require.NoError(t, err)
	assert.Equal(t, newID, dup.ID)
	assert.Equal(t, "digits (copy)", dup.Name)
	assert.Equal(t, 1, dup.Position)
	assert.Equal(t, models.AttackStatePending, dup.State)
	require.NotNil(t, dup.TemplateID)
	assert.Equal(t, source.ID, *dup.TemplateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateExhaustedAttackInCompletedCampaign(t *testing.T) {
	svc, mock := newAttackService(t)

	// The last attack exhausting auto-completes its campaign; duplication
	// must still work from that state.
	campaignID := 1
	source := &models.Attack{
		ID:                uuid.New(),
		CampaignID:        &campaignID,
		Name:              "digits",
		AttackMode:        models.AttackModeMask,
		Position:          0,
		State:             models.AttackStateExhausted,
		HashTypeID:        1000,
		Mask:              strPtr("?d?d?d?d"),
		EstimatedKeyspace: 10000,
		ComplexityScore:   1,
	}
	newID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM attacks")).
		WithArgs(source.ID).
		WillReturnRows(attackRowFromModel(source))
	expectAttackInsert(mock, campaignID, models.CampaignStateCompleted, 0, newID)

	dup, err := svc.Duplicate(context.Background(), source.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, dup.Position)
	assert.Equal(t, models.AttackStatePending, dup.State)
	require.NotNil(t, dup.TemplateID)
	assert.Equal(t, source.ID, *dup.TemplateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRollsBackOnTaskInsertFailure(t *testing.T) {
	svc, mock := newAttackService(t)

	campaignID := 1
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns")).
		WithArgs(campaignID).
		WillReturnRows(campaignRowInState(campaignID, models.CampaignStateActive))
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(MAX(position)")).
		WithArgs(campaignID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(-1))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attacks")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(uuid.New(), now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tasks")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	attack := &models.Attack{
		Name:       "digits",
		AttackMode: models.AttackModeMask,
		HashTypeID: 1000,
		Mask:       strPtr("?d?d?d?d"),
	}
	err := svc.Create(context.Background(), campaignID, attack)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunningAttackRequiresConfirm(t *testing.T) {
	svc, mock := newAttackService(t)

	campaignID := 1
	attack := &models.Attack{
		ID:         uuid.New(),
		CampaignID: &campaignID,
		Name:       "digits",
		AttackMode: models.AttackModeMask,
		State:      models.AttackStateRunning,
		HashTypeID: 1000,
		Mask:       strPtr("?d?d?d?d"),
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM attacks")).
		WithArgs(attack.ID).
		WillReturnRows(attackRowFromModel(attack))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*)")).
		WithArgs(attack.ID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	_, err := svc.Update(context.Background(), attack.ID, models.AttackPatch{Mask: strPtr("?l?l?l?l")}, false)
	var confirmErr *EditRequiresConfirmationError
	require.ErrorAs(t, err, &confirmErr)
	assert.Equal(t, 2, confirmErr.OutstandingTasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithConfirmAbandonsAndResets(t *testing.T) {
	svc, mock := newAttackService(t)

	campaignID := 1
	attack := &models.Attack{
		ID:         uuid.New(),
		CampaignID: &campaignID,
		Name:       "digits",
		AttackMode: models.AttackModeMask,
		State:      models.AttackStateRunning,
		HashTypeID: 1000,
		Mask:       strPtr("?d?d?d?d"),
	}
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM attacks")).
		WithArgs(attack.ID).
		WillReturnRows(attackRowFromModel(attack))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*)")).
		WithArgs(attack.ID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'abandoned'")).
		WithArgs(attack.ID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attacks")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tasks")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(uuid.New(), now, now))
	mock.ExpectCommit()

	updated, err := svc.Update(context.Background(), attack.ID, models.AttackPatch{Mask: strPtr("?l?l?l?l")}, true)
	require.NoError(t, err)
	assert.Equal(t, "?l?l?l?l", *updated.Mask)
	assert.Equal(t, models.AttackStatePending, updated.State)
	assert.Equal(t, int64(456976), updated.EstimatedKeyspace)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRoundTrip(t *testing.T) {
	svc, mock := newAttackService(t)

	campaignID := 1
	charset := "abc"
	source := &models.Attack{
		ID:                uuid.New(),
		CampaignID:        &campaignID,
		Name:              "custom digits",
		AttackMode:        models.AttackModeMask,
		Position:          0,
		State:             models.AttackStateExhausted,
		HashTypeID:        1000,
		Mask:              strPtr("?d?d?1"),
		CustomCharset1:    &charset,
		EstimatedKeyspace: 300,
		ComplexityScore:   1,
	}
	newID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM attacks")).
		WithArgs(source.ID).
		WillReturnRows(attackRowFromModel(source))

	template, err := svc.ExportTemplate(context.Background(), source.ID)
	require.NoError(t, err)
	assert.Equal(t, "?d?d?1", *template.Mask)

	expectAttackInsert(mock, campaignID, models.CampaignStateActive, 3, newID)

	imported, err := svc.ImportTemplate(context.Background(), campaignID, template)
	require.NoError(t, err)
	assert.Equal(t, 4, imported.Position)
	assert.Equal(t, models.AttackStatePending, imported.State)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attacks")).
		WithArgs(imported.ID).
		WillReturnRows(attackRowFromModel(imported))

	reexported, err := svc.ExportTemplate(context.Background(), imported.ID)
	require.NoError(t, err)
	assert.Equal(t, template, reexported)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildTasksSingleTask(t *testing.T) {
	attack := &models.Attack{
		ID:                uuid.New(),
		AttackMode:        models.AttackModeDictionary,
		EstimatedKeyspace: 5000,
	}

	tasks := buildTasks(attack)
	require.Len(t, tasks, 1)
	assert.Equal(t, attack.ID, tasks[0].AttackID)
	assert.Equal(t, models.TaskStatusPending, tasks[0].Status)
	assert.Equal(t, int64(5000), tasks[0].KeyspaceTotal)
}

func TestBuildTasksIncrementLayers(t *testing.T) {
	attack := &models.Attack{
		ID:               uuid.New(),
		AttackMode:       models.AttackModeMask,
		Mask:             strPtr("?d?d?d"),
		IncrementMode:    true,
		IncrementMinimum: 1,
		IncrementMaximum: 3,
	}

	tasks := buildTasks(attack)
	require.Len(t, tasks, 3)
	assert.Equal(t, int64(10), tasks[0].KeyspaceTotal)
	assert.Equal(t, int64(100), tasks[1].KeyspaceTotal)
	assert.Equal(t, int64(1000), tasks[2].KeyspaceTotal)
	for _, task := range tasks {
		assert.Equal(t, models.TaskStatusPending, task.Status)
		assert.Equal(t, attack.ID, task.AttackID)
	}
}

func TestApplyPatch(t *testing.T) {
	wordlistID := uuid.New()
	attack := &models.Attack{
		Name:       "original",
		AttackMode: models.AttackModeMask,
		Mask:       strPtr("?d?d"),
	}

	applyPatch(attack, models.AttackPatch{
		Name:       strPtr("renamed"),
		Mask:       strPtr("?l?l?l"),
		WordlistID: &wordlistID,
	})

	assert.Equal(t, "renamed", attack.Name)
	assert.Equal(t, "?l?l?l", *attack.Mask)
	assert.Equal(t, wordlistID, *attack.WordlistID)
}

func TestAttackPatchConfigChanged(t *testing.T) {
	assert.False(t, models.AttackPatch{}.ConfigChanged())
	assert.False(t, models.AttackPatch{Name: strPtr("cosmetic")}.ConfigChanged())
	assert.True(t, models.AttackPatch{Mask: strPtr("?d")}.ConfigChanged())

	id := uuid.New()
	assert.True(t, models.AttackPatch{RuleListID: &id}.ConfigChanged())
}

func TestValidateConfig(t *testing.T) {
	svc := &AttackService{}
	wordlistID := uuid.New()

	tests := []struct {
		name      string
		attack    models.Attack
		wantField string
	}{
		{
			name:      "missing name",
			attack:    models.Attack{AttackMode: models.AttackModeMask, Mask: strPtr("?d")},
			wantField: "name",
		},
		{
			name:      "dictionary without wordlist",
			attack:    models.Attack{Name: "a", AttackMode: models.AttackModeDictionary},
			wantField: "wordlist_id",
		},
		{
			name:      "mask without mask or list",
			attack:    models.Attack{Name: "a", AttackMode: models.AttackModeMask},
			wantField: "mask",
		},
		{
			name:      "invalid mask token",
			attack:    models.Attack{Name: "a", AttackMode: models.AttackModeMask, Mask: strPtr("?x")},
			wantField: "mask",
		},
		{
			name: "increment minimum below one",
			attack: models.Attack{
				Name: "a", AttackMode: models.AttackModeMask,
				Mask: strPtr("?d?d"), IncrementMode: true,
				IncrementMinimum: 0, IncrementMaximum: 2,
			},
			wantField: "increment_minimum",
		},
		{
			name: "hybrid without mask",
			attack: models.Attack{
				Name: "a", AttackMode: models.AttackModeHybridDictionary,
				WordlistID: &wordlistID,
			},
			wantField: "mask",
		},
		{
			name:      "unknown mode",
			attack:    models.Attack{Name: "a", AttackMode: "combinator"},
			wantField: "attack_mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.validateConfig(&tt.attack)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}

	valid := models.Attack{
		Name:       "ok",
		AttackMode: models.AttackModeMask,
		Mask:       strPtr("?l?d"),
	}
	assert.NoError(t, svc.validateConfig(&valid))
}
