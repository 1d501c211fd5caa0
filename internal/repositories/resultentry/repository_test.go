package resultentry_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tally/internal/repositories/resultentry"
	"github.com/Ramsey-B/tally/pkg/database"
	"github.com/Ramsey-B/tally/pkg/models"
)

var entryColumns = []string{"sheet_id", "target_key", "position_id", "candidate_id", "poll_option_id", "votes", "updated_at"}

func newRepository(t *testing.T) (*resultentry.Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(sqlDB, "postgres"), logger)
	return resultentry.NewRepository(db, logger), mock
}

func strPtr(s string) *string { return &s }

func TestRepository_Upsert(t *testing.T) {
	repo, mock := newRepository(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO result_entries (.+) ON CONFLICT \(sheet_id, target_key\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.Upsert(context.Background(), []models.ResultEntry{
		{SheetID: "sheet-1", TargetKey: "candidate:a", CandidateID: strPtr("a"), Votes: 70, UpdatedAt: now},
		{SheetID: "sheet-1", TargetKey: "candidate:b", CandidateID: strPtr("b"), Votes: 50, UpdatedAt: now},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Upsert_Empty(t *testing.T) {
	repo, mock := newRepository(t)

	require.NoError(t, repo.Upsert(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListBySheet(t *testing.T) {
	repo, mock := newRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM result_entries WHERE (.+) ORDER BY target_key`).
		WithArgs("sheet-1").
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("sheet-1", "candidate:a", "president", "a", nil, 70, now).
			AddRow("sheet-1", "poll_option:yes", nil, nil, "yes", 12, now))

	entries, err := repo.ListBySheet(context.Background(), "sheet-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.True(t, entries[0].IsCandidate())
	assert.Equal(t, "president", *entries[0].PositionID)
	assert.False(t, entries[1].IsCandidate())
	assert.Equal(t, "yes", *entries[1].PollOptionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CountBySheet(t *testing.T) {
	repo, mock := newRepository(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM result_entries WHERE sheet_id = \$1`).
		WithArgs("sheet-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountBySheet(context.Background(), "sheet-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListCertifiedCandidateEntries(t *testing.T) {
	repo, mock := newRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM result_entries e JOIN result_sheets s ON s.id = e.sheet_id WHERE (.+)`).
		WithArgs("election-1", "certified").
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("sheet-1", "candidate:a", "president", "a", nil, 70, now))

	entries, err := repo.ListCertifiedCandidateEntries(context.Background(), "election-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 70, entries[0].Votes)
	assert.NoError(t, mock.ExpectationsWereMet())
}
