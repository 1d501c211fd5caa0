package database_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tally/pkg/database"
)

func newMockDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return database.NewDatabaseInstance(sqlx.NewDb(sqlDB, "postgres"), logger), mock
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE result_sheets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		require.NotNil(t, database.TxFromContext(ctx))
		_, err := db.Conn(ctx).ExecContext(ctx, "UPDATE result_sheets SET version = version + 1")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_NestedCallsJoinOuterTransaction(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := db.WithTx(context.Background(), func(outer context.Context) error {
		return db.WithTx(outer, func(inner context.Context) error {
			assert.Same(t, database.TxFromContext(outer), database.TxFromContext(inner))
			return nil
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_WithoutTransactionUsesPool(t *testing.T) {
	db, _ := newMockDB(t)
	assert.Nil(t, database.TxFromContext(context.Background()))
	assert.NotNil(t, db.Conn(context.Background()))
}

func TestLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_init.up.sql",
		"000001_init.down.sql",
		"000003_indexes.up.sql",
		"000002_seed.up.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}

	version, err := database.LatestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestLatestVersion_EmptyFolder(t *testing.T) {
	_, err := database.LatestVersion(t.TempDir())
	assert.Error(t, err)
}
