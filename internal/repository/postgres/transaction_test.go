package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"tutoring-chat/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTxManager(t *testing.T) (*TxManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTxManager(db), mock
}

func TestTxManager_WithTx(t *testing.T) {
	t.Run("commits_on_success", func(t *testing.T) {
		tm, mock := newTxManager(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		called := false
		err := tm.WithTx(context.Background(), func(tx *sql.Tx) error {
			called = true
			return nil
		})

		require.NoError(t, err)
		assert.True(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls_back_on_error", func(t *testing.T) {
		tm, mock := newTxManager(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		userErr := errors.New("operation failed")
		err := tm.WithTx(context.Background(), func(tx *sql.Tx) error {
			return userErr
		})

		assert.Equal(t, userErr, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin_failure", func(t *testing.T) {
		tm, mock := newTxManager(t)
		mock.ExpectBegin().WillReturnError(errors.New("begin failed"))

		err := tm.WithTx(context.Background(), func(tx *sql.Tx) error {
			t.Fatal("fn must not run without a transaction")
			return nil
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit_failure", func(t *testing.T) {
		tm, mock := newTxManager(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

		err := tm.WithTx(context.Background(), func(tx *sql.Tx) error { return nil })

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback_failure_keeps_cause_matchable", func(t *testing.T) {
		tm, mock := newTxManager(t)
		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(errors.New("rollback failed"))

		err := tm.WithTx(context.Background(), func(tx *sql.Tx) error {
			return domain.ErrSeqConflict
		})

		assert.ErrorIs(t, err, domain.ErrSeqConflict)
		assert.Contains(t, err.Error(), "rollback failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("manager_is_reusable", func(t *testing.T) {
		tm, mock := newTxManager(t)
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectBegin()
		mock.ExpectRollback()

		require.NoError(t, tm.WithTx(context.Background(), func(tx *sql.Tx) error { return nil }))
		require.Error(t, tm.WithTx(context.Background(), func(tx *sql.Tx) error { return errors.New("second") }))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
