package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"tutoring-chat/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParticipantRepository(t *testing.T) (*ParticipantRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewParticipantRepository(db), mock
}

func TestParticipantRepository_Membership(t *testing.T) {
	t.Run("member_of_active_room", func(t *testing.T) {
		repo, mock := newParticipantRepository(t)
		joinedAt := time.Now()

		mock.ExpectQuery(regexp.QuoteMeta(membershipQuery)).
			WithArgs("R1", "alice").
			WillReturnRows(sqlmock.NewRows([]string{"room_id", "user_id", "joined_at", "last_read_seq"}).
				AddRow("R1", "alice", joinedAt, int64(3)))

		p, err := repo.Membership(context.Background(), "R1", "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(3), p.LastReadSeq)
		assert.Equal(t, joinedAt, p.JoinedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not_a_member", func(t *testing.T) {
		repo, mock := newParticipantRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(membershipQuery)).
			WithArgs("R1", "carol").
			WillReturnError(sql.ErrNoRows)

		p, err := repo.Membership(context.Background(), "R1", "carol")
		assert.Nil(t, p)
		assert.ErrorIs(t, err, domain.ErrNotParticipant)
	})

	t.Run("database_error_is_not_an_authorization_failure", func(t *testing.T) {
		repo, mock := newParticipantRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(membershipQuery)).
			WithArgs("R1", "alice").
			WillReturnError(errors.New("connection refused"))

		_, err := repo.Membership(context.Background(), "R1", "alice")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotParticipant)
	})
}

func TestParticipantRepository_AdvanceWatermark(t *testing.T) {
	t.Run("returns_stored_watermark", func(t *testing.T) {
		repo, mock := newParticipantRepository(t)

		// The stored value already exceeds the request.
		mock.ExpectQuery(regexp.QuoteMeta(advanceWatermarkQuery)).
			WithArgs("R1", "bob", int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"last_read_seq"}).AddRow(int64(8)))

		got, err := repo.AdvanceWatermark(context.Background(), "R1", "bob", 3)
		require.NoError(t, err)
		assert.Equal(t, int64(8), got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not_a_member", func(t *testing.T) {
		repo, mock := newParticipantRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(advanceWatermarkQuery)).
			WithArgs("R1", "carol", int64(1)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.AdvanceWatermark(context.Background(), "R1", "carol", 1)
		assert.ErrorIs(t, err, domain.ErrNotParticipant)
	})
}

func TestParticipantRepository_ListPeers(t *testing.T) {
	t.Run("distinct_peers", func(t *testing.T) {
		repo, mock := newParticipantRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(listPeersQuery)).
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("bob").AddRow("carol"))

		peers, err := repo.ListPeers(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "carol"}, peers)
	})

	t.Run("no_rooms", func(t *testing.T) {
		repo, mock := newParticipantRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(listPeersQuery)).
			WithArgs("loner").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

		peers, err := repo.ListPeers(context.Background(), "loner")
		require.NoError(t, err)
		assert.Empty(t, peers)
	})

	t.Run("scan_error", func(t *testing.T) {
		repo, mock := newParticipantRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(listPeersQuery)).
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("bob").RowError(0, errors.New("row error")))

		_, err := repo.ListPeers(context.Background(), "alice")
		require.Error(t, err)
	})
}
