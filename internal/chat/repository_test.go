package chat

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"converse/infrastructure"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestAdvanceMessageStatusForward(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE messages SET status = \$1`).
		WithArgs(StatusDelivered, "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := repo.AdvanceMessageStatus(context.Background(), "m1", StatusDelivered)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceMessageStatusAlreadyPast(t *testing.T) {
	repo, mock := newMockRepo(t)

	// The rank guard in the WHERE clause matches no row when the stored
	// status is already at or beyond the requested one.
	mock.ExpectExec(`UPDATE messages SET status = \$1`).
		WithArgs(StatusDelivered, "m1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.AdvanceMessageStatus(context.Background(), "m1", StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceMessageStatusRejectsUnknownStatus(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.AdvanceMessageStatus(context.Background(), "m1", MessageStatus("seen"))
	assert.ErrorIs(t, err, infrastructure.ErrInvalidInput)
}

func TestIsParticipant(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT 1 FROM conversation_participants`).
		WithArgs("c1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM conversation_participants`).
		WithArgs("c1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	ok, err := repo.IsParticipant(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsParticipant(context.Background(), "c1", "u2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMessageNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT m\.id, m\.conversation_id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "sender_id", "username", "content", "status", "created_at"}))

	_, err := repo.GetMessage(context.Background(), "missing")
	assert.ErrorIs(t, err, infrastructure.ErrMessageNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessage(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	m := &Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "u1",
		Content:        "hi",
		Status:         StatusSent,
		CreatedAt:      now,
	}
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs("m1", "c1", "u1", "hi", StatusSent, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateMessage(context.Background(), m))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConversationRead(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE messages SET status = 'read'`).
		WithArgs("c1", "reader").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkConversationRead(context.Background(), "c1", "reader")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesChronological(t *testing.T) {
	repo, mock := newMockRepo(t)

	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "sender_id", "username", "content", "status", "created_at"}).
		AddRow("m2", "c1", "u1", "alice", "second", "sent", t0.Add(time.Minute)).
		AddRow("m1", "c1", "u1", "alice", "first", "read", t0)
	mock.ExpectQuery(`SELECT m\.id, m\.conversation_id`).
		WithArgs("c1", 50).
		WillReturnRows(rows)

	msgs, err := repo.ListMessages(context.Background(), "c1", 50, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConversationTransactional(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	conv := &Conversation{ID: "c1", Name: "team", Type: ConversationGroup, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO conversations`).
		WithArgs("c1", sqlmock.AnyArg(), ConversationGroup, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO conversation_participants`).
		WithArgs("c1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO conversation_participants`).
		WithArgs("c1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateConversation(context.Background(), conv, []string{"u1", "u2"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
