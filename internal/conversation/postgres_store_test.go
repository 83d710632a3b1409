package conversation

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresCreateConversation(t *testing.T) {
	store, mock := newMockStore(t)
	userID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversations")).
		WithArgs(sqlmock.AnyArg(), userID, nil, "heavy_flow", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	conv := &Conversation{UserID: userID, AssessmentPattern: "heavy_flow"}
	require.NoError(t, store.CreateConversation(context.Background(), conv))

	assert.False(t, conv.ID.IsZero(), "store must assign an id")
	assert.False(t, conv.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertMessageAssignsSeq(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()
	userID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO conversation_messages")).
		WithArgs(sqlmock.AnyArg(), convID.UUID(), "user", "hello", nil, userID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(3)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET updated_at")).
		WithArgs(sqlmock.AnyArg(), convID.UUID()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg := &Message{ConversationID: convID, Role: RoleUser, Content: "hello", UserID: &userID}
	require.NoError(t, store.InsertMessage(context.Background(), msg))

	assert.Equal(t, int64(3), msg.Seq)
	assert.NotEqual(t, uuid.Nil, msg.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertMessageFailure(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO conversation_messages")).
		WillReturnError(errors.New("connection refused"))

	err := store.InsertMessage(context.Background(), &Message{ConversationID: convID, Role: RoleUser, Content: "hi"})
	if err == nil {
		t.Fatal("expected an error from a failed insert")
	}
	assert.Contains(t, err.Error(), "failed to insert message")
}

func TestPostgresGetHistory(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()
	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM conversations WHERE id")).
		WithArgs(convID.UUID()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "assessment_id", "assessment_pattern", "preview", "created_at", "updated_at"}).
			AddRow(convID.String(), userID.String(), nil, "pain_dominant", "my cramps", now, now))

	msgID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM conversation_messages")).
		WithArgs(convID.UUID()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "content", "parent_message_id", "user_id", "seq", "created_at", "edited_at", "metadata"}).
			AddRow(msgID.String(), "user", "my cramps are bad", nil, userID.String(), int64(1), now, nil, []byte(`{"truncated":"false"}`)).
			AddRow(uuid.NewString(), "assistant", "tracking them helps", nil, nil, int64(2), now, nil, nil))

	history, err := store.GetHistory(context.Background(), convID)
	require.NoError(t, err)

	assert.Equal(t, userID, history.Conversation.UserID)
	assert.Equal(t, "my cramps", history.Conversation.Preview)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, msgID, history.Messages[0].ID)
	assert.Equal(t, RoleUser, history.Messages[0].Role)
	assert.Equal(t, "false", history.Messages[0].Metadata["truncated"])
	assert.Equal(t, RoleAssistant, history.Messages[1].Role)
	assert.Equal(t, int64(2), history.Messages[1].Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetHistoryUnknownConversation(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()

	mock.ExpectQuery(regexp.QuoteMeta("FROM conversations WHERE id")).
		WithArgs(convID.UUID()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetHistory(context.Background(), convID)
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestPostgresUpdateConversationPreview(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()
	preview := "latest message preview"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET preview")).
		WithArgs(preview, sqlmock.AnyArg(), convID.UUID()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateConversation(context.Background(), convID, ConversationPatch{Preview: &preview})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateConversationNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET updated_at")).
		WithArgs(sqlmock.AnyArg(), convID.UUID()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateConversation(context.Background(), convID, ConversationPatch{})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestPostgresUpdateMessageContent(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()
	msgID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE conversation_messages SET content")).
		WithArgs("rewritten", sqlmock.AnyArg(), msgID, convID.UUID()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "content", "parent_message_id", "user_id", "seq", "created_at", "edited_at", "metadata"}).
			AddRow(msgID.String(), "user", "rewritten", nil, nil, int64(1), now, now, nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET updated_at")).
		WithArgs(sqlmock.AnyArg(), convID.UUID()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg, err := store.UpdateMessageContent(context.Background(), convID, msgID, "rewritten", now)
	require.NoError(t, err)

	assert.Equal(t, "rewritten", msg.Content)
	require.NotNil(t, msg.EditedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateMessageContentNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE conversation_messages SET content")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.UpdateMessageContent(context.Background(), convID, uuid.New(), "x", time.Now())
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestPostgresIsOwner(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()
	owner := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM conversations WHERE id = $1 AND user_id = $2")).
		WithArgs(convID.UUID(), owner).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	ok, err := store.IsOwner(context.Background(), convID, owner)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresIsOwnerWrongUser(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()
	stranger := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM conversations WHERE id = $1 AND user_id = $2")).
		WithArgs(convID.UUID(), stranger).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM conversations WHERE id = $1")).
		WithArgs(convID.UUID()).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	ok, err := store.IsOwner(context.Background(), convID, stranger)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresIsOwnerUnknownConversation(t *testing.T) {
	store, mock := newMockStore(t)
	convID := NewConversationID()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM conversations WHERE id = $1 AND user_id = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM conversations WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	_, err := store.IsOwner(context.Background(), convID, uuid.New())
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}
