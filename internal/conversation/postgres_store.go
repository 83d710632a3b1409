package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lunara-health/lunara-platform/internal/assessment"
)

// PostgresStore persists conversations and messages to PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		panic("conversation: db handle cannot be nil")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID.IsZero() {
		conv.ID = NewConversationID()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	var assessmentID any
	if conv.AssessmentID != nil {
		assessmentID = *conv.AssessmentID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, user_id, assessment_id, assessment_pattern, preview, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, conv.ID.UUID(), conv.UserID, assessmentID, string(conv.AssessmentPattern), conv.Preview, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("conversation: failed to create conversation: %w", err)
	}
	return nil
}

// InsertMessage appends a message, assigning the next per-conversation seq.
// seq, not wall-clock time, breaks ordering ties between equal created_at
// values.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var parentID, userID any
	if msg.ParentID != nil {
		parentID = *msg.ParentID
	}
	if msg.UserID != nil {
		userID = *msg.UserID
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal message metadata: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO conversation_messages (
			id, conversation_id, role, content, parent_message_id, user_id, seq, created_at, metadata
		)
		SELECT $1, $2, $3, $4, $5, $6, COALESCE(MAX(seq), 0) + 1, $7, $8
		FROM conversation_messages WHERE conversation_id = $2
		RETURNING seq
	`, msg.ID, msg.ConversationID.UUID(), string(msg.Role), msg.Content, parentID, userID, msg.CreatedAt, metadata).Scan(&msg.Seq)
	if err != nil {
		return fmt.Errorf("conversation: failed to insert message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = $1 WHERE id = $2
	`, msg.CreatedAt, msg.ConversationID.UUID())
	if err != nil {
		return fmt.Errorf("conversation: failed to touch conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetHistory(ctx context.Context, id ConversationID) (*History, error) {
	conv, err := s.getConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, parent_message_id, user_id, seq, created_at, edited_at, metadata
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC
	`, id.UUID())
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to load messages: %w", err)
	}
	defer rows.Close()

	history := &History{Conversation: *conv}
	for rows.Next() {
		msg, err := scanMessage(rows, id)
		if err != nil {
			return nil, err
		}
		history.Messages = append(history.Messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: failed to iterate messages: %w", err)
	}
	return history, nil
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, id ConversationID, patch ConversationPatch) error {
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var result sql.Result
	var err error
	if patch.Preview != nil {
		result, err = s.db.ExecContext(ctx, `
			UPDATE conversations SET preview = $1, updated_at = $2 WHERE id = $3
		`, *patch.Preview, updatedAt, id.UUID())
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE conversations SET updated_at = $1 WHERE id = $2
		`, updatedAt, id.UUID())
	}
	if err != nil {
		return fmt.Errorf("conversation: failed to update conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("conversation: failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateMessageContent(ctx context.Context, id ConversationID, messageID uuid.UUID, content string, editedAt time.Time) (*Message, error) {
	if editedAt.IsZero() {
		editedAt = time.Now().UTC()
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE conversation_messages SET content = $1, edited_at = $2
		WHERE id = $3 AND conversation_id = $4
		RETURNING id, role, content, parent_message_id, user_id, seq, created_at, edited_at, metadata
	`, content, editedAt, messageID, id.UUID())

	msg, err := scanMessage(row, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = $1 WHERE id = $2
	`, editedAt, id.UUID()); err != nil {
		return nil, fmt.Errorf("conversation: failed to touch conversation: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) IsOwner(ctx context.Context, id ConversationID, userID uuid.UUID) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM conversations WHERE id = $1 AND user_id = $2
	`, id.UUID(), userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish "not yours" from "does not exist".
		var any int
		checkErr := s.db.QueryRowContext(ctx, `
			SELECT 1 FROM conversations WHERE id = $1
		`, id.UUID()).Scan(&any)
		if errors.Is(checkErr, sql.ErrNoRows) {
			return false, ErrConversationNotFound
		}
		if checkErr != nil {
			return false, fmt.Errorf("conversation: failed to check conversation: %w", checkErr)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("conversation: failed to check ownership: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) getConversation(ctx context.Context, id ConversationID) (*Conversation, error) {
	var (
		conv         Conversation
		userID       uuid.UUID
		assessmentID sql.NullString
		pattern      sql.NullString
		preview      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, assessment_id, assessment_pattern, preview, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id.UUID()).Scan(&conv.ID, &userID, &assessmentID, &pattern, &preview, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to load conversation: %w", err)
	}

	conv.UserID = userID
	if assessmentID.Valid {
		if parsed, parseErr := uuid.Parse(assessmentID.String); parseErr == nil {
			conv.AssessmentID = &parsed
		}
	}
	if pattern.Valid {
		conv.AssessmentPattern = assessment.Pattern(pattern.String)
	}
	if preview.Valid {
		conv.Preview = preview.String
	}
	return &conv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, conversationID ConversationID) (*Message, error) {
	var (
		msg      Message
		role     string
		parentID sql.NullString
		userID   sql.NullString
		editedAt sql.NullTime
		metadata []byte
	)
	err := row.Scan(&msg.ID, &role, &msg.Content, &parentID, &userID, &msg.Seq, &msg.CreatedAt, &editedAt, &metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("conversation: failed to scan message: %w", err)
	}

	msg.ConversationID = conversationID
	msg.Role = Role(role)
	if parentID.Valid {
		if parsed, parseErr := uuid.Parse(parentID.String); parseErr == nil {
			msg.ParentID = &parsed
		}
	}
	if userID.Valid {
		if parsed, parseErr := uuid.Parse(userID.String); parseErr == nil {
			msg.UserID = &parsed
		}
	}
	if editedAt.Valid {
		edited := editedAt.Time
		msg.EditedAt = &edited
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("conversation: failed to decode message metadata: %w", err)
		}
	}
	return &msg, nil
}
