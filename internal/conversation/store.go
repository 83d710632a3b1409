package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lunara-health/lunara-platform/internal/assessment"
)

// Role identifies the author side of a persisted message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a persisted conversation message. A conversation's messages,
// ordered by created_at (seq breaks ties), alternate user/assistant starting
// with user.
type Message struct {
	ID             uuid.UUID         `json:"id"`
	ConversationID ConversationID    `json:"conversation_id"`
	Role           Role              `json:"role"`
	Content        string            `json:"content"`
	ParentID       *uuid.UUID        `json:"parent_message_id,omitempty"`
	UserID         *uuid.UUID        `json:"user_id,omitempty"`
	Seq            int64             `json:"seq"`
	CreatedAt      time.Time         `json:"created_at"`
	EditedAt       *time.Time        `json:"edited_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Conversation is the persisted conversation record. A conversation belongs
// to exactly one user; this subsystem never deletes conversations.
type Conversation struct {
	ID                ConversationID     `json:"id"`
	UserID            uuid.UUID          `json:"user_id"`
	AssessmentID      *uuid.UUID         `json:"assessment_id,omitempty"`
	AssessmentPattern assessment.Pattern `json:"assessment_pattern,omitempty"`
	Preview           string             `json:"preview,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// History is a conversation plus its ordered messages.
type History struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}

// ConversationPatch updates conversation metadata. UpdatedAt is always
// bumped; Preview only when non-nil.
type ConversationPatch struct {
	Preview   *string
	UpdatedAt time.Time
}

// Store is the only boundary to persistence. Implementations assign id, seq
// and created_at on insert when unset, and bump the conversation's updated_at
// on every message append or edit.
type Store interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	InsertMessage(ctx context.Context, msg *Message) error
	GetHistory(ctx context.Context, id ConversationID) (*History, error)
	UpdateConversation(ctx context.Context, id ConversationID, patch ConversationPatch) error
	UpdateMessageContent(ctx context.Context, id ConversationID, messageID uuid.UUID, content string, editedAt time.Time) (*Message, error)
	IsOwner(ctx context.Context, id ConversationID, userID uuid.UUID) (bool, error)
}
