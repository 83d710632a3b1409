package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[ConversationID]*Conversation
	messages      map[ConversationID][]Message
	seq           map[ConversationID]int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[ConversationID]*Conversation),
		messages:      make(map[ConversationID][]Message),
		seq:           make(map[ConversationID]int64),
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	stored := *conv
	s.conversations[conv.ID] = &stored
	return nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return ErrConversationNotFound
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	s.seq[msg.ConversationID]++
	msg.Seq = s.seq[msg.ConversationID]

	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *MemoryStore) GetHistory(ctx context.Context, id ConversationID) (*History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}

	msgs := make([]Message, len(s.messages[id]))
	copy(msgs, s.messages[id])
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	return &History{Conversation: *conv, Messages: msgs}, nil
}

func (s *MemoryStore) UpdateConversation(ctx context.Context, id ConversationID, patch ConversationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	if patch.Preview != nil {
		conv.Preview = *patch.Preview
	}
	if patch.UpdatedAt.IsZero() {
		conv.UpdatedAt = time.Now().UTC()
	} else {
		conv.UpdatedAt = patch.UpdatedAt
	}
	return nil
}

func (s *MemoryStore) UpdateMessageContent(ctx context.Context, id ConversationID, messageID uuid.UUID, content string, editedAt time.Time) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	msgs := s.messages[id]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].Content = content
			edited := editedAt
			if edited.IsZero() {
				edited = time.Now().UTC()
			}
			msgs[i].EditedAt = &edited
			conv.UpdatedAt = edited
			updated := msgs[i]
			return &updated, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (s *MemoryStore) IsOwner(ctx context.Context, id ConversationID, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return false, ErrConversationNotFound
	}
	return conv.UserID == userID, nil
}
