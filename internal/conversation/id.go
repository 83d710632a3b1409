package conversation

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ConversationID is the typed identity of a conversation. It is constructed
// once at the boundary via ParseConversationID; downstream code never
// shape-sniffs raw inputs.
type ConversationID struct {
	value uuid.UUID
}

// NewConversationID returns a fresh random conversation id.
func NewConversationID() ConversationID {
	return ConversationID{value: uuid.New()}
}

// ParseConversationID coerces a raw string into a ConversationID, failing
// fast on anything that is not a UUID.
func ParseConversationID(raw string) (ConversationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ConversationID{}, fmt.Errorf("%w: empty", ErrInvalidConversationID)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return ConversationID{}, fmt.Errorf("%w: %q", ErrInvalidConversationID, raw)
	}
	return ConversationID{value: parsed}, nil
}

func (id ConversationID) String() string { return id.value.String() }

func (id ConversationID) UUID() uuid.UUID { return id.value }

func (id ConversationID) IsZero() bool { return id.value == uuid.Nil }

// MarshalText makes the id JSON-friendly as a plain string.
func (id ConversationID) MarshalText() ([]byte, error) {
	return []byte(id.value.String()), nil
}

func (id *ConversationID) UnmarshalText(data []byte) error {
	parsed, err := ParseConversationID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Scan implements sql.Scanner so ids read straight out of uuid columns.
func (id *ConversationID) Scan(src any) error {
	var value uuid.UUID
	if err := value.Scan(src); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConversationID, err)
	}
	*id = ConversationID{value: value}
	return nil
}

// Value implements driver.Valuer.
func (id ConversationID) Value() (driver.Value, error) {
	return id.value.String(), nil
}
