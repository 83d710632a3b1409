package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOwner indicates the caller does not own the conversation. No
	// writes happen after this check fails.
	ErrNotOwner = errors.New("conversation: caller does not own conversation")

	// ErrNoUserMessage indicates an auto-reply was requested for a
	// conversation with no user message to respond to.
	ErrNoUserMessage = errors.New("conversation: no user message to reply to")

	// ErrInvalidConversationID indicates a conversation id that could not be
	// coerced at the boundary.
	ErrInvalidConversationID = errors.New("conversation: invalid conversation id")

	// ErrConversationNotFound is returned by stores for unknown conversations.
	ErrConversationNotFound = errors.New("conversation: conversation not found")

	// ErrMessageNotFound is returned by stores for unknown messages.
	ErrMessageNotFound = errors.New("conversation: message not found")
)

// ValidationError reports bad message content. It is raised before any
// persistence happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("conversation: invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GenerationError reports a failed AI backend call. Generators convert these
// into fallback envelopes; they are never surfaced to coordinator callers.
type GenerationError struct {
	Stage   string // "initial" or "follow_up"
	Service string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("conversation: %s generation via %s failed: %v", e.Stage, e.Service, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError reports a failed store operation. Unlike generation
// failures these propagate: a reply that cannot be saved must not be reported
// as success.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("conversation: %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
