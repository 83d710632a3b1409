package conversation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultMaxMessageLength bounds user message content before truncation.
const DefaultMaxMessageLength = 4000

const truncationMarker = "..."

// FormatOptions tunes message normalization.
type FormatOptions struct {
	// MaxLength caps user content; 0 means DefaultMaxMessageLength.
	MaxLength int
}

// FormattedMessage is the canonical normalized form of raw message text.
type FormattedMessage struct {
	Role           Role
	Content        string
	UserID         *uuid.UUID
	OriginalLength int
	FinalLength    int
	Truncated      bool
}

// control characters stripped during sanitization; tab, LF and CR survive.
var controlCharRE = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

func sanitizeContent(content string) string {
	return controlCharRE.ReplaceAllString(content, "")
}

// FormatUserMessage validates, trims, sanitizes and truncates user content.
// Truncation appends an ellipsis marker, so a truncated message is exactly
// maxLength+3 characters.
func FormatUserMessage(content string, userID uuid.UUID, opts FormatOptions) (FormattedMessage, error) {
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}

	cleaned := sanitizeContent(strings.TrimSpace(content))
	if cleaned == "" {
		return FormattedMessage{}, &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	originalLength := len(cleaned)
	truncated := false
	if originalLength > maxLength {
		cleaned = truncateToRuneBoundary(cleaned, maxLength) + truncationMarker
		truncated = true
	}

	return FormattedMessage{
		Role:           RoleUser,
		Content:        cleaned,
		UserID:         &userID,
		OriginalLength: originalLength,
		FinalLength:    len(cleaned),
		Truncated:      truncated,
	}, nil
}

// FormatAssistantMessage mirrors FormatUserMessage without the truncation
// step; generated replies are stored whole.
func FormatAssistantMessage(content string) (FormattedMessage, error) {
	cleaned := sanitizeContent(strings.TrimSpace(content))
	if cleaned == "" {
		return FormattedMessage{}, &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	return FormattedMessage{
		Role:           RoleAssistant,
		Content:        cleaned,
		OriginalLength: len(cleaned),
		FinalLength:    len(cleaned),
	}, nil
}

// AIFormatOptions tunes conversion of stored messages into backend context.
type AIFormatOptions struct {
	// MaxHistory keeps only the most recent N messages; 0 keeps everything.
	MaxHistory int
	// SystemPrompt, when set, is prepended as a synthetic system message.
	SystemPrompt string
}

// FormatMessagesForAI converts persisted messages into the windowed
// role/content pairs the backend expects. Only user and assistant roles
// survive; ordering is ascending created_at with seq as the tie-break.
func FormatMessagesForAI(messages []Message, opts AIFormatOptions) []ChatMessage {
	filtered := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleUser || msg.Role == RoleAssistant {
			filtered = append(filtered, msg)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].Seq < filtered[j].Seq
		}
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	if opts.MaxHistory > 0 && len(filtered) > opts.MaxHistory {
		filtered = filtered[len(filtered)-opts.MaxHistory:]
	}

	out := make([]ChatMessage, 0, len(filtered)+1)
	if strings.TrimSpace(opts.SystemPrompt) != "" {
		out = append(out, ChatMessage{Role: ChatRoleSystem, Content: opts.SystemPrompt})
	}
	for _, msg := range filtered {
		out = append(out, ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

// ValidationRules configures ValidateMessageContent.
type ValidationRules struct {
	MinLength        int
	MaxLength        int
	BlockedPatterns  []string
	RequiredPatterns []string
}

// ValidationResult is a structured outcome: hard violations land in Errors,
// soft ones (missed required patterns) in Warnings, so callers can choose to
// warn-and-continue.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

// ValidateMessageContent checks content against rules without throwing;
// length and blocked-pattern violations are hard errors.
func ValidateMessageContent(content string, rules ValidationRules) ValidationResult {
	result := ValidationResult{IsValid: true}
	trimmed := strings.TrimSpace(content)

	if trimmed == "" {
		result.Errors = append(result.Errors, "content must not be empty")
	}
	if rules.MinLength > 0 && len(trimmed) < rules.MinLength {
		result.Errors = append(result.Errors, fmt.Sprintf("content shorter than minimum length %d", rules.MinLength))
	}
	if rules.MaxLength > 0 && len(trimmed) > rules.MaxLength {
		result.Errors = append(result.Errors, fmt.Sprintf("content exceeds maximum length %d", rules.MaxLength))
	}

	lowered := strings.ToLower(trimmed)
	for _, blocked := range rules.BlockedPatterns {
		if blocked == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(blocked)) {
			result.Errors = append(result.Errors, fmt.Sprintf("content contains blocked pattern %q", blocked))
		}
	}
	for _, required := range rules.RequiredPatterns {
		if required == "" {
			continue
		}
		if !strings.Contains(lowered, strings.ToLower(required)) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("content missing expected pattern %q", required))
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// previewOf shortens content for conversation list previews.
func previewOf(content string, limit int) string {
	if limit <= 0 {
		limit = 120
	}
	content = strings.TrimSpace(content)
	if len(content) <= limit {
		return content
	}
	return truncateToRuneBoundary(content, limit) + truncationMarker
}

// truncateToRuneBoundary cuts s to at most limit bytes without splitting a
// multi-byte rune, so truncated content stays valid UTF-8.
func truncateToRuneBoundary(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
