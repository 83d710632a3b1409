package conversation

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lunara-health/lunara-platform/internal/assessment"
)

// EnvelopeType classifies the payload of a response envelope.
type EnvelopeType string

const (
	EnvelopeText    EnvelopeType = "text"
	EnvelopeError   EnvelopeType = "error"
	EnvelopeTyping  EnvelopeType = "typing"
	EnvelopeSummary EnvelopeType = "summary"
)

// Source records which reply path produced an envelope. "fallback" means the
// AI backend degraded mid-call, as opposed to "mock" which is the deliberate
// no-AI-configured mode.
type Source string

const (
	SourceAI       Source = "ai"
	SourceMock     Source = "mock"
	SourceFallback Source = "fallback"
	SourceSystem   Source = "system"
)

// Envelope is the uniform wrapper around generated reply content plus
// provenance metadata. It is not persisted as-is; its content and metadata
// are what get stored into a Message.
type Envelope struct {
	ID         uuid.UUID         `json:"id"`
	Content    string            `json:"content"`
	Type       EnvelopeType      `json:"type"`
	Source     Source            `json:"source"`
	Confidence *float64          `json:"confidence,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata"`
}

func newEnvelope(content string, typ EnvelopeType, source Source, service string, metadata map[string]string) Envelope {
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["service"] = service
	return Envelope{
		ID:        uuid.New(),
		Content:   content,
		Type:      typ,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Metadata:  meta,
	}
}

func confidencePtr(v float64) *float64 { return &v }

// BuildAIResponse wraps content generated by the AI backend.
func BuildAIResponse(content string, confidence float64, metadata map[string]string) Envelope {
	env := newEnvelope(content, EnvelopeText, SourceAI, "gemini", metadata)
	env.Confidence = confidencePtr(confidence)
	return env
}

// BuildMockResponse wraps content from the deterministic mock generator.
// Mock replies always carry full confidence.
func BuildMockResponse(content string, metadata map[string]string) Envelope {
	env := newEnvelope(content, EnvelopeText, SourceMock, "mock", metadata)
	env.Confidence = confidencePtr(1.0)
	return env
}

// BuildFallbackResponse wraps locally templated content produced after the AI
// backend failed. Confidence is intentionally nil: we have no signal.
func BuildFallbackResponse(content, reason string) Envelope {
	return newEnvelope(content, EnvelopeText, SourceFallback, "fallback", map[string]string{
		"fallback_reason": reason,
	})
}

// BuildErrorResponse wraps a user-visible error message.
func BuildErrorResponse(message string) Envelope {
	return newEnvelope(message, EnvelopeError, SourceSystem, "system", nil)
}

// BuildTypingResponse signals that a reply is being generated.
func BuildTypingResponse() Envelope {
	return newEnvelope("", EnvelopeTyping, SourceSystem, "system", nil)
}

// BuildAssessmentResponse wraps assessment-aware canned content, tagged with
// the pattern it was framed for.
func BuildAssessmentResponse(content string, pattern assessment.Pattern) Envelope {
	env := newEnvelope(content, EnvelopeText, SourceMock, "mock", map[string]string{
		"assessment_pattern": string(pattern),
	})
	env.Confidence = confidencePtr(1.0)
	return env
}

// BuildSummaryResponse wraps a conversation summary over messageCount
// messages.
func BuildSummaryResponse(content string, messageCount int) Envelope {
	return newEnvelope(content, EnvelopeSummary, SourceSystem, "system", map[string]string{
		"message_count": strconv.Itoa(messageCount),
	})
}

// CombineEnvelopes merges parts into one envelope: content joined by
// separator (double newline when empty), metadata shallow-merged in order
// (later entries win), and confidence set to the minimum across parts that
// carry one. The minimum is deliberate: a single low-confidence part drags
// down the combined result.
func CombineEnvelopes(parts []Envelope, separator string) (Envelope, error) {
	if len(parts) == 0 {
		return Envelope{}, errors.New("conversation: cannot combine zero envelopes")
	}
	if separator == "" {
		separator = "\n\n"
	}

	contents := make([]string, 0, len(parts))
	meta := make(map[string]string)
	var minConfidence *float64
	for _, part := range parts {
		contents = append(contents, part.Content)
		for k, v := range part.Metadata {
			meta[k] = v
		}
		if part.Confidence != nil {
			if minConfidence == nil || *part.Confidence < *minConfidence {
				minConfidence = confidencePtr(*part.Confidence)
			}
		}
	}

	combined := Envelope{
		ID:         uuid.New(),
		Content:    strings.Join(contents, separator),
		Type:       parts[0].Type,
		Source:     parts[0].Source,
		Confidence: minConfidence,
		Timestamp:  time.Now().UTC(),
		Metadata:   meta,
	}
	combined.Metadata["combined_parts"] = strconv.Itoa(len(parts))
	return combined, nil
}
