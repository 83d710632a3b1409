package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAIResponse(t *testing.T) {
	env := BuildAIResponse("Tracking your cycle helps.", 0.9, map[string]string{"model": "gemini-2.5-flash"})

	assert.Equal(t, EnvelopeText, env.Type)
	assert.Equal(t, SourceAI, env.Source)
	require.NotNil(t, env.Confidence)
	assert.Equal(t, 0.9, *env.Confidence)
	assert.Equal(t, "gemini", env.Metadata["service"])
	assert.Equal(t, "gemini-2.5-flash", env.Metadata["model"])
	assert.False(t, env.Timestamp.IsZero())
	assert.NotEqual(t, env.ID.String(), "00000000-0000-0000-0000-000000000000")
}

func TestBuildMockResponseAlwaysFullConfidence(t *testing.T) {
	env := BuildMockResponse("canned reply", nil)

	require.NotNil(t, env.Confidence)
	assert.Equal(t, 1.0, *env.Confidence)
	assert.Equal(t, SourceMock, env.Source)
	assert.Equal(t, "mock", env.Metadata["service"])
}

func TestBuildFallbackResponse(t *testing.T) {
	env := BuildFallbackResponse("try again shortly", "timeout")

	assert.Equal(t, SourceFallback, env.Source)
	assert.Nil(t, env.Confidence)
	assert.Equal(t, "timeout", env.Metadata["fallback_reason"])
}

func TestBuildTypingResponse(t *testing.T) {
	env := BuildTypingResponse()

	assert.Equal(t, EnvelopeTyping, env.Type)
	assert.Equal(t, SourceSystem, env.Source)
	assert.Empty(t, env.Content)
}

func TestBuildSummaryResponse(t *testing.T) {
	env := BuildSummaryResponse("You discussed cramps and sleep.", 12)

	assert.Equal(t, EnvelopeSummary, env.Type)
	assert.Equal(t, "12", env.Metadata["message_count"])
}

func TestCombineEnvelopesEmptyInput(t *testing.T) {
	_, err := CombineEnvelopes(nil, "")
	if err == nil {
		t.Fatal("expected an error combining zero envelopes")
	}
}

func TestCombineEnvelopesJoinsWithDoubleNewline(t *testing.T) {
	parts := []Envelope{
		BuildMockResponse("first part", nil),
		BuildMockResponse("second part", nil),
	}

	combined, err := CombineEnvelopes(parts, "")
	require.NoError(t, err)

	assert.Equal(t, "first part\n\nsecond part", combined.Content)
	assert.Equal(t, "2", combined.Metadata["combined_parts"])
}

func TestCombineEnvelopesCustomSeparator(t *testing.T) {
	parts := []Envelope{
		BuildMockResponse("a", nil),
		BuildMockResponse("b", nil),
	}

	combined, err := CombineEnvelopes(parts, " | ")
	require.NoError(t, err)
	assert.Equal(t, "a | b", combined.Content)
}

func TestCombineEnvelopesTakesMinimumConfidence(t *testing.T) {
	parts := []Envelope{
		BuildAIResponse("high", 0.95, nil),
		BuildAIResponse("low", 0.4, nil),
		BuildFallbackResponse("no score", "timeout"),
	}

	combined, err := CombineEnvelopes(parts, "")
	require.NoError(t, err)

	require.NotNil(t, combined.Confidence)
	assert.Equal(t, 0.4, *combined.Confidence)
}

func TestCombineEnvelopesMetadataLaterWins(t *testing.T) {
	first := BuildMockResponse("a", map[string]string{"stage": "initial", "only_first": "yes"})
	second := BuildMockResponse("b", map[string]string{"stage": "follow_up"})

	combined, err := CombineEnvelopes([]Envelope{first, second}, "")
	require.NoError(t, err)

	assert.Equal(t, "follow_up", combined.Metadata["stage"])
	assert.Equal(t, "yes", combined.Metadata["only_first"])
}

func TestCombineEnvelopesSingle(t *testing.T) {
	part := BuildMockResponse("solo", nil)

	combined, err := CombineEnvelopes([]Envelope{part}, "")
	require.NoError(t, err)

	if !strings.Contains(combined.Content, "solo") {
		t.Fatalf("combined content = %q, want it to contain %q", combined.Content, "solo")
	}
	assert.Equal(t, part.Type, combined.Type)
	assert.Equal(t, part.Source, combined.Source)
}
