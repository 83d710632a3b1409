package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lunara-health/lunara-platform/internal/assessment"
	"github.com/lunara-health/lunara-platform/pkg/logging"
)

var nonWordRE = regexp.MustCompile(`[^a-z0-9]+`)

// mockDisclaimer is appended to every mock reply so nobody mistakes canned
// content for real guidance.
const mockDisclaimer = "(This is a placeholder response for developers; connect the AI backend for tailored guidance.)"

// mockPanicReply is the hardcoded last resort if reply synthesis itself
// breaks. Mock generation must never fail.
const mockPanicReply = "Thanks for your message. I'm here to help with questions about your cycle and symptoms. " + mockDisclaimer

var (
	greetingKeywords = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"}
	helpKeywords     = []string{"help", "how do", "how can", "what", "why", "when", "can you", "could you", "?"}
	concernKeywords  = []string{"pain", "cramp", "cramps", "heavy", "bleeding", "spotting", "irregular", "late", "missed", "mood", "tired", "worried", "concern", "severe"}
)

// MockGenerator synthesizes deterministic, keyword-driven replies with no
// external calls. Checks run in a fixed priority order; first match wins.
type MockGenerator struct {
	logger *logging.Logger
}

// NewMockGenerator returns a mock reply generator.
func NewMockGenerator(logger *logging.Logger) *MockGenerator {
	if logger == nil {
		logger = logging.Default()
	}
	return &MockGenerator{logger: logger}
}

// GenerateInitial produces the first assistant reply of a conversation.
// It never fails; internal panics are recovered into a hardcoded reply.
func (g *MockGenerator) GenerateInitial(messageText string, pattern assessment.Pattern) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("mock initial generation panicked", "panic", fmt.Sprint(r))
			env = BuildMockResponse(mockPanicReply, map[string]string{"matched_rule": "panic_recovery"})
		}
	}()
	return g.generate(messageText, nil, pattern, false)
}

// GenerateFollowUp produces a reply to a later turn, with history available
// for the generic length-bucket fallback. It never fails.
func (g *MockGenerator) GenerateFollowUp(messageText string, history []Message, pattern assessment.Pattern) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("mock follow-up generation panicked", "panic", fmt.Sprint(r))
			env = BuildMockResponse(mockPanicReply, map[string]string{"matched_rule": "panic_recovery"})
		}
	}()
	return g.generate(messageText, history, pattern, true)
}

func (g *MockGenerator) generate(messageText string, history []Message, pattern assessment.Pattern, followUp bool) Envelope {
	lowered := strings.ToLower(messageText)
	meta := map[string]string{
		"is_follow_up": fmt.Sprintf("%t", followUp),
	}
	if pattern != "" {
		meta["assessment_pattern"] = string(pattern)
	}

	if kw := matchKeyword(lowered, greetingKeywords); kw != "" {
		meta["matched_rule"] = "greeting"
		meta["matched_keyword"] = kw
		return BuildMockResponse(
			"Hi! I'm Lunara, your cycle companion. You can ask me about your symptoms, your assessment results, or anything about your cycle. "+mockDisclaimer,
			meta,
		)
	}

	if kw := matchKeyword(lowered, helpKeywords); kw != "" {
		meta["matched_rule"] = "help_question"
		meta["matched_keyword"] = kw
		return BuildMockResponse(
			"Good question. In general, tracking your cycle day by day is the best starting point for understanding what's normal for you. For anything specific or worrying, a clinician is the right person to ask. "+mockDisclaimer,
			meta,
		)
	}

	if kw := matchKeyword(lowered, concernKeywords); kw != "" {
		meta["matched_rule"] = "problem_concern"
		meta["matched_keyword"] = kw
		return BuildMockResponse(
			fmt.Sprintf("I hear you — %s around your period can be really difficult. Many people experience this, and tracking when it happens helps spot patterns. If it's severe or disrupting your life, please talk to a clinician. %s", kw, mockDisclaimer),
			meta,
		)
	}

	if pattern != "" {
		meta["matched_rule"] = "assessment_context"
		content := fmt.Sprintf("Based on your assessment, your answers point to a %s. Keep tracking your symptoms so we can spot changes over time, and feel free to ask me what that result means. %s", assessment.DisplayName(pattern), mockDisclaimer)
		env := BuildAssessmentResponse(content, pattern)
		for k, v := range meta {
			if _, exists := env.Metadata[k]; !exists {
				env.Metadata[k] = v
			}
		}
		return env
	}

	if followUp {
		meta["matched_rule"] = "length_bucket"
		switch {
		case len(strings.TrimSpace(messageText)) < 20:
			return BuildMockResponse("Got it. Is there anything else about your cycle you'd like to go over? "+mockDisclaimer, meta)
		case len(strings.TrimSpace(messageText)) < 120:
			return BuildMockResponse("Thanks for sharing that. Noting it alongside your cycle history helps build a clearer picture over time. "+mockDisclaimer, meta)
		default:
			return BuildMockResponse("Thank you for the detail — that context really helps. The patterns you're describing are worth tracking consistently, and worth raising with a clinician if they persist. "+mockDisclaimer, meta)
		}
	}

	meta["matched_rule"] = "generic"
	return BuildMockResponse(
		"Thanks for reaching out. I can help you make sense of your cycle, your symptoms, and your assessment results — what would you like to start with? "+mockDisclaimer,
		meta,
	)
}

// matchKeyword returns the first keyword present in the lowered text.
// Multi-word keywords and "?" match as substrings; single words match on
// word boundaries so "hi" doesn't fire inside "this".
func matchKeyword(lowered string, keywords []string) string {
	padded := " " + nonWordRE.ReplaceAllString(lowered, " ") + " "
	for _, kw := range keywords {
		if kw == "?" || strings.Contains(kw, " ") {
			if strings.Contains(lowered, kw) {
				return kw
			}
			continue
		}
		if strings.Contains(padded, " "+kw+" ") {
			return kw
		}
	}
	return ""
}
