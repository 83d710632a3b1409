package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lunara-health/lunara-platform/internal/assessment"
	"github.com/lunara-health/lunara-platform/pkg/logging"
)

const (
	defaultAITimeout = 30 * time.Second

	// Canned replies are fully confident; backend completions are not.
	aiReplyConfidence = 0.9
)

var aiTracer = otel.Tracer("lunara.internal.conversation.ai")

// AIGenerator produces replies through the generative backend. Backend
// failures never propagate: every failed call is converted into a fallback
// envelope built from local templates, tagged source=fallback so consumers
// can tell "AI degraded" from "mock by design".
type AIGenerator struct {
	client        LLMClient
	model         string
	timeout       time.Duration
	historyWindow int
	logger        *logging.Logger
}

// AIGeneratorOption customizes an AIGenerator.
type AIGeneratorOption func(*AIGenerator)

// WithAITimeout bounds each backend call.
func WithAITimeout(d time.Duration) AIGeneratorOption {
	return func(g *AIGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithHistoryWindow caps the prior messages sent on follow-up turns.
func WithHistoryWindow(n int) AIGeneratorOption {
	return func(g *AIGenerator) {
		if n > 0 {
			g.historyWindow = n
		}
	}
}

// NewAIGenerator builds a generator over the given backend client.
func NewAIGenerator(client LLMClient, model string, logger *logging.Logger, opts ...AIGeneratorOption) *AIGenerator {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	g := &AIGenerator{
		client:        client,
		model:         model,
		timeout:       defaultAITimeout,
		historyWindow: followUpHistoryWindow,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateInitial produces the opening assistant reply for a conversation.
func (g *AIGenerator) GenerateInitial(ctx context.Context, messageText string, pattern assessment.Pattern) Envelope {
	return g.generate(ctx, "initial", messageText, nil, pattern)
}

// GenerateFollowUp produces a reply to a later turn using windowed history.
func (g *AIGenerator) GenerateFollowUp(ctx context.Context, messageText string, history []Message, pattern assessment.Pattern) Envelope {
	return g.generate(ctx, "follow_up", messageText, history, pattern)
}

func (g *AIGenerator) generate(ctx context.Context, stage, messageText string, history []Message, pattern assessment.Pattern) Envelope {
	ctx, span := aiTracer.Start(ctx, "conversation.ai."+stage, trace.WithAttributes(
		attribute.String("lunara.ai.model", g.model),
		attribute.String("lunara.ai.stage", stage),
	))
	defer span.End()

	messages := FormatMessagesForAI(history, AIFormatOptions{MaxHistory: g.historyWindow})
	// History loaded from the store may already end with the message being
	// answered; only append it when it doesn't.
	last := len(messages) - 1
	if last < 0 || messages[last].Role != ChatRoleUser || messages[last].Content != messageText {
		messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: messageText})
	}

	req := LLMRequest{
		Model:       g.model,
		System:      []string{buildSystemPrompt(pattern)},
		Messages:    messages,
		MaxTokens:   450,
		Temperature: 0.3,
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Complete(callCtx, req)
	latency := time.Since(start)

	status := "ok"
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = errors.New("conversation: backend returned empty response")
	}
	if err != nil {
		status = "error"
	}
	generationLatency.WithLabelValues("gemini", stage, status).Observe(latency.Seconds())
	span.SetAttributes(
		attribute.Float64("lunara.ai.latency_ms", float64(latency.Milliseconds())),
		attribute.Int("lunara.ai.total_tokens", int(resp.Usage.TotalTokens)),
	)

	if err != nil {
		genErr := &GenerationError{Stage: stage, Service: "gemini", Err: err}
		span.RecordError(genErr)
		reason := failureReason(err)
		g.logger.Warn("ai generation failed, serving fallback",
			"stage", stage,
			"model", g.model,
			"reason", reason,
			"latency_ms", latency.Milliseconds(),
			"error", genErr.Error(),
		)
		fallbackTotal.WithLabelValues(stage, reason).Inc()

		env := BuildFallbackResponse(fallbackReply(stage, pattern), reason)
		env.Metadata["model"] = g.model
		env.Metadata["is_follow_up"] = strconv.FormatBool(stage == "follow_up")
		return env
	}

	if resp.Usage.InputTokens > 0 {
		llmTokensTotal.WithLabelValues(g.model, "input").Add(float64(resp.Usage.InputTokens))
	}
	if resp.Usage.OutputTokens > 0 {
		llmTokensTotal.WithLabelValues(g.model, "output").Add(float64(resp.Usage.OutputTokens))
	}
	if resp.Usage.TotalTokens > 0 {
		llmTokensTotal.WithLabelValues(g.model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	g.logger.Info("ai generation finished",
		"stage", stage,
		"model", g.model,
		"latency_ms", latency.Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
		"stop_reason", resp.StopReason,
	)

	metadata := map[string]string{
		"model":               g.model,
		"conversation_length": strconv.Itoa(len(history)),
		"is_follow_up":        strconv.FormatBool(stage == "follow_up"),
		"context_aware":       strconv.FormatBool(len(history) > 0),
		"generated_at":        time.Now().UTC().Format(time.RFC3339Nano),
		"tokens_used":         strconv.Itoa(int(resp.Usage.TotalTokens)),
		"response_time_ms":    strconv.FormatInt(latency.Milliseconds(), 10),
	}
	if pattern != "" {
		metadata["assessment_pattern"] = string(pattern)
	}
	return BuildAIResponse(strings.TrimSpace(resp.Text), aiReplyConfidence, metadata)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "backend_error"
	}
}

// fallbackReply is the local template used when the backend fails. It is
// deliberately not the mock generator: consumers distinguish degraded AI
// from mock-by-design through both source and wording.
func fallbackReply(stage string, pattern assessment.Pattern) string {
	if stage == "initial" {
		if pattern != "" {
			return fmt.Sprintf("Thanks for reaching out — your assessment points to a %s, and I'd love to talk it through. I'm having trouble generating a detailed reply right now, so please try again in a moment.", assessment.DisplayName(pattern))
		}
		return "Thanks for reaching out! I'm having trouble generating a detailed reply right now. Your message is saved — please try again in a moment."
	}
	return "I'm having trouble responding right now. Your message is saved, so please try again in a moment — or rephrase your question and I'll do my best."
}
