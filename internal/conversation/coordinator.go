package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lunara-health/lunara-platform/internal/assessment"
	"github.com/lunara-health/lunara-platform/pkg/logging"
)

const (
	defaultOptionCount = 3
	defaultBatchMax    = 10
	previewLimit       = 120
)

// Exchange is one completed user turn: the persisted user message, the
// persisted assistant reply (nil when the reply was skipped), and the envelope
// the reply came from.
type Exchange struct {
	UserMessage *Message  `json:"user_message"`
	Reply       *Message  `json:"reply,omitempty"`
	Envelope    *Envelope `json:"envelope,omitempty"`
}

// SendOptions tunes SendMessage behavior.
type SendOptions struct {
	// BatchDelay paces consecutive sends in a batch. Zero means no pacing.
	BatchDelay time.Duration
	// SkipReply persists the user message without generating a reply.
	SkipReply bool
}

// Coordinator orchestrates the full reply lifecycle: ownership checks,
// formatting, service selection, generation, and persistence. Generation
// failures degrade to fallback or mock content and never surface as errors;
// persistence failures always do.
type Coordinator struct {
	store            Store
	detector         *ServiceDetector
	ai               *AIGenerator
	mock             *MockGenerator
	cache            *ContextCache
	logger           *logging.Logger
	maxMessageLength int
	batchMax         int
	optionCount      int
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithContextCache enables the Redis-backed AI context cache.
func WithContextCache(cache *ContextCache) CoordinatorOption {
	return func(c *Coordinator) { c.cache = cache }
}

// WithMaxMessageLength overrides the user content truncation bound.
func WithMaxMessageLength(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxMessageLength = n
		}
	}
}

// WithMaxBatchSize caps how many messages one batch send may carry.
func WithMaxBatchSize(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchMax = n
		}
	}
}

// WithOptionCount sets how many candidates GenerateResponseOptions produces.
func WithOptionCount(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.optionCount = n
		}
	}
}

// NewCoordinator wires the coordinator. The AI generator may be nil; the
// detector then resolves every turn to mock mode regardless of credentials.
func NewCoordinator(store Store, detector *ServiceDetector, ai *AIGenerator, mock *MockGenerator, logger *logging.Logger, opts ...CoordinatorOption) *Coordinator {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if detector == nil {
		panic("conversation: detector cannot be nil")
	}
	if mock == nil {
		panic("conversation: mock generator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Coordinator{
		store:            store,
		detector:         detector,
		ai:               ai,
		mock:             mock,
		logger:           logger,
		maxMessageLength: DefaultMaxMessageLength,
		batchMax:         defaultBatchMax,
		optionCount:      defaultOptionCount,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartConversation creates an empty conversation owned by userID, optionally
// linked to a completed assessment.
func (c *Coordinator) StartConversation(ctx context.Context, userID uuid.UUID, assessmentID *uuid.UUID, pattern assessment.Pattern) (*Conversation, error) {
	if userID == uuid.Nil {
		return nil, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	conv := &Conversation{
		UserID:            userID,
		AssessmentID:      assessmentID,
		AssessmentPattern: assessment.Normalize(string(pattern)),
	}
	if err := c.store.CreateConversation(ctx, conv); err != nil {
		return nil, persistErr("create conversation", err)
	}
	c.logger.Info("conversation started",
		"conversation_id", conv.ID.String(),
		"has_assessment", assessmentID != nil,
		"pattern", string(conv.AssessmentPattern),
	)
	return conv, nil
}

// CreateInitialMessage persists the caller's opening message and the
// assistant's first reply. The conversation must exist, be empty, and belong
// to the caller.
func (c *Coordinator) CreateInitialMessage(ctx context.Context, id ConversationID, userID uuid.UUID, content string) (*Exchange, error) {
	if err := c.requireOwner(ctx, id, userID); err != nil {
		return nil, err
	}
	history, err := c.store.GetHistory(ctx, id)
	if err != nil {
		return nil, persistErr("load history", err)
	}
	if len(history.Messages) > 0 {
		return nil, &ValidationError{Field: "conversation", Reason: "already has messages"}
	}
	return c.exchange(ctx, history, userID, content, SendOptions{})
}

// SendMessage persists one user message and, unless skipped, the generated
// reply.
func (c *Coordinator) SendMessage(ctx context.Context, id ConversationID, userID uuid.UUID, content string, opts SendOptions) (*Exchange, error) {
	exchanges, err := c.SendMessages(ctx, id, userID, []string{content}, opts)
	if err != nil {
		return nil, err
	}
	return &exchanges[0], nil
}

// SendMessages persists a batch of user messages in order, pacing consecutive
// sends by opts.BatchDelay. The batch is not transactional: on failure the
// exchanges completed so far are returned alongside the error.
func (c *Coordinator) SendMessages(ctx context.Context, id ConversationID, userID uuid.UUID, contents []string, opts SendOptions) ([]Exchange, error) {
	if len(contents) == 0 {
		return nil, &ValidationError{Field: "messages", Reason: "must not be empty"}
	}
	if len(contents) > c.batchMax {
		return nil, &ValidationError{Field: "messages", Reason: fmt.Sprintf("batch exceeds maximum size %d", c.batchMax)}
	}
	if err := c.requireOwner(ctx, id, userID); err != nil {
		return nil, err
	}

	exchanges := make([]Exchange, 0, len(contents))
	for i, content := range contents {
		if i > 0 && opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return exchanges, ctx.Err()
			case <-time.After(opts.BatchDelay):
			}
		}

		history, err := c.store.GetHistory(ctx, id)
		if err != nil {
			return exchanges, persistErr("load history", err)
		}
		exchange, err := c.exchange(ctx, history, userID, content, opts)
		if err != nil {
			return exchanges, err
		}
		exchanges = append(exchanges, *exchange)
	}
	return exchanges, nil
}

// exchange runs one user turn against an already-loaded history snapshot.
// Ownership is the caller's responsibility.
func (c *Coordinator) exchange(ctx context.Context, history *History, userID uuid.UUID, content string, opts SendOptions) (*Exchange, error) {
	formatted, err := FormatUserMessage(content, userID, FormatOptions{MaxLength: c.maxMessageLength})
	if err != nil {
		return nil, err
	}

	userMsg := &Message{
		ConversationID: history.Conversation.ID,
		Role:           RoleUser,
		Content:        formatted.Content,
		UserID:         formatted.UserID,
	}
	if formatted.Truncated {
		userMsg.Metadata = map[string]string{
			"truncated":       "true",
			"original_length": strconv.Itoa(formatted.OriginalLength),
		}
	}
	if err := c.store.InsertMessage(ctx, userMsg); err != nil {
		return nil, persistErr("persist user message", err)
	}
	messagesPersistedTotal.WithLabelValues(string(RoleUser)).Inc()

	preview := previewOf(formatted.Content, previewLimit)
	if err := c.store.UpdateConversation(ctx, history.Conversation.ID, ConversationPatch{Preview: &preview, UpdatedAt: userMsg.CreatedAt}); err != nil {
		return nil, persistErr("update conversation preview", err)
	}

	exchange := &Exchange{UserMessage: userMsg}
	if opts.SkipReply {
		return exchange, nil
	}

	env := c.generateReply(ctx, history, formatted.Content)
	reply, err := c.persistReply(ctx, history.Conversation.ID, userMsg.ID, env)
	if err != nil {
		return nil, err
	}
	exchange.Reply = reply
	exchange.Envelope = &env

	c.saveContext(ctx, history, userMsg, reply)
	return exchange, nil
}

// GenerateResponseToMessage generates and persists an assistant reply to the
// given user message, parented to it so edit lineage stays traceable.
func (c *Coordinator) GenerateResponseToMessage(ctx context.Context, id ConversationID, userMessageID uuid.UUID, messageText string) (*Message, Envelope, error) {
	history, err := c.store.GetHistory(ctx, id)
	if err != nil {
		return nil, Envelope{}, persistErr("load history", err)
	}

	env := c.generateReply(ctx, history, messageText)
	reply, err := c.persistReply(ctx, id, userMessageID, env)
	if err != nil {
		return nil, Envelope{}, err
	}
	c.saveContext(ctx, history, nil, reply)
	return reply, env, nil
}

// AutoGenerateResponse replies to the most recent user message in the
// conversation. If no user message exists nothing is written and
// ErrNoUserMessage is returned.
func (c *Coordinator) AutoGenerateResponse(ctx context.Context, id ConversationID, userID uuid.UUID) (*Message, Envelope, error) {
	if err := c.requireOwner(ctx, id, userID); err != nil {
		return nil, Envelope{}, err
	}
	history, err := c.store.GetHistory(ctx, id)
	if err != nil {
		return nil, Envelope{}, persistErr("load history", err)
	}

	latest := latestUserMessage(history.Messages)
	if latest == nil {
		return nil, Envelope{}, ErrNoUserMessage
	}

	env := c.generateReply(ctx, history, latest.Content)
	reply, err := c.persistReply(ctx, id, latest.ID, env)
	if err != nil {
		return nil, Envelope{}, err
	}
	c.saveContext(ctx, history, nil, reply)
	return reply, env, nil
}

// GenerateResponseOptions produces up to count candidate replies without
// persisting anything. Candidates are ranked best-first: confidence
// descending, with unscored candidates last. Each carries its rank in
// metadata as option_index.
func (c *Coordinator) GenerateResponseOptions(ctx context.Context, id ConversationID, userID uuid.UUID, messageText string, count int) ([]Envelope, error) {
	if err := c.requireOwner(ctx, id, userID); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = c.optionCount
	}
	history, err := c.store.GetHistory(ctx, id)
	if err != nil {
		return nil, persistErr("load history", err)
	}

	options := make([]Envelope, 0, count)
	for i := 0; i < count; i++ {
		options = append(options, c.generateReply(ctx, history, messageText))
	}

	sort.SliceStable(options, func(i, j int) bool {
		ci, cj := options[i].Confidence, options[j].Confidence
		switch {
		case ci == nil:
			return false
		case cj == nil:
			return true
		default:
			return *ci > *cj
		}
	})
	for i := range options {
		options[i].Metadata["option_index"] = strconv.Itoa(i)
	}
	return options, nil
}

// CommitResponseOption persists a previously generated candidate as the
// conversation's next assistant message.
func (c *Coordinator) CommitResponseOption(ctx context.Context, id ConversationID, userID uuid.UUID, option Envelope) (*Message, error) {
	if err := c.requireOwner(ctx, id, userID); err != nil {
		return nil, err
	}
	if option.Content == "" {
		return nil, &ValidationError{Field: "option", Reason: "must carry content"}
	}
	return c.persistReply(ctx, id, uuid.Nil, option)
}

// EditMessage rewrites a message's content in place. Later messages are left
// untouched.
func (c *Coordinator) EditMessage(ctx context.Context, id ConversationID, userID uuid.UUID, messageID uuid.UUID, content string) (*Message, error) {
	if err := c.requireOwner(ctx, id, userID); err != nil {
		return nil, err
	}
	formatted, err := FormatUserMessage(content, userID, FormatOptions{MaxLength: c.maxMessageLength})
	if err != nil {
		return nil, err
	}

	updated, err := c.store.UpdateMessageContent(ctx, id, messageID, formatted.Content, time.Now().UTC())
	if err != nil {
		return nil, persistErr("edit message", err)
	}
	c.invalidateContext(ctx, id)
	return updated, nil
}

// EditMessageWithRegeneration rewrites a user message and appends exactly one
// fresh assistant reply parented to the edited message. Prior replies are not
// deleted or rewritten; the parent link marks where the thread forked.
func (c *Coordinator) EditMessageWithRegeneration(ctx context.Context, id ConversationID, userID uuid.UUID, messageID uuid.UUID, content string) (*Message, *Message, error) {
	edited, err := c.EditMessage(ctx, id, userID, messageID, content)
	if err != nil {
		return nil, nil, err
	}
	if edited.Role != RoleUser {
		return edited, nil, &ValidationError{Field: "message", Reason: "regeneration requires a user message"}
	}

	history, err := c.store.GetHistory(ctx, id)
	if err != nil {
		return edited, nil, persistErr("load history", err)
	}

	env := c.generateReply(ctx, history, edited.Content)
	reply, err := c.persistReply(ctx, id, edited.ID, env)
	if err != nil {
		return edited, nil, err
	}
	c.saveContext(ctx, history, nil, reply)
	return edited, reply, nil
}

// GetHistory returns the conversation and its ordered messages after an
// ownership check.
func (c *Coordinator) GetHistory(ctx context.Context, id ConversationID, userID uuid.UUID) (*History, error) {
	if err := c.requireOwner(ctx, id, userID); err != nil {
		return nil, err
	}
	history, err := c.store.GetHistory(ctx, id)
	if err != nil {
		return nil, persistErr("load history", err)
	}
	return history, nil
}

// ServiceMode reports which backend the next reply would use.
func (c *Coordinator) ServiceMode() ServiceMode {
	if c.ai == nil {
		return ModeMock
	}
	return c.detector.Detect()
}

func (c *Coordinator) requireOwner(ctx context.Context, id ConversationID, userID uuid.UUID) error {
	owner, err := c.store.IsOwner(ctx, id, userID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return err
		}
		return persistErr("check ownership", err)
	}
	if !owner {
		return ErrNotOwner
	}
	return nil
}

// generateReply picks the backend and produces an envelope. It never returns
// an error: AI failures already degrade to fallback envelopes inside the
// generator, and a panic anywhere in generation is recovered into a mock
// reply. Persistence problems are the only errors reply flows surface.
func (c *Coordinator) generateReply(ctx context.Context, history *History, messageText string) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("reply generation panicked, serving mock reply",
				"conversation_id", history.Conversation.ID.String(),
				"panic", fmt.Sprint(r),
			)
			env = BuildMockResponse(mockPanicReply, map[string]string{"matched_rule": "panic_recovery"})
		}
	}()

	pattern := history.Conversation.AssessmentPattern
	initial := len(history.Messages) == 0

	if c.ServiceMode() == ModeAI {
		if initial {
			return c.ai.GenerateInitial(ctx, messageText, pattern)
		}
		return c.ai.GenerateFollowUp(ctx, messageText, c.contextFor(ctx, history), pattern)
	}

	if initial {
		return c.mock.GenerateInitial(messageText, pattern)
	}
	return c.mock.GenerateFollowUp(messageText, history.Messages, pattern)
}

func (c *Coordinator) persistReply(ctx context.Context, id ConversationID, parentID uuid.UUID, env Envelope) (*Message, error) {
	formatted, err := FormatAssistantMessage(env.Content)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string, len(env.Metadata)+2)
	for k, v := range env.Metadata {
		meta[k] = v
	}
	meta["source"] = string(env.Source)
	if env.Confidence != nil {
		meta["confidence"] = strconv.FormatFloat(*env.Confidence, 'f', -1, 64)
	}

	reply := &Message{
		ConversationID: id,
		Role:           RoleAssistant,
		Content:        formatted.Content,
		Metadata:       meta,
	}
	if parentID != uuid.Nil {
		parent := parentID
		reply.ParentID = &parent
	}
	if err := c.store.InsertMessage(ctx, reply); err != nil {
		return nil, persistErr("persist reply", err)
	}
	messagesPersistedTotal.WithLabelValues(string(RoleAssistant)).Inc()
	return reply, nil
}

// contextFor returns the messages to feed the AI generator, preferring the
// cached window when available. Cache failures fall back to the store
// snapshot.
func (c *Coordinator) contextFor(ctx context.Context, history *History) []Message {
	if c.cache == nil {
		return history.Messages
	}
	cached, ok, err := c.cache.Load(ctx, history.Conversation.ID)
	if err != nil {
		c.logger.Warn("context cache read failed, using store history",
			"conversation_id", history.Conversation.ID.String(),
			"error", err.Error(),
		)
		return history.Messages
	}
	if !ok {
		return history.Messages
	}

	messages := make([]Message, len(cached))
	for i, msg := range cached {
		messages[i] = Message{
			ConversationID: history.Conversation.ID,
			Role:           Role(msg.Role),
			Content:        msg.Content,
			Seq:            int64(i + 1),
		}
	}
	return messages
}

// saveContext refreshes the cached AI window after a completed turn. Best
// effort only.
func (c *Coordinator) saveContext(ctx context.Context, history *History, userMsg, reply *Message) {
	if c.cache == nil {
		return
	}
	messages := history.Messages
	if userMsg != nil {
		messages = append(messages, *userMsg)
	}
	if reply != nil {
		messages = append(messages, *reply)
	}
	window := FormatMessagesForAI(messages, AIFormatOptions{MaxHistory: followUpHistoryWindow})
	if err := c.cache.Save(ctx, history.Conversation.ID, window); err != nil {
		c.logger.Warn("context cache write failed",
			"conversation_id", history.Conversation.ID.String(),
			"error", err.Error(),
		)
	}
}

func (c *Coordinator) invalidateContext(ctx context.Context, id ConversationID) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, id); err != nil {
		c.logger.Warn("context cache invalidation failed",
			"conversation_id", id.String(),
			"error", err.Error(),
		)
	}
}

// latestUserMessage returns the most recent user message by created_at, with
// seq breaking ties, or nil when none exists.
func latestUserMessage(messages []Message) *Message {
	var latest *Message
	for i := range messages {
		msg := &messages[i]
		if msg.Role != RoleUser {
			continue
		}
		if latest == nil {
			latest = msg
			continue
		}
		if msg.CreatedAt.After(latest.CreatedAt) ||
			(msg.CreatedAt.Equal(latest.CreatedAt) && msg.Seq > latest.Seq) {
			latest = msg
		}
	}
	return latest
}
