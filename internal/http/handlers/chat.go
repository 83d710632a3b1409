package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lunara-health/lunara-platform/internal/assessment"
	"github.com/lunara-health/lunara-platform/internal/conversation"
	"github.com/lunara-health/lunara-platform/internal/http/middleware"
	"github.com/lunara-health/lunara-platform/pkg/logging"
)

// ChatHandler exposes the conversation engine over HTTP. The caller's user id
// arrives via the trusted X-User-ID header; middleware.RequireUser has already
// validated it by the time these handlers run.
type ChatHandler struct {
	coordinator *conversation.Coordinator
	logger      *logging.Logger
}

// NewChatHandler creates the chat API handler.
func NewChatHandler(coordinator *conversation.Coordinator, logger *logging.Logger) *ChatHandler {
	if coordinator == nil {
		panic("handlers: coordinator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{coordinator: coordinator, logger: logger}
}

// CreateConversationRequest starts a conversation, optionally with an opening
// message that is answered immediately.
type CreateConversationRequest struct {
	AssessmentID      *uuid.UUID `json:"assessment_id,omitempty"`
	AssessmentPattern string     `json:"assessment_pattern,omitempty"`
	Message           string     `json:"message,omitempty"`
}

// CreateConversationResponse is the created conversation plus the opening
// exchange when a message was supplied.
type CreateConversationResponse struct {
	Conversation *conversation.Conversation `json:"conversation"`
	Exchange     *conversation.Exchange     `json:"exchange,omitempty"`
}

// SendMessagesRequest carries one message or an ordered batch.
type SendMessagesRequest struct {
	Message      string   `json:"message,omitempty"`
	Messages     []string `json:"messages,omitempty"`
	BatchDelayMS int      `json:"batch_delay_ms,omitempty"`
	SkipReply    bool     `json:"skip_reply,omitempty"`
}

// SendMessagesResponse returns the exchanges completed, in order. On a
// partial batch failure the completed exchanges still come back alongside the
// error status.
type SendMessagesResponse struct {
	Exchanges []conversation.Exchange `json:"exchanges"`
	Error     string                  `json:"error,omitempty"`
}

// EditMessageRequest rewrites a message, optionally regenerating a reply.
type EditMessageRequest struct {
	Content    string `json:"content"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

// EditMessageResponse is the edited message plus the regenerated reply when
// requested.
type EditMessageResponse struct {
	Message *conversation.Message `json:"message"`
	Reply   *conversation.Message `json:"reply,omitempty"`
}

// OptionsRequest asks for candidate replies to a message.
type OptionsRequest struct {
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// OptionsResponse carries unpersisted candidates ranked best-first.
type OptionsResponse struct {
	Options []conversation.Envelope `json:"options"`
}

// CommitOptionRequest persists a previously returned candidate.
type CommitOptionRequest struct {
	Option conversation.Envelope `json:"option"`
}

// CreateConversation handles POST /conversations.
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.coordinator.StartConversation(r.Context(), userID, req.AssessmentID, assessment.Pattern(req.AssessmentPattern))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := CreateConversationResponse{Conversation: conv}
	if req.Message != "" {
		exchange, err := h.coordinator.CreateInitialMessage(r.Context(), conv.ID, userID, req.Message)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.Exchange = exchange
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetHistory handles GET /conversations/{conversationID}/messages.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	convID, err := conversation.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	history, err := h.coordinator.GetHistory(r.Context(), convID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// SendMessages handles POST /conversations/{conversationID}/messages.
func (h *ChatHandler) SendMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	convID, err := conversation.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req SendMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	contents := req.Messages
	if len(contents) == 0 && req.Message != "" {
		contents = []string{req.Message}
	}
	opts := conversation.SendOptions{
		BatchDelay: time.Duration(req.BatchDelayMS) * time.Millisecond,
		SkipReply:  req.SkipReply,
	}

	exchanges, err := h.coordinator.SendMessages(r.Context(), convID, userID, contents, opts)
	if err != nil {
		// A partial batch still returns what landed, with the error attached.
		if len(exchanges) > 0 {
			h.logger.Warn("batch send partially failed",
				"conversation_id", convID.String(),
				"completed", len(exchanges),
				"error", err.Error(),
			)
			writeJSON(w, statusFor(err), SendMessagesResponse{Exchanges: exchanges, Error: err.Error()})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SendMessagesResponse{Exchanges: exchanges})
}

// EditMessage handles POST /conversations/{conversationID}/messages/{messageID}/edit.
func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	convID, err := conversation.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	messageID, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Regenerate {
		edited, reply, err := h.coordinator.EditMessageWithRegeneration(r.Context(), convID, userID, messageID, req.Content)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, EditMessageResponse{Message: edited, Reply: reply})
		return
	}

	edited, err := h.coordinator.EditMessage(r.Context(), convID, userID, messageID, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditMessageResponse{Message: edited})
}

// GenerateOptions handles POST /conversations/{conversationID}/options.
func (h *ChatHandler) GenerateOptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	convID, err := conversation.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req OptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	options, err := h.coordinator.GenerateResponseOptions(r.Context(), convID, userID, req.Message, req.Count)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OptionsResponse{Options: options})
}

// CommitOption handles POST /conversations/{conversationID}/options/commit.
func (h *ChatHandler) CommitOption(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	convID, err := conversation.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req CommitOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.coordinator.CommitResponseOption(r.Context(), convID, userID, req.Option)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// AutoReply handles POST /conversations/{conversationID}/auto-reply, replying
// to the latest user message without a new user turn.
func (h *ChatHandler) AutoReply(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	convID, err := conversation.ParseConversationID(chi.URLParam(r, "conversationID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	reply, _, err := h.coordinator.AutoGenerateResponse(r.Context(), convID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (h *ChatHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeJSONError(w, status, "internal error")
		return
	}
	writeJSONError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case conversation.IsValidationError(err),
		errors.Is(err, conversation.ErrInvalidConversationID):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, conversation.ErrConversationNotFound),
		errors.Is(err, conversation.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrNoUserMessage):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
