// ABOUTME: HTTP API handlers for sessions, conversations, messages, and bot replies
// ABOUTME: JSON request/response handling with ownership checks on every conversation route

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/store"
)

// Wire types. created_at marshals as RFC 3339 with nanoseconds, which the
// client parses back without losing sub-second ordering.

type conversationJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageJSON struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UserID         string    `json:"user_id,omitempty"`
	IsBot          bool      `json:"is_bot"`
}

type sessionJSON struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type createConversationRequest struct {
	Title string `json:"title"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

type replyRequest struct {
	Content   string `json:"content"`
	RequestID string `json:"request_id"`
}

func toConversationJSON(c *store.Conversation) conversationJSON {
	return conversationJSON{
		ID:        c.ID,
		Title:     c.Title,
		UserID:    c.UserID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toMessageJSON(m *store.Message) messageJSON {
	return messageJSON{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		UserID:         m.UserID,
		IsBot:          m.IsBot,
	}
}

func toMessageList(msgs []*store.Message) []messageJSON {
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageJSON(m))
	}
	return out
}

// sendJSON writes a JSON response with the given status.
func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleSession handles GET /api/session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := auth.MustFromContext(r.Context())
	s.sendJSON(w, http.StatusOK, sessionJSON{UserID: id.UserID, DisplayName: id.DisplayName})
}

// handleConversations handles /api/conversations (list and create).
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListConversations(w, r)
	case http.MethodPost:
		s.handleCreateConversation(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	convs, err := s.store.ListConversations(r.Context(), id.UserID, 0)
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]conversationJSON, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationJSON(c))
	}
	s.sendJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New chat"
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		UserID:    id.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(r.Context(), conv); err != nil {
		s.logger.Error("failed to create conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("conversation created", "id", conv.ID, "user_id", id.UserID)
	s.sendJSON(w, http.StatusCreated, toConversationJSON(conv))
}

// handleConversationRoutes dispatches /api/conversations/{id}[/messages|/reply|/stream].
func (s *Server) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	convID, sub, _ := strings.Cut(rest, "/")
	if convID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	conv, ok := s.loadOwnedConversation(w, r, convID)
	if !ok {
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.sendJSON(w, http.StatusOK, toConversationJSON(conv))
		case http.MethodDelete:
			s.handleDeleteConversation(w, r, conv)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "messages":
		switch r.Method {
		case http.MethodGet:
			s.handleListMessages(w, r, conv)
		case http.MethodPost:
			s.handlePostMessage(w, r, conv)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "reply":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleReply(w, r, conv)
	case "stream":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleStream(w, r, conv)
	default:
		s.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

// loadOwnedConversation fetches the conversation and checks that the caller
// owns it. Another user's conversation reads as not found rather than
// forbidden, so conversation IDs are not probeable.
func (s *Server) loadOwnedConversation(w http.ResponseWriter, r *http.Request, convID string) (*store.Conversation, bool) {
	id := auth.MustFromContext(r.Context())

	conv, err := s.store.GetConversation(r.Context(), convID)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load conversation", "id", convID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	if conv.UserID != id.UserID {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	return conv, true
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request, conv *store.Conversation) {
	if err := s.store.DeleteConversation(r.Context(), conv.ID); err != nil {
		s.logger.Error("failed to delete conversation", "id", conv.ID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Wake streamers so they notice the conversation is gone
	s.notifier.Notify(conv.ID)
	s.logger.Info("conversation deleted", "id", conv.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, conv *store.Conversation) {
	msgs, err := s.store.ListMessages(r.Context(), conv.ID, 0)
	if err != nil {
		s.logger.Error("failed to list messages", "conversation_id", conv.ID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, toMessageList(msgs))
}

// handlePostMessage stores a user message and wakes the conversation's streams.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, conv *store.Conversation) {
	id := auth.MustFromContext(r.Context())

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		UserID:         id.UserID,
		Content:        req.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.SaveMessage(r.Context(), msg); err != nil {
		s.logger.Error("failed to save message", "conversation_id", conv.ID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.notifier.Notify(conv.ID)
	s.sendJSON(w, http.StatusCreated, toMessageJSON(msg))
}

// handleReply accepts a bot reply request and answers it asynchronously.
// The request ID makes retries idempotent: a duplicate is acknowledged
// without invoking the responder again.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request, conv *store.Conversation) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.RequestID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "request_id is required")
		return
	}

	if s.dedupe != nil && s.dedupe.Seen(req.RequestID) {
		s.logger.Debug("duplicate reply request", "request_id", req.RequestID)
		s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "duplicate"})
		return
	}

	s.replies.Add(1)
	go s.generateReply(conv.ID, req.Content, req.RequestID)

	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// generateReply runs the bot responder and stores its answer.
// Bound to the server's lifetime, not the request's: the client has already
// been told 202 and may be gone by the time the model answers.
func (s *Server) generateReply(conversationID, content, requestID string) {
	defer s.replies.Done()

	ctx, cancel := context.WithTimeout(s.replyCtx, s.replyTimeout)
	defer cancel()

	logger := s.logger.With("conversation_id", conversationID, "request_id", requestID)

	history, err := s.store.ListMessages(ctx, conversationID, 0)
	if err != nil {
		logger.Error("failed to load history for reply", "error", err)
		return
	}

	// The user message being answered was stored in the first send phase;
	// strip it from the history so the responder sees it once, as the prompt.
	if n := len(history); n > 0 && !history[n-1].IsBot && history[n-1].Content == content {
		history = history[:n-1]
	}

	reply, err := s.responder.Reply(ctx, history, content)
	if err != nil {
		logger.Error("bot responder failed", "provider", s.responder.Name(), "error", err)
		return
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Content:        reply,
		IsBot:          true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		// The conversation may have been deleted while the bot was thinking
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug("conversation gone before reply landed")
			return
		}
		logger.Error("failed to save bot reply", "error", err)
		return
	}

	s.notifier.Notify(conversationID)
	logger.Debug("bot reply stored", "message_id", msg.ID)
}
