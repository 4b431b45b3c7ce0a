// ABOUTME: SSE snapshot streaming for conversation messages
// ABOUTME: Sends the full message list on connect and after every write

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/parley/internal/store"
)

// handleStream handles GET /api/conversations/{id}/stream.
//
// Every event carries the conversation's complete message list, so a client
// can apply each one as a wholesale replacement. The hub's wakeup channel is
// subscribed before the first read, which closes the window where a write
// could land between the initial snapshot and the first notification.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, conv *store.Conversation) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	wakeups, subID := s.notifier.Subscribe(r.Context(), conv.ID)
	defer s.notifier.Unsubscribe(conv.ID, subID)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := s.logger.With("conversation_id", conv.ID, "sub_id", subID)
	logger.Debug("stream opened")

	for {
		if err := s.writeSnapshot(r.Context(), w, flusher, conv.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Conversation deleted mid-stream: end cleanly
				logger.Debug("conversation deleted, closing stream")
			} else {
				logger.Debug("stream write failed", "error", err)
			}
			return
		}

		select {
		case <-r.Context().Done():
			logger.Debug("stream closed by client")
			return
		case _, open := <-wakeups:
			if !open {
				// Notifier shut down (server stopping)
				logger.Debug("stream closed by server")
				return
			}
		}
	}
}

// writeSnapshot reads the current message list and writes it as one SSE event.
func (s *Server) writeSnapshot(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, conversationID string) error {
	// The conversation may vanish between wakeups; report that distinctly
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return err
	}

	msgs, err := s.store.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return err
	}

	s.writeSSEEvent(w, "snapshot", toMessageList(msgs))
	flusher.Flush()
	return nil
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
