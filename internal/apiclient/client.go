// ABOUTME: HTTP client for the parley-gateway API
// ABOUTME: Implements the chat.Backend interface over JSON endpoints and SSE streams

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/parley/internal/chat"
)

// Client talks to a parley-gateway over HTTP. It satisfies chat.Backend, so
// the engine runs against it the same way it runs against a test double.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the gateway at baseURL, authenticating every
// request with the given bearer token.
func New(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
		logger:  logger.With("component", "apiclient"),
	}
}

// Wire types mirrored from the gateway's API.

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
	UserID         string    `json:"user_id"`
	IsBot          bool      `json:"is_bot"`
}

type sessionJSON struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

func toChatConversation(c conversationJSON) chat.Conversation {
	return chat.Conversation{
		ID:        c.ID,
		Title:     c.Title,
		UserID:    c.UserID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toChatMessage(m messageJSON) chat.Message {
	kind := chat.AuthorUser
	if m.IsBot {
		kind = chat.AuthorBot
	}
	return chat.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		AuthorKind:     kind,
		AuthorID:       m.UserID,
		Origin:         chat.OriginAuthoritative,
	}
}

func toChatMessages(wire []messageJSON) []chat.Message {
	out := make([]chat.Message, 0, len(wire))
	for _, m := range wire {
		out = append(out, toChatMessage(m))
	}
	return out
}

// doJSON performs a request and decodes the response into out (unless nil).
// A non-2xx status is reported as an error carrying the server's message.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// statusError turns an error response into a Go error. A 404 on a
// conversation route maps to chat.ErrConversationNotFound so the engine can
// distinguish "gone" from "unreachable".
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return chat.ErrConversationNotFound
	}

	if resp.Header.Get("Content-Type") == "application/json" {
		var errResp map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			if msg, ok := errResp["error"]; ok {
				return fmt.Errorf("server: %s (status %d)", msg, resp.StatusCode)
			}
		}
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}

// Session fetches the identity behind the client's token.
func (c *Client) Session(ctx context.Context) (chat.Session, error) {
	var sess sessionJSON
	if err := c.doJSON(ctx, http.MethodGet, "/api/session", nil, &sess); err != nil {
		return chat.Session{}, fmt.Errorf("fetching session: %w", err)
	}
	return chat.Session{UserID: sess.UserID, DisplayName: sess.DisplayName}, nil
}

// GetConversation fetches one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	var conv conversationJSON
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations/"+id, nil, &conv); err != nil {
		return chat.Conversation{}, err
	}
	return toChatConversation(conv), nil
}

// ListConversations fetches the caller's conversations. The gateway scopes
// the list to the token's identity, so userID is not sent.
func (c *Client) ListConversations(ctx context.Context, _ string) ([]chat.Conversation, error) {
	var wire []conversationJSON
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]chat.Conversation, 0, len(wire))
	for _, w := range wire {
		out = append(out, toChatConversation(w))
	}
	return out, nil
}

// CreateConversation creates a conversation owned by the token's identity.
func (c *Client) CreateConversation(ctx context.Context, _ string, title string) (chat.Conversation, error) {
	var conv conversationJSON
	body := map[string]string{"title": title}
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations", body, &conv); err != nil {
		return chat.Conversation{}, err
	}
	return toChatConversation(conv), nil
}

// DeleteConversation deletes a conversation and all of its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/conversations/"+id, nil, nil)
}

// ListMessages fetches a conversation's full message list.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var wire []messageJSON
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations/"+conversationID+"/messages", nil, &wire); err != nil {
		return nil, err
	}
	return toChatMessages(wire), nil
}

// StoreMessage persists a user message. The gateway attributes the message
// to the token's identity, so authorID is not sent.
func (c *Client) StoreMessage(ctx context.Context, conversationID, _ string, content string) (chat.Message, error) {
	var msg messageJSON
	body := map[string]string{"content": content}
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/messages", body, &msg); err != nil {
		return chat.Message{}, err
	}
	return toChatMessage(msg), nil
}

// RequestBotReply asks the gateway to answer content. The request ID makes
// retries idempotent server-side.
func (c *Client) RequestBotReply(ctx context.Context, conversationID, content, requestID string) error {
	body := map[string]string{"content": content, "request_id": requestID}
	return c.doJSON(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/reply", body, nil)
}
