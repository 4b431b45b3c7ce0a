// ABOUTME: Backend is the data-access collaborator contract the engine consumes
// ABOUTME: Implemented over HTTP+SSE by internal/apiclient and by test fakes

package chat

import "context"

// Subscription is a live read-only channel of authoritative message
// snapshots for one conversation.
//
// Every value on Snapshots is the full current ordered message list, not a
// diff; a snapshot supersedes all prior ones. Snapshots are delivered in
// order. Err yields at most one terminal error, after which no further
// snapshots arrive. Close releases the underlying connection; it is safe to
// call more than once.
type Subscription interface {
	Snapshots() <-chan []Message
	Err() <-chan error
	Close()
}

// Backend is the opaque data-access collaborator. Persistence and query
// execution live behind it; the engine only issues the calls below.
type Backend interface {
	// GetConversation returns conversation metadata, or
	// ErrConversationNotFound when it does not exist or is not visible.
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)

	// ListMessages returns the full ordered authoritative message list.
	// Used for the initial load before the subscription is open.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	// SubscribeMessages opens the live snapshot stream.
	SubscribeMessages(ctx context.Context, conversationID string) (Subscription, error)

	// StoreMessage durably stores a user message and returns the
	// authoritative Message the store created for it.
	StoreMessage(ctx context.Context, conversationID, authorID, content string) (Message, error)

	// RequestBotReply asks the automated responder to answer content. The
	// resulting bot message arrives later via the subscription stream, not
	// as this call's return value. requestID makes the request idempotent.
	RequestBotReply(ctx context.Context, conversationID, content, requestID string) error

	// Conversation list CRUD, used by the list collaborator (the client
	// shell), not by the engine itself.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	CreateConversation(ctx context.Context, userID, title string) (Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}
