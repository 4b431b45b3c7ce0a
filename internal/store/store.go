// ABOUTME: Store interface and data types for parley-gateway persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation
// with an ID that already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Conversation represents a chat between one user and the bot
type Conversation struct {
	ID        string
	Title     string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents a single message within a conversation
type Message struct {
	ID             string
	ConversationID string
	UserID         string // empty for bot messages
	Content        string
	IsBot          bool
	CreatedAt      time.Time
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}
