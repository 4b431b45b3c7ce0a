// ABOUTME: Error taxonomy for the conversation state engine
// ABOUTME: ConnectionError, validation sentinels, and per-phase MutationError

package chat

import (
	"errors"
	"fmt"
)

// Validation sentinels. These reject a send before any write is issued.
var (
	ErrBlankContent   = errors.New("content is blank")
	ErrSendInFlight   = errors.New("a send is already in flight")
	ErrNoConversation = errors.New("no conversation open")
	ErrNoSession      = errors.New("no authenticated session")
)

// ErrConversationNotFound is returned when the target conversation does not
// exist (or is not visible to the viewer). Terminal for the open view.
var ErrConversationNotFound = errors.New("conversation not found")

// MutationOp names the write phase a MutationError belongs to.
type MutationOp string

const (
	OpStoreMessage MutationOp = "store_message"
	OpBotReply     MutationOp = "bot_reply"
)

// MutationError wraps a failed backing-store write. The Op discriminator
// tells the caller which recovery path applies: a failed store rolls back
// the optimistic entry, a failed bot reply leaves the stored user message
// untouched.
type MutationError struct {
	Op  MutationOp
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// ConnectionError wraps a feed that failed to open or dropped. The engine
// never auto-retries; recovery is an explicit Reconnect.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
