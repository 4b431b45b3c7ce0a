// ABOUTME: SendSequencer drives the two-phase send state machine
// ABOUTME: Idle -> storingUserMessage -> awaitingBotReply -> Idle, with rollback

package chat

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Phase is a SendSequencer state. The zero value is PhaseIdle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStoringUserMessage
	PhaseAwaitingBotReply
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStoringUserMessage:
		return "storing_user_message"
	case PhaseAwaitingBotReply:
		return "awaiting_bot_reply"
	default:
		return "unknown"
	}
}

// PendingSend is the single in-flight send for a conversation. At most one
// exists at any instant; a new send cannot start while one is active.
type PendingSend struct {
	ProvisionalID string
	Content       string
	Phase         Phase
}

// SendSequencer owns the two-phase write sequence for one conversation:
// store the user's message, then request an automated reply. It is a pure
// state machine; the engine issues the actual Backend calls and feeds their
// results back through CompleteStore and CompleteBotReply. All methods are
// invoked from the engine run loop only.
type SendSequencer struct {
	session        Session
	conversationID string
	store          *MessageStore
	pending        *PendingSend
	now            func() time.Time
	logger         *slog.Logger
}

// NewSendSequencer returns an idle sequencer bound to store. now may be nil
// for time.Now.
func NewSendSequencer(store *MessageStore, session Session, conversationID string, now func() time.Time, logger *slog.Logger) *SendSequencer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SendSequencer{
		session:        session,
		conversationID: conversationID,
		store:          store,
		now:            now,
		logger:         logger.With("component", "sequencer"),
	}
}

// Begin validates content and, if accepted, synthesizes the optimistic
// message, inserts it into the store, and enters PhaseStoringUserMessage.
// Returns the optimistic message the engine should now persist.
//
// Rejections are no-ops: blank content, an already-active PendingSend, or a
// missing session/conversation context leave the store untouched and no
// write may be issued.
func (q *SendSequencer) Begin(content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, ErrBlankContent
	}
	if q.pending != nil {
		return Message{}, ErrSendInFlight
	}
	if q.session.UserID == "" {
		return Message{}, ErrNoSession
	}
	if q.conversationID == "" {
		return Message{}, ErrNoConversation
	}

	m := Message{
		ID:             uuid.New().String(),
		ConversationID: q.conversationID,
		Content:        content,
		CreatedAt:      q.now(),
		AuthorKind:     AuthorUser,
		AuthorID:       q.session.UserID,
		Origin:         OriginOptimistic,
	}
	q.store.AddOptimistic(m)
	q.pending = &PendingSend{
		ProvisionalID: m.ID,
		Content:       content,
		Phase:         PhaseStoringUserMessage,
	}
	q.logger.Debug("send started", "provisional_id", m.ID)
	return m, nil
}

// CompleteStore consumes the result of the store-message write.
//
// On failure the optimistic entry is removed, the pending send cleared, and
// a *MutationError returned for the caller to surface. On success the
// sequencer advances to PhaseAwaitingBotReply; the engine must then issue
// the bot-reply request. Advancing does not wait for the authoritative echo
// to arrive on the feed - reconciliation is the Reconciler's job.
func (q *SendSequencer) CompleteStore(err error) error {
	if q.pending == nil || q.pending.Phase != PhaseStoringUserMessage {
		return nil
	}
	if err != nil {
		q.store.DropOptimistic(q.pending.ProvisionalID)
		q.logger.Warn("store message failed, rolled back optimistic entry",
			"provisional_id", q.pending.ProvisionalID,
			"error", err)
		q.pending = nil
		return &MutationError{Op: OpStoreMessage, Err: err}
	}
	q.pending.Phase = PhaseAwaitingBotReply
	return nil
}

// CompleteBotReply consumes the result of the bot-reply request and clears
// the pending send unconditionally: the bot's message arrival is async and
// may lag, but the typing state never outlives this phase.
//
// On failure a *MutationError is returned; the user's message stays (it was
// durably stored before this phase began) - only the reply request failed.
func (q *SendSequencer) CompleteBotReply(err error) error {
	if q.pending == nil || q.pending.Phase != PhaseAwaitingBotReply {
		return nil
	}
	q.pending = nil
	if err != nil {
		q.logger.Warn("bot reply request failed", "error", err)
		return &MutationError{Op: OpBotReply, Err: err}
	}
	return nil
}

// Pending returns a copy of the in-flight send, or nil when idle.
func (q *SendSequencer) Pending() *PendingSend {
	if q.pending == nil {
		return nil
	}
	p := *q.pending
	return &p
}

// ReplyPending reports whether a bot reply has been requested and not yet
// settled. This drives the typing indicator.
func (q *SendSequencer) ReplyPending() bool {
	return q.pending != nil && q.pending.Phase == PhaseAwaitingBotReply
}

// Reset discards in-flight send state without rollback. Used when the
// engine abandons the conversation: the write already issued is allowed to
// complete server-side and its result is simply ignored.
func (q *SendSequencer) Reset() {
	q.pending = nil
}
