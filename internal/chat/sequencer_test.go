// ABOUTME: Tests for the SendSequencer state machine
// ABOUTME: Verifies validation, phase transitions, and per-phase rollback

package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seqBase = time.Date(2025, 6, 12, 9, 30, 0, 0, time.UTC)

func newTestSequencer(s *MessageStore) *SendSequencer {
	return NewSendSequencer(s, Session{UserID: "u1", DisplayName: "Ada"}, "conv-1",
		func() time.Time { return seqBase }, nil)
}

func TestSequencer_BeginSynthesizesOptimistic(t *testing.T) {
	s := NewMessageStore()
	q := newTestSequencer(s)

	m, err := q.Begin("hello")
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, AuthorUser, m.AuthorKind)
	assert.Equal(t, "u1", m.AuthorID)
	assert.Equal(t, OriginOptimistic, m.Origin)
	assert.Equal(t, seqBase, m.CreatedAt)

	require.Len(t, s.VisibleMessages(), 1)
	p := q.Pending()
	require.NotNil(t, p)
	assert.Equal(t, PhaseStoringUserMessage, p.Phase)
	assert.False(t, q.ReplyPending())
}

func TestSequencer_TrimsContent(t *testing.T) {
	s := NewMessageStore()
	q := newTestSequencer(s)

	m, err := q.Begin("  hello \n")
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Content)
}

func TestSequencer_RejectsBlankContent(t *testing.T) {
	s := NewMessageStore()
	q := newTestSequencer(s)

	_, err := q.Begin("   \n\t")
	require.ErrorIs(t, err, ErrBlankContent)
	assert.Empty(t, s.VisibleMessages())
	assert.Nil(t, q.Pending())
}

func TestSequencer_RejectsWhileInFlight(t *testing.T) {
	s := NewMessageStore()
	q := newTestSequencer(s)

	_, err := q.Begin("first")
	require.NoError(t, err)

	_, err = q.Begin("second")
	require.ErrorIs(t, err, ErrSendInFlight)
	assert.Len(t, s.VisibleMessages(), 1, "rejected send must not touch the store")
}

func TestSequencer_RejectsWithoutSession(t *testing.T) {
	s := NewMessageStore()
	q := NewSendSequencer(s, Session{}, "conv-1", nil, nil)

	_, err := q.Begin("hello")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSequencer_RejectsWithoutConversation(t *testing.T) {
	s := NewMessageStore()
	q := NewSendSequencer(s, Session{UserID: "u1"}, "", nil, nil)

	_, err := q.Begin("hello")
	require.ErrorIs(t, err, ErrNoConversation)
}

func TestSequencer_StoreFailureRollsBack(t *testing.T) {
	s := NewMessageStore()
	q := newTestSequencer(s)

	_, err := q.Begin("hello")
	require.NoError(t, err)

	boom := errors.New("insert failed")
	mErr := q.CompleteStore(boom)

	var mutErr *MutationError
	require.ErrorAs(t, mErr, &mutErr)
	assert.Equal(t, OpStoreMessage, mutErr.Op)
	assert.ErrorIs(t, mErr, boom)

	assert.Empty(t, s.VisibleMessages(), "optimistic entry must be rolled back")
	assert.Nil(t, q.Pending())
	assert.False(t, q.ReplyPending())
}

func TestSequencer_StoreSuccessAdvancesToAwaitingBotReply(t *testing.T) {
	s := NewMessageStore()
	q := newTestSequencer(s)

	_, err := q.Begin("hello")
	require.NoError(t, err)
	require.NoError(t, q.CompleteStore(nil))

	p := q.Pending()
	require.NotNil(t, p)
	assert.Equal(t, PhaseAwaitingBotReply, p.Phase)
	assert.True(t, q.ReplyPending())
	assert.Len(t, s.VisibleMessages(), 1, "optimistic entry stays until the echo reconciles it")
}

func TestSequencer_BotReplyFailureIsIsolated(t *testing.T) {
	s := NewMessageStore()
	q := newTestSequencer(s)

	_, err := q.Begin("hello")
	require.NoError(t, err)
	require.NoError(t, q.CompleteStore(nil))

	mErr := q.CompleteBotReply(errors.New("responder unavailable"))

	var mutErr *MutationError
	require.ErrorAs(t, mErr, &mutErr)
	assert.Equal(t, OpBotReply, mutErr.Op)

	// The stored user message is not rolled back; only typing state clears.
	assert.Len(t, s.VisibleMessages(), 1)
	assert.False(t, q.ReplyPending())
	assert.Nil(t, q.Pending())
}

func TestSequencer_BotReplySuccessReturnsToIdle(t *testing.T) {
	s := NewMessageStore()
	q := newTestSequencer(s)

	_, err := q.Begin("hello")
	require.NoError(t, err)
	require.NoError(t, q.CompleteStore(nil))
	require.NoError(t, q.CompleteBotReply(nil))

	assert.Nil(t, q.Pending())
	assert.False(t, q.ReplyPending())

	// A new send may start now.
	_, err = q.Begin("again")
	require.NoError(t, err)
}

func TestSequencer_ResetDiscardsPendingWithoutRollback(t *testing.T) {
	s := NewMessageStore()
	q := newTestSequencer(s)

	_, err := q.Begin("hello")
	require.NoError(t, err)

	q.Reset()
	assert.Nil(t, q.Pending())

	// Late completion of the abandoned send is a no-op.
	assert.NoError(t, q.CompleteStore(nil))
	assert.NoError(t, q.CompleteBotReply(nil))
}
