// ABOUTME: Tests for the Engine run loop
// ABOUTME: Exercises the full send/reconcile/switch/reconnect flows with a fake backend

package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend implements Backend in memory. Tests drive the live feed by
// pushing snapshots into the current fakeSubscription.
type fakeBackend struct {
	mu            sync.Mutex
	conversations map[string]Conversation
	messages      map[string][]Message
	lastSub       *fakeSubscription
	dials         int
	storeCalls    int
	replyCalls    int
	storeErr      error
	replyErr      error
	storeGate     chan struct{} // when set, StoreMessage blocks until closed
	nextID        int
}

func newFakeBackend(conversationIDs ...string) *fakeBackend {
	b := &fakeBackend{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
	}
	for _, id := range conversationIDs {
		b.conversations[id] = Conversation{ID: id, Title: id, UserID: "u1"}
	}
	return b
}

func (b *fakeBackend) GetConversation(_ context.Context, id string) (Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conversations[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return c, nil
}

func (b *fakeBackend) ListMessages(_ context.Context, id string) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.messages[id]))
	copy(out, b.messages[id])
	return out, nil
}

func (b *fakeBackend) SubscribeMessages(_ context.Context, id string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	b.lastSub = newFakeSubscription()
	return b.lastSub, nil
}

func (b *fakeBackend) StoreMessage(_ context.Context, conversationID, authorID, content string) (Message, error) {
	b.mu.Lock()
	gate := b.storeGate
	b.storeCalls++
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.storeErr != nil {
		return Message{}, b.storeErr
	}
	b.nextID++
	m := Message{
		ID:             fmt.Sprintf("m%d", b.nextID),
		ConversationID: conversationID,
		Content:        content,
		CreatedAt:      time.Now(),
		AuthorKind:     AuthorUser,
		AuthorID:       authorID,
		Origin:         OriginAuthoritative,
	}
	b.messages[conversationID] = append(b.messages[conversationID], m)
	return m, nil
}

func (b *fakeBackend) RequestBotReply(_ context.Context, _, _, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replyCalls++
	return b.replyErr
}

func (b *fakeBackend) ListConversations(_ context.Context, _ string) ([]Conversation, error) {
	return nil, nil
}

func (b *fakeBackend) CreateConversation(_ context.Context, _, title string) (Conversation, error) {
	return Conversation{}, errors.New("not implemented")
}

func (b *fakeBackend) DeleteConversation(_ context.Context, _ string) error {
	return errors.New("not implemented")
}

func (b *fakeBackend) sub() *fakeSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSub
}

func (b *fakeBackend) counts() (dials, stores, replies int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials, b.storeCalls, b.replyCalls
}

func (b *fakeBackend) stored(conversationID string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.messages[conversationID]))
	copy(out, b.messages[conversationID])
	return out
}

func startEngine(t *testing.T, backend Backend) *Engine {
	t.Helper()
	e := NewEngine(backend, Session{UserID: "u1", DisplayName: "Ada"}, Options{Location: time.UTC})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go e.Run(ctx)
	return e
}

func awaitUpdate(t *testing.T, e *Engine, what string, cond func(Update) bool) Update {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case u := <-e.Updates():
			if cond(u) {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for update: %s", what)
		}
	}
}

func flatten(u Update) []ViewMessage {
	var out []ViewMessage
	for _, g := range u.Groups {
		out = append(out, g.Messages...)
	}
	return out
}

func awaitSub(t *testing.T, b *fakeBackend) *fakeSubscription {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sub := b.sub(); sub != nil {
			return sub
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for subscription dial")
	return nil
}

func TestEngine_SendReconcilesWithEcho(t *testing.T) {
	backend := newFakeBackend("conv-1")
	e := startEngine(t, backend)

	e.Open("conv-1")
	awaitUpdate(t, e, "feed open", func(u Update) bool { return u.ConnState == StateOpen })

	e.Send("hello")

	u := awaitUpdate(t, e, "optimistic visible", func(u Update) bool { return len(flatten(u)) == 1 })
	first := flatten(u)[0]
	assert.Equal(t, "hello", first.Content)
	assert.Equal(t, KindOwn, first.Kind)
	assert.Equal(t, OriginOptimistic, first.Origin)

	// Store write settled: typing indicator comes on for the bot reply.
	awaitUpdate(t, e, "typing on", func(u Update) bool { return u.Typing })

	// Authoritative echo arrives via the feed.
	awaitSub(t, backend).snaps <- backend.stored("conv-1")

	u = awaitUpdate(t, e, "echo reconciled", func(u Update) bool {
		msgs := flatten(u)
		return len(msgs) == 1 && msgs[0].Origin == OriginAuthoritative
	})
	got := flatten(u)[0]
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "hello", got.Content)

	// Bot-reply request settles; typing clears without waiting for the
	// bot's message to arrive.
	awaitUpdate(t, e, "typing off", func(u Update) bool { return !u.Typing })
	_, stores, replies := backend.counts()
	assert.Equal(t, 1, stores)
	assert.Equal(t, 1, replies)
}

func TestEngine_RapidSendsReconcileInSendOrder(t *testing.T) {
	backend := newFakeBackend("conv-1")
	e := startEngine(t, backend)

	e.Open("conv-1")
	awaitUpdate(t, e, "feed open", func(u Update) bool { return u.ConnState == StateOpen })

	e.Send("hi")
	awaitUpdate(t, e, "first send settled", func(u Update) bool { return !u.Typing && len(flatten(u)) == 1 })
	e.Send("there")
	awaitUpdate(t, e, "second send settled", func(u Update) bool { return !u.Typing && len(flatten(u)) == 2 })

	// Both echoes land in one snapshot.
	awaitSub(t, backend).snaps <- backend.stored("conv-1")

	u := awaitUpdate(t, e, "both reconciled", func(u Update) bool {
		msgs := flatten(u)
		return len(msgs) == 2 && msgs[0].Origin == OriginAuthoritative && msgs[1].Origin == OriginAuthoritative
	})
	msgs := flatten(u)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "there", msgs[1].Content)
}

func TestEngine_SingleFlight(t *testing.T) {
	backend := newFakeBackend("conv-1")
	gate := make(chan struct{})
	backend.storeGate = gate
	e := startEngine(t, backend)

	e.Open("conv-1")
	awaitUpdate(t, e, "feed open", func(u Update) bool { return u.ConnState == StateOpen })

	e.Send("one")
	awaitUpdate(t, e, "first optimistic", func(u Update) bool { return len(flatten(u)) == 1 })

	// Second send while the first is in flight: a no-op.
	e.Send("two")
	close(gate)

	u := awaitUpdate(t, e, "first settled", func(u Update) bool { return !u.Typing && len(flatten(u)) == 1 })
	assert.Equal(t, "one", flatten(u)[0].Content)
	_, stores, replies := backend.counts()
	assert.Equal(t, 1, stores, "no second write may be issued")
	assert.Equal(t, 1, replies)
}

func TestEngine_StoreFailureRollsBack(t *testing.T) {
	backend := newFakeBackend("conv-1")
	backend.storeErr = errors.New("insert failed")
	e := startEngine(t, backend)

	e.Open("conv-1")
	awaitUpdate(t, e, "feed open", func(u Update) bool { return u.ConnState == StateOpen })

	e.Send("hello")

	u := awaitUpdate(t, e, "store failure surfaced", func(u Update) bool { return u.SendErr != nil })
	var mutErr *MutationError
	require.ErrorAs(t, u.SendErr, &mutErr)
	assert.Equal(t, OpStoreMessage, mutErr.Op)
	assert.Empty(t, flatten(u), "optimistic entry must be rolled back")
	assert.False(t, u.Typing)

	_, _, replies := backend.counts()
	assert.Zero(t, replies, "the bot must not be asked after a failed store")
}

func TestEngine_BotReplyFailureKeepsUserMessage(t *testing.T) {
	backend := newFakeBackend("conv-1")
	backend.replyErr = errors.New("responder down")
	e := startEngine(t, backend)

	e.Open("conv-1")
	awaitUpdate(t, e, "feed open", func(u Update) bool { return u.ConnState == StateOpen })

	e.Send("hello")

	u := awaitUpdate(t, e, "bot failure surfaced", func(u Update) bool { return u.SendErr != nil })
	var mutErr *MutationError
	require.ErrorAs(t, u.SendErr, &mutErr)
	assert.Equal(t, OpBotReply, mutErr.Op)

	// The user's message was durably stored before step 3 and stays visible.
	require.Len(t, flatten(u), 1)
	assert.Equal(t, "hello", flatten(u)[0].Content)
	assert.False(t, u.Typing, "typing state returns to idle")
}

func TestEngine_OpenUnknownConversationIsTerminal(t *testing.T) {
	backend := newFakeBackend("conv-1")
	e := startEngine(t, backend)

	e.Open("missing")

	u := awaitUpdate(t, e, "not found surfaced", func(u Update) bool { return u.ConnErr != nil })
	assert.ErrorIs(t, u.ConnErr, ErrConversationNotFound)
	assert.Equal(t, StateError, u.ConnState)
}

func TestEngine_FeedErrorSurfacesAndReconnectRecovers(t *testing.T) {
	backend := newFakeBackend("conv-1")
	e := startEngine(t, backend)

	e.Open("conv-1")
	awaitUpdate(t, e, "feed open", func(u Update) bool { return u.ConnState == StateOpen })

	awaitSub(t, backend).errs <- errors.New("stream reset")

	u := awaitUpdate(t, e, "connection error surfaced", func(u Update) bool { return u.ConnState == StateError })
	var connErr *ConnectionError
	require.ErrorAs(t, u.ConnErr, &connErr)

	// No auto-retry: still one dial until the user asks.
	dials, _, _ := backend.counts()
	assert.Equal(t, 1, dials)

	e.Reconnect()
	awaitUpdate(t, e, "feed reopened", func(u Update) bool { return u.ConnState == StateOpen && u.ConnErr == nil })
	dials, _, _ = backend.counts()
	assert.Equal(t, 2, dials)
}

func TestEngine_SwitchDisposesPreviousConversation(t *testing.T) {
	backend := newFakeBackend("conv-1", "conv-2")
	e := startEngine(t, backend)

	e.Open("conv-1")
	awaitUpdate(t, e, "feed open", func(u Update) bool { return u.ConnState == StateOpen })
	firstSub := awaitSub(t, backend)

	firstSub.snaps <- []Message{authMsg("m1", "old conversation", storeBase)}
	awaitUpdate(t, e, "snapshot applied", func(u Update) bool { return len(flatten(u)) == 1 })

	e.Open("conv-2")
	u := awaitUpdate(t, e, "switched", func(u Update) bool {
		return u.ConnState == StateOpen && len(flatten(u)) == 0
	})
	assert.False(t, u.Typing, "no typing indicator may leak across conversations")
	assert.True(t, firstSub.isClosed(), "previous feed must be released")
}

func TestEngine_InitialLoadRendersBeforeSends(t *testing.T) {
	backend := newFakeBackend("conv-1")
	backend.messages["conv-1"] = []Message{
		authMsg("m1", "earlier", storeBase),
		{ID: "m2", Content: "reply", CreatedAt: storeBase.Add(time.Second), AuthorKind: AuthorBot, Origin: OriginAuthoritative},
	}
	e := startEngine(t, backend)

	e.Open("conv-1")

	u := awaitUpdate(t, e, "initial load", func(u Update) bool { return len(flatten(u)) == 2 })
	msgs := flatten(u)
	assert.Equal(t, KindOwn, msgs[0].Kind)
	assert.Equal(t, KindBot, msgs[1].Kind)
}
