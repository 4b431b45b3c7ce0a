// ABOUTME: Engine owns the conversation state for one viewer and serializes
// ABOUTME: snapshots, send phases, and conversation switches on a run loop

package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Update is the engine's display-ready output, pushed after every state
// change. Each update supersedes the previous one.
type Update struct {
	Groups    []DayGroup
	Typing    bool      // a bot reply has been requested and not yet settled
	ConnState ConnState // feed connection state for the open conversation
	ConnErr   error     // *ConnectionError or ErrConversationNotFound; terminal until Reconnect/Open
	SendErr   error     // one-shot *MutationError from the most recent failed send phase
}

// Options tune an Engine. The zero value is usable.
type Options struct {
	ReconcileWindow time.Duration  // optimistic matching tolerance, default DefaultReconcileWindow
	Location        *time.Location // presentation timezone, default time.Local
	Now             func() time.Time
	Logger          *slog.Logger
}

// Engine is the conversation state engine for one viewer. It owns a
// MessageStore, SendSequencer, Reconciler, and SubscriptionFeed for the
// currently open conversation, and mutates them only from the Run loop:
// user commands, snapshot arrivals, and write completions are discrete
// events processed to completion one at a time.
type Engine struct {
	backend Backend
	session Session

	window time.Duration
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger

	calls   chan func()
	updates chan Update
	done    chan struct{}
	stop    sync.Once

	// Loop-owned state. Touched only from Run.
	runCtx         context.Context
	gen            int
	conversationID string
	store          *MessageStore
	seq            *SendSequencer
	rec            *Reconciler
	feed           *SubscriptionFeed
	connState      ConnState
	connErr        error
}

// NewEngine creates an engine for the authenticated session. Nothing
// happens until Run is started and Open is called.
func NewEngine(backend Backend, session Session, opts Options) *Engine {
	if opts.ReconcileWindow <= 0 {
		opts.ReconcileWindow = DefaultReconcileWindow
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	store := NewMessageStore()
	return &Engine{
		backend: backend,
		session: session,
		window:  opts.ReconcileWindow,
		loc:     opts.Location,
		now:     opts.Now,
		logger:  opts.Logger.With("component", "engine"),
		calls:   make(chan func(), 16),
		updates: make(chan Update, 8),
		done:    make(chan struct{}),
		store:   store,
		rec:     NewReconciler(store, opts.ReconcileWindow),
	}
}

// Updates yields display-ready projections. Stale updates are dropped when
// the consumer lags; the latest one always gets through.
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

// Open switches the engine to conversationID: the previous feed is closed,
// any in-flight PendingSend is discarded (its write may still complete
// server-side; the result is ignored), and the message set is rebuilt from
// the new conversation's initial load and live feed.
func (e *Engine) Open(conversationID string) {
	e.do(func() { e.openLocked(conversationID, true) })
}

// Reconnect reopens the feed for the current conversation after a
// ConnectionError. Recovery is always user-initiated; the engine never
// retries on its own.
func (e *Engine) Reconnect() {
	e.do(func() {
		if e.conversationID == "" {
			return
		}
		e.openLocked(e.conversationID, false)
	})
}

// Send runs the two-step write sequence for content. Rejections (blank
// content, send already in flight, no session or conversation) are silent
// no-ops per the validation contract; write failures surface on Updates as
// SendErr.
func (e *Engine) Send(content string) {
	e.do(func() { e.sendLocked(content) })
}

// Run processes events until ctx is cancelled. It must be running for
// Open/Send/Reconnect to take effect.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	defer e.stop.Do(func() { close(e.done) })

	for {
		var snaps <-chan []Message
		var states <-chan FeedState
		if e.feed != nil {
			snaps = e.feed.Snapshots()
			states = e.feed.States()
		}

		select {
		case <-ctx.Done():
			e.closeFeed()
			return ctx.Err()
		case fn := <-e.calls:
			fn()
		case snap, ok := <-snaps:
			if !ok {
				e.drainFeedStates()
				e.feed = nil
				continue
			}
			e.rec.Apply(snap)
			e.emit(nil)
		case st := <-states:
			e.applyFeedState(st)
		}
	}
}

// do schedules fn on the run loop.
func (e *Engine) do(fn func()) {
	select {
	case e.calls <- fn:
	case <-e.done:
	}
}

// openLocked rebinds the engine to conversationID. reset discards the held
// message set; a reconnect keeps it so the transcript survives the outage.
func (e *Engine) openLocked(conversationID string, reset bool) {
	e.gen++
	gen := e.gen
	e.closeFeed()

	e.conversationID = conversationID
	if reset {
		e.store.Reset()
	}
	e.seq = NewSendSequencer(e.store, e.session, conversationID, e.now, e.logger)
	e.connState = StateConnecting
	e.connErr = nil
	e.emit(nil)

	go e.connect(gen, conversationID)
}

// connect performs the boundary calls that bring a conversation online:
// metadata check, initial load, then the live feed. Runs off-loop; results
// are posted back and ignored if the engine has moved on.
func (e *Engine) connect(gen int, conversationID string) {
	ctx := e.runCtx

	if _, err := e.backend.GetConversation(ctx, conversationID); err != nil {
		e.postConnFailure(gen, err)
		return
	}

	initial, err := e.backend.ListMessages(ctx, conversationID)
	if err != nil {
		e.postConnFailure(gen, &ConnectionError{Err: err})
		return
	}

	feed, err := OpenFeed(ctx, e.backend, conversationID, e.logger)
	if err != nil {
		e.postConnFailure(gen, err)
		return
	}

	e.do(func() {
		if e.gen != gen {
			feed.Close()
			return
		}
		e.rec.Apply(initial)
		e.feed = feed
		e.emit(nil)
	})
}

// postConnFailure surfaces a failed open. ErrConversationNotFound passes
// through unwrapped so callers can tell "chat not found" from a dropped
// connection; everything else arrives as a *ConnectionError.
func (e *Engine) postConnFailure(gen int, err error) {
	if !errors.Is(err, ErrConversationNotFound) {
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			err = &ConnectionError{Err: err}
		}
	}
	e.do(func() {
		if e.gen != gen {
			return
		}
		e.connState = StateError
		e.connErr = err
		e.emit(nil)
	})
}

func (e *Engine) applyFeedState(st FeedState) {
	e.connState = st.State
	e.connErr = st.Err
	e.emit(nil)
}

// drainFeedStates consumes transitions still buffered when the snapshot
// channel closes, so a terminal error is not lost.
func (e *Engine) drainFeedStates() {
	for {
		select {
		case st := <-e.feed.States():
			e.applyFeedState(st)
		default:
			return
		}
	}
}

func (e *Engine) closeFeed() {
	if e.feed != nil {
		e.feed.Close()
		e.feed = nil
	}
}

func (e *Engine) sendLocked(content string) {
	if e.seq == nil {
		e.logger.Debug("send rejected", "reason", ErrNoConversation)
		return
	}
	msg, err := e.seq.Begin(content)
	if err != nil {
		// Validation rejections are silent: store unchanged, no write issued.
		e.logger.Debug("send rejected", "reason", err)
		return
	}
	e.emit(nil)

	gen := e.gen
	go e.storePhase(gen, msg)
}

// storePhase issues the authoritative store-message write (step 2). The
// bot is never asked to reply before this write has succeeded.
func (e *Engine) storePhase(gen int, m Message) {
	_, err := e.backend.StoreMessage(e.runCtx, m.ConversationID, m.AuthorID, m.Content)
	e.do(func() {
		if e.gen != gen {
			return
		}
		if mErr := e.seq.CompleteStore(err); mErr != nil {
			e.emit(mErr)
			return
		}
		e.emit(nil) // typing indicator on
		go e.replyPhase(gen, m)
	})
}

// replyPhase issues the bot-reply request (step 3). Whatever the outcome,
// the pending send is cleared when the result lands (step 4); the bot's
// actual message arrives via the feed whenever it is ready.
func (e *Engine) replyPhase(gen int, m Message) {
	err := e.backend.RequestBotReply(e.runCtx, m.ConversationID, m.Content, m.ID)
	e.do(func() {
		if e.gen != gen {
			return
		}
		if mErr := e.seq.CompleteBotReply(err); mErr != nil {
			e.emit(mErr)
			return
		}
		e.emit(nil)
	})
}

// emit pushes the current projection, coalescing when the consumer lags.
func (e *Engine) emit(sendErr error) {
	typing := false
	if e.seq != nil {
		typing = e.seq.ReplyPending()
	}
	u := Update{
		Groups:    Present(e.store.VisibleMessages(), e.session.UserID, e.now(), e.loc),
		Typing:    typing,
		ConnState: e.connState,
		ConnErr:   e.connErr,
		SendErr:   sendErr,
	}
	for {
		select {
		case e.updates <- u:
			return
		default:
			// Full: drop the stale head and retry with the newest state.
			select {
			case <-e.updates:
			default:
			}
		}
	}
}
