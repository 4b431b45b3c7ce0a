// ABOUTME: SubscriptionFeed wraps a Backend subscription with connection states
// ABOUTME: Forwards ordered snapshots and surfaces errors without auto-retry

package chat

import (
	"context"
	"log/slog"
	"sync"
)

// ConnState is the observable state of a subscription feed.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateError
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// FeedState is a connection-state transition. Err is set only for
// StateError and is always a *ConnectionError.
type FeedState struct {
	State ConnState
	Err   error
}

// stateBufferSize bounds the transition channel. A feed emits at most
// connecting, open, and one terminal state, so four is never exceeded.
const stateBufferSize = 4

// SubscriptionFeed maintains the live read-only snapshot channel for one
// conversation. It does not retry on error: a dropped feed stays down until
// the caller opens a new one.
type SubscriptionFeed struct {
	sub       Subscription
	snapshots chan []Message
	states    chan FeedState
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// OpenFeed opens the snapshot stream for conversationID. It refuses to open
// with an empty conversation id, and a dial failure is returned as a
// *ConnectionError rather than surfacing a feed at all.
//
// On success the returned feed has already emitted StateConnecting and
// StateOpen on States.
func OpenFeed(ctx context.Context, backend Backend, conversationID string, logger *slog.Logger) (*SubscriptionFeed, error) {
	if conversationID == "" {
		return nil, ErrNoConversation
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &SubscriptionFeed{
		snapshots: make(chan []Message, 1),
		states:    make(chan FeedState, stateBufferSize),
		done:      make(chan struct{}),
		logger:    logger.With("component", "feed", "conversation_id", conversationID),
	}
	f.postState(FeedState{State: StateConnecting})

	sub, err := backend.SubscribeMessages(ctx, conversationID)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	f.sub = sub
	f.postState(FeedState{State: StateOpen})
	f.logger.Debug("feed open")

	go f.pump()
	return f, nil
}

// Snapshots yields full ordered authoritative message lists, each
// superseding the last. The channel closes when the feed terminates.
func (f *SubscriptionFeed) Snapshots() <-chan []Message {
	return f.snapshots
}

// States yields connection-state transitions.
func (f *SubscriptionFeed) States() <-chan FeedState {
	return f.states
}

// Close releases the underlying subscription deterministically. Safe to
// call more than once; the feed emits StateClosed exactly once.
func (f *SubscriptionFeed) Close() {
	f.closeOnce.Do(func() {
		close(f.done)
		f.sub.Close()
	})
}

// pump forwards snapshots in arrival order until the subscription ends, an
// error arrives, or the feed is closed.
func (f *SubscriptionFeed) pump() {
	defer close(f.snapshots)
	for {
		select {
		case <-f.done:
			f.postState(FeedState{State: StateClosed})
			return
		case snap, ok := <-f.sub.Snapshots():
			if !ok {
				f.postState(FeedState{State: StateClosed})
				return
			}
			select {
			case f.snapshots <- snap:
			case <-f.done:
				f.postState(FeedState{State: StateClosed})
				return
			}
		case err := <-f.sub.Err():
			f.logger.Warn("feed dropped", "error", err)
			f.postState(FeedState{State: StateError, Err: &ConnectionError{Err: err}})
			return
		}
	}
}

// postState never blocks; the buffer covers every legal transition count.
func (f *SubscriptionFeed) postState(st FeedState) {
	select {
	case f.states <- st:
	default:
		f.logger.Debug("state transition dropped", "state", st.State.String())
	}
}
