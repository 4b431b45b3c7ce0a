// ABOUTME: In-memory change notifier for conversation message streams
// ABOUTME: Coalesces writes into per-subscriber wakeup signals consumed by SSE handlers

package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Notifier provides in-memory pub/sub for conversation changes. Subscribers
// register for a conversation ID and receive a wakeup whenever a message is
// written to it; on wakeup they re-read the message list from the store.
// Signals carry no payload, so any number of writes between two reads
// coalesce into a single wakeup.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan struct{} // conversationID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewNotifier creates a notifier. Pass nil logger for default.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subscribers: make(map[string]map[string]chan struct{}),
		logger:      logger.With("component", "hub"),
	}
}

// Subscribe registers a subscriber for changes to the given conversation.
// Returns a wakeup channel and a subscription ID for later unsubscription.
// The subscription is automatically cleaned up when ctx is cancelled.
func (n *Notifier) Subscribe(ctx context.Context, conversationID string) (<-chan struct{}, string) {
	subID := uuid.New().String()
	// Buffer of one: a pending wakeup absorbs all further notifies until read.
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := n.subscribers[conversationID]; !ok {
		n.subscribers[conversationID] = make(map[string]chan struct{})
	}
	n.subscribers[conversationID][subID] = ch
	n.mu.Unlock()

	n.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		n.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Notify wakes all subscribers of the given conversation.
// Non-blocking: a subscriber with a wakeup already pending is left as-is.
func (n *Notifier) Notify(conversationID string) {
	// Sends are non-blocking, so holding the read lock through them is cheap
	// and keeps Unsubscribe from closing a channel mid-send.
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subscribers[conversationID] {
		select {
		case ch <- struct{}{}:
		default:
			// Wakeup already pending, the next read covers this write too
		}
	}
}

// Unsubscribe removes a subscription and closes its wakeup channel.
func (n *Notifier) Unsubscribe(conversationID, subID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs, ok := n.subscribers[conversationID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty conversation entries
	if len(subs) == 0 {
		delete(n.subscribers, conversationID)
	}

	n.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// Close shuts down the notifier and closes all subscriber channels.
// Subscribers see a closed channel and end their streams.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true

	for convID, subs := range n.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(n.subscribers, convID)
	}

	n.logger.Debug("notifier closed")
}
