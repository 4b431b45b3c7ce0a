// ABOUTME: MessageStore holds the authoritative and optimistic message sets
// ABOUTME: Pure data structure; owned and mutated only by the engine run loop

package chat

import "sort"

// MessageStore is the in-memory message set for one open conversation.
//
// The authoritative subset is replaced wholesale on every feed snapshot;
// optimistic entries are held in send order until the Reconciler drops them
// or a failed write rolls them back.
//
// MessageStore is not safe for concurrent use. It is owned exclusively by
// one engine instance and mutated only from its run loop.
type MessageStore struct {
	authoritative []Message // sorted by (CreatedAt, ID)
	optimistic    []Message // send order (FIFO)
}

// NewMessageStore returns an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// UpsertAuthoritative replaces the authoritative subset with list. The feed
// delivers full snapshots, never deltas, so there is no merge: the previous
// authoritative set is discarded. Messages are ordered by (CreatedAt, ID)
// regardless of their arrival order in list.
func (s *MessageStore) UpsertAuthoritative(list []Message) {
	s.authoritative = make([]Message, len(list))
	copy(s.authoritative, list)
	for i := range s.authoritative {
		s.authoritative[i].Origin = OriginAuthoritative
	}
	sort.SliceStable(s.authoritative, func(i, j int) bool {
		return s.authoritative[i].Less(s.authoritative[j])
	})
}

// AddOptimistic appends a locally synthesized placeholder. The message's ID
// is its provisional id.
func (s *MessageStore) AddOptimistic(m Message) {
	m.Origin = OriginOptimistic
	s.optimistic = append(s.optimistic, m)
}

// DropOptimistic removes the entry with the given provisional id. Returns
// false if no such entry is held.
func (s *MessageStore) DropOptimistic(provisionalID string) bool {
	for i, m := range s.optimistic {
		if m.ID == provisionalID {
			s.optimistic = append(s.optimistic[:i], s.optimistic[i+1:]...)
			return true
		}
	}
	return false
}

// Optimistic returns the held optimistic entries in send order.
func (s *MessageStore) Optimistic() []Message {
	out := make([]Message, len(s.optimistic))
	copy(out, s.optimistic)
	return out
}

// VisibleMessages returns the authoritative messages plus any optimistic
// entries not yet superseded, merged into the (CreatedAt, ID) total order.
func (s *MessageStore) VisibleMessages() []Message {
	out := make([]Message, 0, len(s.authoritative)+len(s.optimistic))
	out = append(out, s.authoritative...)
	out = append(out, s.optimistic...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Less(out[j])
	})
	return out
}

// Reset discards all state. Used when the engine switches conversations.
func (s *MessageStore) Reset() {
	s.authoritative = nil
	s.optimistic = nil
}
