// ABOUTME: Reconciler merges feed snapshots into the MessageStore
// ABOUTME: Drops optimistic entries superseded by their authoritative echo

package chat

import "time"

// DefaultReconcileWindow is the time tolerance used to match an optimistic
// entry to its authoritative counterpart.
const DefaultReconcileWindow = 5 * time.Second

// Reconciler applies authoritative snapshots to a MessageStore and discards
// optimistic entries whose authoritative echo has arrived, so a user's own
// message never renders twice while the round trip is in flight.
type Reconciler struct {
	store  *MessageStore
	window time.Duration
}

// NewReconciler returns a reconciler over store. window <= 0 selects
// DefaultReconcileWindow.
func NewReconciler(store *MessageStore, window time.Duration) *Reconciler {
	if window <= 0 {
		window = DefaultReconcileWindow
	}
	return &Reconciler{store: store, window: window}
}

// Apply replaces the authoritative subset with snapshot, then matches held
// optimistic entries against it.
//
// An optimistic entry is superseded by an authoritative message with the
// same user author, equal content, and a creation time within the window of
// the entry's synthesis time. Matching is FIFO: the oldest unmatched
// optimistic entry claims its counterpart first, so two rapid sends of
// identical content reconcile in send order, not arrival order, and one
// authoritative message never supersedes two entries.
func (r *Reconciler) Apply(snapshot []Message) {
	r.store.UpsertAuthoritative(snapshot)

	claimed := make(map[string]bool)
	for _, opt := range r.store.Optimistic() {
		for _, auth := range snapshot {
			if claimed[auth.ID] {
				continue
			}
			if r.supersedes(auth, opt) {
				claimed[auth.ID] = true
				r.store.DropOptimistic(opt.ID)
				break
			}
		}
	}
}

// supersedes reports whether authoritative message auth is the echo of
// optimistic entry opt.
func (r *Reconciler) supersedes(auth, opt Message) bool {
	if auth.AuthorKind != AuthorUser || auth.AuthorID != opt.AuthorID {
		return false
	}
	if auth.Content != opt.Content {
		return false
	}
	delta := auth.CreatedAt.Sub(opt.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= r.window
}
