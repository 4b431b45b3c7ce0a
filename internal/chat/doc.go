// Package chat implements the conversation state engine for one open
// conversation between a user and the automated assistant.
//
// # Overview
//
// The engine consumes a live, append-only, server-ordered message stream and
// reconciles it with locally-initiated writes so a viewer sees every message
// exactly once, in order, with an optimistic placeholder shown while a send
// is in flight.
//
// The package is built from five cooperating pieces:
//
//   - MessageStore: in-memory authoritative + optimistic message set
//   - SubscriptionFeed: live snapshot channel with connection states
//   - SendSequencer: two-phase send state machine (store, then bot reply)
//   - Reconciler: merges snapshots, dropping superseded optimistic entries
//   - Present: pure day-grouped projection for rendering
//
// The Engine owns one instance of each for the currently open conversation
// and serializes every state change on a single run loop.
//
// # Concurrency model
//
// All mutations happen on the Engine's run loop: user commands, snapshot
// arrivals, and write completions are discrete events processed one at a
// time. The only suspension points are the Backend boundary calls, which run
// on their own goroutines and post their results back to the loop. Switching
// conversations bumps a generation counter so completions from an abandoned
// conversation are ignored when they eventually land.
//
// # Failure model
//
// Nothing in this package retries automatically. A failed feed surfaces a
// ConnectionError and stays down until Reconnect is called; a failed store
// write rolls back only its optimistic entry; a failed bot-reply request
// clears the typing state but never touches the already-stored user message.
package chat
