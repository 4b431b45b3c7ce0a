// ABOUTME: Package documentation for the store package
// ABOUTME: Explains the persistence model for conversations and messages

// Package store provides persistence for conversations and their messages.
//
// # Model
//
// A Conversation belongs to a single user and holds an ordered list of
// Messages. Messages are append-only: the gateway never edits or deletes a
// message once stored. Each message records whether it came from the user or
// from the bot responder.
//
// # Ordering
//
// Messages are returned ordered by (created_at, id) ascending. Timestamps are
// stored as RFC 3339 strings with nanosecond precision so that two messages
// written within the same second still sort deterministically.
//
// # Implementations
//
// SQLiteStore is the production implementation, backed by modernc.org/sqlite
// (pure Go, no cgo). The schema is created on open and the database runs in
// WAL mode.
package store
