// ABOUTME: Package documentation for apiclient
// ABOUTME: Describes the HTTP+SSE implementation of the chat backend

// Package apiclient implements chat.Backend over the parley-gateway HTTP
// API.
//
// # Requests
//
// Every request carries the client's bearer token. The gateway scopes all
// reads and writes to the token's identity, so user IDs are never sent on
// the wire. Error responses are decoded into Go errors; a 404 maps to
// chat.ErrConversationNotFound so callers can tell a deleted conversation
// apart from a transport failure.
//
// # Streaming
//
// SubscribeMessages consumes the gateway's server-sent events stream. Each
// "snapshot" event carries the conversation's complete message list, which
// is decoded and forwarded on the subscription's Snapshots channel. The
// stream ends when Close is called, the context is cancelled, or the server
// shuts down; a server-side end is reported once on Err.
package apiclient
