// ABOUTME: Package documentation for the server package
// ABOUTME: Explains the HTTP API surface and streaming model

// Package server implements the gateway's HTTP API.
//
// # Endpoints
//
// All /api routes require a bearer token (see the auth package):
//
//	GET    /api/session                         identity of the caller
//	GET    /api/conversations                   list the caller's conversations
//	POST   /api/conversations                   create a conversation
//	GET    /api/conversations/{id}              fetch one conversation
//	DELETE /api/conversations/{id}              delete a conversation and its messages
//	GET    /api/conversations/{id}/messages     full message list
//	POST   /api/conversations/{id}/messages     store a user message
//	POST   /api/conversations/{id}/reply        ask the bot to answer (idempotent)
//	GET    /api/conversations/{id}/stream       SSE snapshot stream
//
// /health is unauthenticated.
//
// # Streaming
//
// The stream endpoint sends the conversation's complete message list as a
// "snapshot" SSE event: once on connect, then again every time a message is
// written. Clients replace their local list wholesale on each event, so a
// dropped or coalesced wakeup never leaves them with a partial view.
//
// # Bot replies
//
// A reply request is acknowledged with 202 and handled asynchronously: the
// responder runs in the background under a configurable timeout and its
// answer is stored like any other message, reaching clients through the
// stream. Request IDs make retries safe.
package server
