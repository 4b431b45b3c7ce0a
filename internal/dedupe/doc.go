// ABOUTME: Package documentation for the dedupe package
// ABOUTME: Explains request ID deduplication for bot reply requests

// Package dedupe prevents duplicate bot replies.
//
// Reply requests are idempotent: the client attaches a request ID (the
// provisional ID of the message being answered) and the gateway records each
// ID it has acted on. A retried request with a known ID is acknowledged
// without invoking the bot responder again.
//
// The cache is bounded both by TTL and by entry count, so a long-running
// gateway cannot grow it without limit.
package dedupe
