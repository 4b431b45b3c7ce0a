// ABOUTME: Package documentation for the auth package
// ABOUTME: Explains token verification and identity propagation

// Package auth handles user authentication for the gateway.
//
// # Tokens
//
// Users authenticate with HS256-signed JWTs carrying the user ID in the
// "sub" claim and an optional display name in the "name" claim. Tokens are
// minted by the gateway's token subcommand and verified on every request.
//
// # Identity propagation
//
// The HTTP middleware verifies the bearer token and attaches an Identity to
// the request context. Handlers retrieve it with FromContext.
package auth
