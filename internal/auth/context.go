// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context.
// The second return is false if no identity is present.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// MustFromContext retrieves the Identity from the context, panicking if not
// present. For handlers that only run behind the auth middleware.
func MustFromContext(ctx context.Context) Identity {
	id, ok := FromContext(ctx)
	if !ok {
		panic("auth: Identity not found in context")
	}
	return id
}
