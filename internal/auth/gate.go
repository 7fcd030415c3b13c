package auth

import (
	"context"

	"github.com/neftie/neftie/backend/internal/apperr"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying a verified identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity placed by WithIdentity, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// RequireIdentity is the authorization gate: it yields the verified identity
// or apperr.ErrNotAuthenticated.
func RequireIdentity(ctx context.Context) (Identity, error) {
	id, ok := IdentityFrom(ctx)
	if !ok || id.Username == "" {
		return Identity{}, apperr.ErrNotAuthenticated
	}
	return id, nil
}

// Gate runs fn with the caller's identity. fn is never called for an
// anonymous context.
func Gate[T any](ctx context.Context, fn func(ctx context.Context, id Identity) (T, error)) (T, error) {
	id, err := RequireIdentity(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx, id)
}
