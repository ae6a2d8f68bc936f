package userctx

import (
	"context"
)

// Identity resolved from a validated access token.
// Carried in the request context, never in process-wide state.
type Identity struct {
	UserID int64
	Email  string
	Name   string
}

type ctxKey string

const identityKey ctxKey = "identity"

// Create a new context carrying the identity
func New(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// Extract the identity from the context
func FromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok
}
