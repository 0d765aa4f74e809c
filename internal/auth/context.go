package auth

import (
	"context"

	"github.com/chatmeter/chatmeter/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const authContextKey contextKey = "auth_context"

// ContextWithAuth adds AuthContext to the context.
func ContextWithAuth(ctx context.Context, auth *model.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// AuthFromContext retrieves AuthContext from the context.
// Returns nil for anonymous requests.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	auth, ok := ctx.Value(authContextKey).(*model.AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// AccountIDFromContext returns the authenticated account ID, or "".
func AccountIDFromContext(ctx context.Context) string {
	auth := AuthFromContext(ctx)
	if auth == nil {
		return ""
	}
	return auth.AccountID
}
