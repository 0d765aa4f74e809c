package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chatmeter/chatmeter/internal/auth"
	"github.com/chatmeter/chatmeter/internal/model"
	"github.com/chatmeter/chatmeter/internal/service"
)

// AuthTokenHeader is the alternative to the Authorization header.
const AuthTokenHeader = "X-Auth-Token"

// CredentialResolver maps a presented secret to an identity.
type CredentialResolver interface {
	Resolve(ctx context.Context, secret string) (*model.AuthContext, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Resolver CredentialResolver
}

// Authenticate resolves the request credential, if any, and stores the
// identity in the request context. Requests without a credential pass
// through anonymously; a credential that matches nothing is rejected.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := extractCredential(r)
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			authCtx, err := cfg.Resolver.Resolve(r.Context(), secret)
			switch {
			case err == nil:
			case errors.Is(err, service.ErrNoCredentials):
				next.ServeHTTP(w, r)
				return
			case errors.Is(err, service.ErrInvalidCredentials):
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "invalid_credential"),
					slog.String("prefix", auth.SecretPrefix(secret)),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeMessage(w, http.StatusUnauthorized, service.ErrInvalidCredentials.Error())
				return
			default:
				cfg.Logger.Error("credential lookup failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeMessage(w, http.StatusInternalServerError, "internal server error")
				return
			}

			cfg.Logger.Debug("authenticated",
				slog.String("account_id", authCtx.AccountID),
				slog.String("credential_prefix", authCtx.CredentialPrefix),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractCredential reads "Authorization: Token <secret>" (or Bearer),
// falling back to X-Auth-Token. An empty value counts as absent.
func extractCredential(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && (strings.EqualFold(scheme, "Token") || strings.EqualFold(scheme, "Bearer")) {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(r.Header.Get(AuthTokenHeader))
}

// RequireAccount rejects requests that carry no resolved identity.
// Must be applied after Authenticate.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.AuthFromContext(r.Context()) == nil {
			writeMessage(w, http.StatusUnauthorized, service.ErrNoCredentials.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
