package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatmeter/chatmeter/internal/auth"
	"github.com/chatmeter/chatmeter/internal/model"
	"github.com/chatmeter/chatmeter/internal/service"
)

type stubResolver struct {
	valid string
	err   error
	calls int
}

func (s *stubResolver) Resolve(_ context.Context, secret string) (*model.AuthContext, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if secret != s.valid {
		return nil, service.ErrInvalidCredentials
	}
	return &model.AuthContext{AccountID: "acct-1", Username: "alice"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtractCredential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"token scheme", map[string]string{"Authorization": "Token abc"}, "abc"},
		{"bearer scheme", map[string]string{"Authorization": "Bearer abc"}, "abc"},
		{"scheme is case insensitive", map[string]string{"Authorization": "token abc"}, "abc"},
		{"padded", map[string]string{"Authorization": "  Token   abc  "}, "abc"},
		{"x-auth-token", map[string]string{AuthTokenHeader: " abc "}, "abc"},
		{"unknown scheme falls back", map[string]string{"Authorization": "Basic Zm9v", AuthTokenHeader: "abc"}, "abc"},
		{"authorization wins", map[string]string{"Authorization": "Token one", AuthTokenHeader: "two"}, "one"},
		{"empty header", map[string]string{"Authorization": ""}, ""},
		{"scheme only", map[string]string{"Authorization": "Token"}, ""},
		{"none", nil, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := extractCredential(req); got != tt.want {
				t.Errorf("extractCredential() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		header      string
		resolverErr error
		wantStatus  int
		wantMessage string
		wantAccount string
	}{
		{name: "valid credential", header: "Token good", wantStatus: http.StatusOK, wantAccount: "acct-1"},
		{name: "no credential passes anonymously", header: "", wantStatus: http.StatusOK},
		{name: "wrong credential", header: "Token bad", wantStatus: http.StatusUnauthorized, wantMessage: "invalid credentials"},
		{name: "store failure", header: "Token good", resolverErr: errStore, wantStatus: http.StatusInternalServerError, wantMessage: "internal server error"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolver := &stubResolver{valid: "good", err: tt.resolverErr}
			var gotAccount string
			handler := Authenticate(AuthConfig{Logger: discardLogger(), Resolver: resolver})(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					gotAccount = auth.AccountIDFromContext(r.Context())
					w.WriteHeader(http.StatusOK)
				}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotAccount != tt.wantAccount {
				t.Errorf("account = %q, want %q", gotAccount, tt.wantAccount)
			}
			if tt.wantMessage != "" {
				var body map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body["message"] != tt.wantMessage {
					t.Errorf("message = %q, want %q", body["message"], tt.wantMessage)
				}
			}
		})
	}
}

func TestAuthenticate_EmptyHeaderSkipsResolver(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{valid: "good"}
	handler := Authenticate(AuthConfig{Logger: discardLogger(), Resolver: resolver})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AuthTokenHeader, "   ")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if resolver.calls != 0 {
		t.Errorf("resolver called %d times, want 0", resolver.calls)
	}
}

func TestRequireAccount(t *testing.T) {
	t.Parallel()

	handler := RequireAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("anonymous", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		var body map[string]string
		_ = json.NewDecoder(rec.Body).Decode(&body)
		if body["message"] != "credentials required" {
			t.Errorf("message = %q", body["message"])
		}
	})

	t.Run("authenticated", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.ContextWithAuth(req.Context(), &model.AuthContext{AccountID: "acct-1"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})
}
