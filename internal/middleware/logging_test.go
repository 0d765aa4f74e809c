package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/chatmeter/chatmeter/internal/metrics"
)

// TestLogging_CredentialRedaction ensures credentials never reach the logs.
func TestLogging_CredentialRedaction(t *testing.T) {
	t.Parallel()

	secret := "q8J0m2VfZk1xW4cT7pLr9sNa3dYe6hUb-QiOgK5tBzM"

	headers := []struct {
		name  string
		value string
	}{
		{"Authorization", "Token " + secret},
		{"Authorization", "Bearer " + secret},
		{AuthTokenHeader, secret},
	}

	for _, h := range headers {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		handler := Logger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
		req.Header.Set(h.name, h.value)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		out := buf.String()
		if strings.Contains(out, secret) {
			t.Errorf("%s: log output contains the credential", h.name)
		}
		if strings.Contains(out, "Token ") || strings.Contains(out, "Bearer") {
			t.Errorf("%s: log output contains the auth scheme", h.name)
		}
	}
}

// TestLogging_BasicFields verifies that expected non-sensitive fields are logged.
func TestLogging_BasicFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	wrapped := Logger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", nil)
	req.Header.Set("User-Agent", "TestBrowser/2.0")
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	logOutput := buf.String()
	for _, field := range []string{
		`"method":"POST"`,
		`"path":"/api/v1/register"`,
		`"status_code":201`,
		`"user_agent":"TestBrowser/2.0"`,
		`"route":"unmatched"`,
	} {
		if !strings.Contains(logOutput, field) {
			t.Errorf("Expected log field %s not found in output", field)
		}
	}
}

// TestLogging_RoutePatternAndMetrics checks that chi patterns, not raw paths,
// label the request metric.
func TestLogging_RoutePatternAndMetrics(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	rec := metrics.NewInMemory()

	r := chi.NewRouter()
	r.Use(Logger(logger, rec))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/items/1", "/items/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if !strings.Contains(buf.String(), `"route":"/items/{id}"`) {
		t.Errorf("route pattern not logged: %s", buf.String())
	}
	if got := rec.Snapshot().HTTPRequests; got != 2 {
		t.Errorf("HTTPRequests = %d, want 2", got)
	}
}

// TestLogging_ErrorStatusLevel verifies error statuses are logged at error level.
func TestLogging_ErrorStatusLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		wantLevel  string
	}{
		{"success", http.StatusOK, "INFO"},
		{"created", http.StatusCreated, "INFO"},
		{"bad request", http.StatusBadRequest, "WARN"},
		{"unauthorized", http.StatusUnauthorized, "WARN"},
		{"payment required", http.StatusPaymentRequired, "WARN"},
		{"internal error", http.StatusInternalServerError, "ERROR"},
		{"bad gateway", http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			wrapped := Logger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

			if !strings.Contains(buf.String(), `"level":"`+tt.wantLevel+`"`) {
				t.Errorf("Expected log level %s for status %d, got output: %s", tt.wantLevel, tt.statusCode, buf.String())
			}
		})
	}
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusBadRequest, http.StatusInternalServerError} {
		wrapped := wrapResponseWriter(httptest.NewRecorder())
		wrapped.WriteHeader(code)
		if wrapped.status != code {
			t.Errorf("status = %d, want %d", wrapped.status, code)
		}
	}
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	t.Parallel()

	wrapped := wrapResponseWriter(httptest.NewRecorder())
	_, _ = wrapped.Write([]byte("hello"))

	if wrapped.status != http.StatusOK {
		t.Errorf("default status = %d, want %d", wrapped.status, http.StatusOK)
	}
}

func TestResponseWriter_DoubleWriteHeader(t *testing.T) {
	t.Parallel()

	wrapped := wrapResponseWriter(httptest.NewRecorder())
	wrapped.WriteHeader(http.StatusCreated)
	wrapped.WriteHeader(http.StatusInternalServerError)

	if wrapped.status != http.StatusCreated {
		t.Errorf("status after double write = %d, want %d", wrapped.status, http.StatusCreated)
	}
}
