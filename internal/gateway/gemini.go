package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Gemini REST endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "gemini-1.5-flash"
	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 1024
)

// Config holds the upstream settings resolved once at startup.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client is a Generator backed by the Gemini generateContent API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Generator = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client. Empty config fields use defaults.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Timeout returns the per-call deadline.
func (c *Client) Timeout() time.Duration { return c.cfg.Timeout }

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends text to the model under the configured timeout.
func (c *Client) Generate(ctx context.Context, text string) (out string, err error) {
	defer recoverInto(&err)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err = c.generate(ctx, text)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &TimeoutError{After: c.cfg.Timeout}
	}

	c.logger.Debug("generation finished",
		"model", c.cfg.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", err == nil,
	)
	return out, err
}

func (c *Client) generate(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: BuildPrompt(text)}}}},
	})
	if err != nil {
		return "", &ServiceError{Detail: "encode request", Err: err}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &ServiceError{Detail: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ServiceError{Detail: "upstream unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", httpError(resp)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", &ServiceError{Detail: "decode response", StatusCode: resp.StatusCode, Err: err}
	}

	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		c.logger.Info("prompt blocked upstream", "reason", gr.PromptFeedback.BlockReason)
		return FallbackResponse, nil
	}

	var sb strings.Builder
	if len(gr.Candidates) > 0 {
		for _, p := range gr.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return normalize(sb.String()), nil
}

func httpError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	detail := strings.TrimSpace(string(raw))
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error.Message != "" {
		detail = er.Error.Message
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	return &ServiceError{Detail: detail, StatusCode: resp.StatusCode}
}
