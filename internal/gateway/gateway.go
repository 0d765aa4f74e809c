// Package gateway calls the external text-generation service.
//
// Every failure leaving this package is either a *TimeoutError or a
// *ServiceError, and a successful call never returns blank text.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FallbackResponse replaces blank upstream output.
const FallbackResponse = "I'm here, but I couldn't generate a response right now."

// Generator produces a reply for a user message.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// Func adapts a plain function to Generator. The result is normalized the
// same way the HTTP client normalizes upstream output. Errors and panics are
// converted to *TimeoutError or *ServiceError.
type Func func(ctx context.Context, text string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, text string) (out string, err error) {
	defer recoverInto(&err)

	start := time.Now()
	out, err = f(ctx, text)
	if err != nil {
		return "", classify(err, time.Since(start))
	}
	return normalize(out), nil
}

// classify keeps gateway errors as they are and wraps anything else.
func classify(err error, elapsed time.Duration) error {
	var (
		te *TimeoutError
		se *ServiceError
	)
	switch {
	case errors.As(err, &te), errors.As(err, &se):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{After: elapsed.Round(time.Millisecond)}
	default:
		return &ServiceError{Detail: err.Error(), Err: err}
	}
}

// TimeoutError reports that the upstream call exceeded its deadline.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generation timed out after %s", e.After)
}

// ServiceError reports any other upstream failure.
type ServiceError struct {
	Detail     string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation service error (status %d): %s", e.StatusCode, e.Detail)
	}
	return "generation service error: " + e.Detail
}

func (e *ServiceError) Unwrap() error { return e.Err }

// promptTemplate wraps user text in the assistant's system instructions.
const promptTemplate = `[INST] <<SYS>>

You are a helpful AI assistant. Your task is to provide concise and accurate responses to user queries.
Your name is AI Assistant and you are here to help users with their questions.

Input : %s[/INST]`

// BuildPrompt renders the prompt sent upstream for text.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return FallbackResponse
	}
	return s
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = &ServiceError{Detail: fmt.Sprintf("panic during generation: %v", r)}
	}
}
