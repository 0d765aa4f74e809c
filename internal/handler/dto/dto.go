// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/chatmeter/chatmeter/internal/model"
)

// MsgRequired is reported for a field absent from the request body.
const MsgRequired = "This field is required."

// FieldErrors maps a field name to its messages.
type FieldErrors map[string][]string

func (f FieldErrors) require(field string, present bool) {
	if !present {
		f[field] = append(f[field], MsgRequired)
	}
}

// CredentialsRequest is the body of register and login.
// Pointers distinguish a missing field from an empty one.
type CredentialsRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

// Missing reports absent fields, or nil.
func (r *CredentialsRequest) Missing() FieldErrors {
	errs := FieldErrors{}
	errs.require("username", r.Username != nil)
	errs.require("password", r.Password != nil)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message *string `json:"message"`
}

// Missing reports absent fields, or nil.
func (r *ChatRequest) Missing() FieldErrors {
	errs := FieldErrors{}
	errs.require("message", r.Message != nil)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// RegisterResponse is returned with 201 on registration.
type RegisterResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
	Tokens   int64  `json:"tokens"`
}

// LoginResponse carries the freshly issued credential.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// ChatRecordResponse is a stored exchange.
type ChatRecordResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatResponse is returned for a committed chat.
type ChatResponse struct {
	Message         string             `json:"message"`
	Response        string             `json:"response"`
	TokensRemaining int64              `json:"tokens_remaining"`
	Chat            ChatRecordResponse `json:"chat"`
}

// BalanceResponse is the body of GET /tokens and of 402 replies.
type BalanceResponse struct {
	Message string `json:"message,omitempty"`
	Tokens  int64  `json:"tokens"`
}

// ErrorsResponse carries field validation failures.
type ErrorsResponse struct {
	Errors FieldErrors `json:"errors"`
}

// MessageResponse is a plain message, with optional detail.
type MessageResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ToChatRecordResponse converts a ChatRecord model.
func ToChatRecordResponse(r *model.ChatRecord) ChatRecordResponse {
	return ChatRecordResponse{
		ID:        r.ID,
		Message:   r.Message,
		Response:  r.Response,
		Timestamp: r.CreatedAt,
	}
}
