package model

import "time"

// ChatRecord is an immutable (message, response) pair persisted after a
// successful generation.
type ChatRecord struct {
	ID        string    `json:"id"`
	AccountID string    `json:"-"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"timestamp"`
}
