// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Handler serves the informational and fallback routes.
type Handler struct {
	name    string
	version string
}

// New creates a new Handler instance.
func New(name, version string) *Handler {
	return &Handler{name: name, version: version}
}

// Info describes the service.
// GET /
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    h.name,
		"version": h.version,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "resource not found"})
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

var (
	errEmptyBody    = errors.New("request body is empty")
	errMalformed    = errors.New("malformed JSON body")
	errBodyTooLarge = errors.New("request body too large")
)

// decodeJSON reads one JSON object from the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return errBodyTooLarge
	case errors.Is(err, io.EOF):
		return errEmptyBody
	default:
		return errMalformed
	}
}

// writeDecodeError maps a decodeJSON failure.
func writeDecodeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, status, map[string]string{"message": err.Error()})
}
