package api

import (
	"encoding/json"
	"net/http"
)

// Machine-readable error codes returned alongside HTTP status.
const (
	ErrBadRequest        = "bad_request"
	ErrInvalidBody       = "invalid_body"
	ErrUnsupportedFormat = "unsupported_format"
	ErrFileTooLarge      = "file_too_large"
	ErrNotFound          = "not_found"
	ErrAlreadyRunning    = "already_running"
	ErrInvalidState      = "invalid_state"
	ErrQueueFull         = "queue_full"
	ErrStorage           = "storage_error"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorWithCode writes a JSON error response with a machine code and
// human-readable detail.
func WriteErrorWithCode(w http.ResponseWriter, status int, code, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: http.StatusText(status), Code: code, Detail: detail})
}
