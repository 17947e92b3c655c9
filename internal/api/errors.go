// ABOUTME: Structured error type and retryability classification for API calls
// ABOUTME: Callers branch on status/code/retryable instead of raw transport errors

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Machine codes attached to locally classified failures.
const (
	CodeTransport  = "transport"
	CodeEncode     = "encode"
	CodeDecode     = "decode"
	CodeValidation = "validation"
	CodeAuth       = "auth_required"
)

// retryableStatuses are the HTTP statuses eligible for automatic retry.
// Everything else, notably 401/403 and validation errors, is terminal.
var retryableStatuses = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Error is the structured failure shape returned by every client operation.
type Error struct {
	Message   string
	Code      string
	Status    int // HTTP status; 0 when no response was received
	Details   json.RawMessage
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
	}
	return "api error: " + e.Message
}

// AsError extracts a structured *Error from err, if present.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsRetryable reports whether err was classified as retryable.
func IsRetryable(err error) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Retryable
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Status
	}
	return 0
}

// IsAuthError reports whether err is a 401 requiring re-authentication.
func IsAuthError(err error) bool {
	return StatusCode(err) == 401
}

// IsPermissionError reports whether err is a 403 permission denial.
func IsPermissionError(err error) bool {
	return StatusCode(err) == 403
}

// errorBody is the superset of error payload shapes the backend emits.
// FastAPI-style handlers use "detail"; older handlers use "error".
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Err     string          `json:"error"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

// classifyStatus builds a structured error from a non-2xx response,
// preferring the server-provided message when one is present.
func classifyStatus(status int, body []byte) *Error {
	apiErr := &Error{
		Message:   fmt.Sprintf("server returned status %d", status),
		Status:    status,
		Retryable: retryableStatuses[status],
	}
	if len(body) > 0 {
		apiErr.Details = json.RawMessage(body)
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}
	apiErr.Code = parsed.Code

	switch {
	case len(parsed.Detail) > 0:
		// detail is usually a string, but FastAPI validation errors
		// return a structured list; keep those as raw JSON text.
		var s string
		if err := json.Unmarshal(parsed.Detail, &s); err == nil {
			apiErr.Message = s
		} else {
			apiErr.Message = strings.TrimSpace(string(parsed.Detail))
		}
	case parsed.Err != "":
		apiErr.Message = parsed.Err
	case parsed.Message != "":
		apiErr.Message = parsed.Message
	}
	return apiErr
}
