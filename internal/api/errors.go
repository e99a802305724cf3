package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNetwork wraps failures to reach the data service at all
var ErrNetwork = errors.New("network error")

// Error is a non-2xx response from the data service
type Error struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// IsNetwork reports whether err means the data service was unreachable
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// IsUnauthorized reports whether the data service refused the session
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}

// IsNotFound reports whether the data service answered 404
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Retryable reports whether a failed read is worth retrying: network
// errors and server-side failures are, client errors are not.
func Retryable(err error) bool {
	if IsNetwork(err) {
		return true
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return false
}

// errorMessage extracts the human-readable message of an error body. The
// data service uses {"detail": ...}; {"message": ...} and {"error": ...}
// come from the proxy in front of it.
func errorMessage(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Detail) > 0 {
			var s string
			if json.Unmarshal(payload.Detail, &s) == nil {
				return s
			}
			// validation errors arrive as a list of objects
			return string(payload.Detail)
		}
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
