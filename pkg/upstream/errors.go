package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a rejection body is read.
const maxErrorBody = 64 * 1024

// RejectedError is returned by Client.Open when the upstream answers with a
// non-success status before streaming begins.
type RejectedError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message())
}

// Message returns a short human-readable reason: the JSON error message when
// the body carries one, otherwise the trimmed body, otherwise the status text.
func (e *RejectedError) Message() string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(e.Body, &payload) == nil && len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(payload.Error, &flat) == nil && flat != "" {
			return flat
		}
	}

	if body := strings.TrimSpace(string(e.Body)); body != "" {
		return body
	}

	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return "unknown status"
}

// AsRejected extracts *RejectedError from an error chain.
func AsRejected(err error) (*RejectedError, bool) {
	var e *RejectedError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
