package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrScoringUnavailable matches every failure returned by Client.Evaluate.
var ErrScoringUnavailable = errors.New("scoring service unavailable")

type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindNetwork   ErrorKind = "network"
	KindHTTP      ErrorKind = "http"
	KindMalformed ErrorKind = "malformed_response"
)

type ScoringError struct {
	Kind       ErrorKind
	StatusCode int
	Attempts   int
	Err        error
}

func (e *ScoringError) Error() string {
	if e == nil {
		return ErrScoringUnavailable.Error()
	}
	msg := fmt.Sprintf("%s: kind=%s attempts=%d", ErrScoringUnavailable.Error(), e.Kind, e.Attempts)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ScoringError) Unwrap() error { return e.Err }

func (e *ScoringError) Is(target error) bool { return target == ErrScoringUnavailable }

// Transient reports whether the failure belongs to the retryable class
// (network errors and 5xx responses).
func (e *ScoringError) Transient() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindNetwork:
		return true
	case KindHTTP:
		return e.StatusCode >= 500
	}
	return false
}

type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "http error"
	}
	return fmt.Sprintf("http error: status=%d message=%s", e.StatusCode, msg)
}

func parseHTTPError(status int, raw []byte) *HTTPError {
	body := strings.TrimSpace(string(raw))

	// FastAPI style {"detail": "..."} or {"error": "..."}.
	var env struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if s, ok := env.Detail.(string); ok && strings.TrimSpace(s) != "" {
			return &HTTPError{StatusCode: status, Message: strings.TrimSpace(s), Body: body}
		}
		if strings.TrimSpace(env.Error) != "" {
			return &HTTPError{StatusCode: status, Message: strings.TrimSpace(env.Error), Body: body}
		}
	}
	return &HTTPError{StatusCode: status, Body: body}
}
