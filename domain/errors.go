package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a feed-level failure for the error governor.
type ErrorKind string

const (
	ErrorNotFound  ErrorKind = "not_found"
	ErrorForbidden ErrorKind = "forbidden"
	ErrorHTTP      ErrorKind = "http_error"
	ErrorTimeout   ErrorKind = "timeout"
	ErrorNetwork   ErrorKind = "network_error"
	ErrorParsing   ErrorKind = "parsing_error"
	ErrorException ErrorKind = "exception"
)

var (
	ErrEmptyTitle             = errors.New("entry has empty title")
	ErrUnknownThread          = errors.New("message thread not found")
	ErrNoConfiguredRecipients = errors.New("no active recipient channels configured")
)

// FetchError is a classified feed fetch failure.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ClassifyError extracts the error kind from a (possibly wrapped) error.
// Unclassified errors map to ErrorException.
func ClassifyError(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ErrorException
}

// StatusCode extracts the HTTP status from a classified error, zero when
// the failure never reached the HTTP layer.
func StatusCode(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

// ThrottleError is a chat-backend 429 carrying the server-advertised wait.
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("chat throttled, retry after %s", e.RetryAfter)
}

// ChatError is a terminal chat-backend rejection.
type ChatError struct {
	StatusCode  int
	Description string
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("chat error (HTTP %d): %s", e.StatusCode, e.Description)
}
