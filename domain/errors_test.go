package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
		status   int
	}{
		{
			name:     "classified fetch error",
			err:      &FetchError{Kind: ErrorForbidden, StatusCode: 403, Message: "access denied"},
			expected: ErrorForbidden,
			status:   403,
		},
		{
			name:     "wrapped fetch error",
			err:      fmt.Errorf("operation failed after 3 attempts: %w", &FetchError{Kind: ErrorTimeout}),
			expected: ErrorTimeout,
			status:   0,
		},
		{
			name:     "plain error maps to exception",
			err:      errors.New("boom"),
			expected: ErrorException,
			status:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyError(tt.err))
			assert.Equal(t, tt.status, StatusCode(tt.err))
		})
	}
}

func TestFetchErrorMessage(t *testing.T) {
	withStatus := &FetchError{Kind: ErrorHTTP, StatusCode: 502, Message: "unexpected status 502 Bad Gateway"}
	assert.Equal(t, "http_error (HTTP 502): unexpected status 502 Bad Gateway", withStatus.Error())

	withoutStatus := &FetchError{Kind: ErrorParsing, Message: "feed has no entries"}
	assert.Equal(t, "parsing_error: feed has no entries", withoutStatus.Error())
}
