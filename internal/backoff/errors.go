package backoff

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRetriesExhausted is matched by [ExhaustedError] via [errors.Is].
var ErrRetriesExhausted = errors.New("max retries exceeded")

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	History  []CallAttempt
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// StatusError reports a response that decoded without a transport error but carried a non-2xx status.
type StatusError struct {
	StatusCode int
	Header     http.Header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("got status: %d", e.StatusCode)
}

// CheckStatus returns a [*StatusError] when code is outside 2xx.
func CheckStatus(code int, header http.Header) error {
	if code >= 200 && code < 300 {
		return nil
	}
	return &StatusError{StatusCode: code, Header: header}
}
