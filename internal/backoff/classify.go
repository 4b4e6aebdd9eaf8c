package backoff

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Outcome is the classification of one attempt.
type Outcome int

const (
	Success Outcome = iota
	Retryable
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Classifier decides whether a failed attempt may be retried.
type Classifier func(error) Outcome

var retryableReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"backendError":          true,
	"internalError":         true,
}

// DefaultClassifier knows the error shapes produced by the YouTube client, the OAuth token
// endpoint and the network stack. Unknown errors are fatal.
func DefaultClassifier(err error) Outcome {
	if err == nil {
		return Success
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if retryableStatus(gerr.Code) {
			return Retryable
		}
		for _, item := range gerr.Errors {
			if retryableReasons[item.Reason] {
				return Retryable
			}
			if item.Reason == "quotaExceeded" && gerr.Header.Get("Retry-After") != "" {
				return Retryable
			}
		}
		return Fatal
	}

	var serr *StatusError
	if errors.As(err, &serr) {
		if retryableStatus(serr.StatusCode) {
			return Retryable
		}
		return Fatal
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return Retryable
		}
		return Fatal
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return Retryable
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return Retryable
	}
	var operr *net.OpError
	if errors.As(err, &operr) {
		return Retryable
	}

	return Fatal
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// RetryAfter extracts a server-requested delay from err, if any.
// Both delta-seconds and HTTP-date forms are accepted.
func RetryAfter(err error) (time.Duration, bool) {
	var header http.Header

	var gerr *googleapi.Error
	var serr *StatusError
	switch {
	case errors.As(err, &gerr):
		header = gerr.Header
	case errors.As(err, &serr):
		header = serr.Header
	default:
		return 0, false
	}

	v := header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
