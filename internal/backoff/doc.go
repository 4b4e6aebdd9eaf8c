// Package backoff wraps outbound API calls in a retry policy.
//
// Each call is classified after it fails: retryable errors (rate limits, transient server errors,
// dropped connections) are retried with exponential backoff and jitter up to a fixed number of
// attempts, everything else is returned to the caller unchanged.
package backoff
