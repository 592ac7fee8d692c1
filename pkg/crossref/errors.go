package crossref

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failed page fetch.
type Kind string

const (
	// KindTransport covers network errors, timeouts and 5xx responses. Retryable.
	KindTransport Kind = "transport"
	// KindRateLimited is an explicit throttling signal (HTTP 429). Retryable after backing off.
	KindRateLimited Kind = "rate_limited"
	// KindMalformedResponse means the page is unusable: wrong envelope, undecodable body
	// or a rejected request. Never retried.
	KindMalformedResponse Kind = "malformed_response"
)

// ErrInvalidCursor is returned when Fetch is called without a cursor token.
var ErrInvalidCursor = errors.New("cursor must be \"*\" or a token returned by a previous page")

// FetchError is the typed failure of a single page fetch.
type FetchError struct {
	Kind       Kind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the same cursor may be requested again.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindRateLimited
}

// KindOf extracts the fetch error kind from err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

func transportErr(status int, err error) *FetchError {
	return &FetchError{Kind: KindTransport, StatusCode: status, Err: err}
}

func malformedErr(status int, err error) *FetchError {
	return &FetchError{Kind: KindMalformedResponse, StatusCode: status, Err: err}
}
