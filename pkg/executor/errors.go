package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransientError marks a failure that may succeed if retried (timeouts,
// rate limiting, 5xx-class responses).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix (auth, malformed or
// unsupported requests).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as a transient failure. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as a permanent failure. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err belongs to the retryable class.
// Explicit markers win; otherwise deadline and network timeouts are transient and
// everything else, cancellation included, is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var perm *PermanentError
	var trans *TransientError
	switch {
	case errors.As(err, &perm):
		return false
	case errors.As(err, &trans):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return TransientStatus(coded.StatusCode())
	}
	return false
}

// TransientStatus reports whether an HTTP status code is worth retrying.
func TransientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// ClassifyStatus wraps err according to the HTTP status returned by a provider.
func ClassifyStatus(code int, err error) error {
	if TransientStatus(code) {
		return Transient(err)
	}
	return Permanent(err)
}
