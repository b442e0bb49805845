// Package apperr holds the error taxonomy shared by the clients and the reconcile engine.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

var (
	// ErrConfiguration marks a fatal configuration problem. A run never starts mutating with one.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuthentication marks a failed login against a remote service.
	ErrAuthentication = errors.New("authentication failed")
	ErrNotFound       = errors.New("not found")
	// ErrRunTimedOut is reported for work cut off by the run budget.
	ErrRunTimedOut = errors.New("run timed out")
	// ErrSystemicFailure is returned when every item of a run failed.
	ErrSystemicFailure = errors.New("every item failed")
)

// Configf wraps a formatted message with ErrConfiguration.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Kind classifies remote failures for retry decisions.
type Kind int

const (
	Permanent Kind = iota
	Transient
	RateLimited
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate-limit"
	default:
		return "permanent"
	}
}

// RemoteError is a failed call against the source or target service.
type RemoteError struct {
	Op         string
	Status     int
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

func (e *RemoteError) Error() string {
	msg := e.Op
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

// FromStatus builds a RemoteError for a non-2xx HTTP status.
func FromStatus(op string, status int, retryAfter time.Duration, err error) *RemoteError {
	re := &RemoteError{Op: op, Status: status, RetryAfter: retryAfter, Err: err}
	switch {
	case status == http.StatusTooManyRequests:
		re.Kind = RateLimited
	case status >= 500, status == http.StatusRequestTimeout:
		re.Kind = Transient
	default:
		re.Kind = Permanent
	}
	if status == http.StatusNotFound && err == nil {
		re.Err = ErrNotFound
	}
	return re
}

// Network wraps a transport failure (dial, reset, per-call timeout) as transient.
func Network(op string, err error) *RemoteError {
	return &RemoteError{Op: op, Kind: Transient, Err: err}
}

// Malformed wraps an undecodable response body as permanent.
func Malformed(op string, err error) *RemoteError {
	return &RemoteError{Op: op, Kind: Permanent, Err: fmt.Errorf("malformed response: %w", err)}
}

// KindOf classifies any error. Unknown errors are permanent.
func KindOf(err error) Kind {
	if err == nil {
		return Permanent
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Transient
	}
	return Permanent
}

// RetryAfter returns the retry-after hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	if errors.Is(err, ErrAuthentication) {
		return true
	}
	var re *RemoteError
	return errors.As(err, &re) && (re.Status == http.StatusUnauthorized || re.Status == http.StatusForbidden)
}
