package pool

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// MalformedResponseError reports a provider payload that did not match the
// source's configured shape. The raw body is kept for the log line.
type MalformedResponseError struct {
	Source string
	Reason string
	Raw    []byte
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.Source, e.Reason)
}

// TransientError wraps failures worth retrying on the next cycle:
// timeouts, connection resets, 5xx responses.
type TransientError struct {
	Source string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure from %s: %v", e.Source, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// IsTransient reports whether err should be retried on the next cycle.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
