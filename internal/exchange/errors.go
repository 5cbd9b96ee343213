package exchange

import (
	"fmt"
	"strings"
)

// APIError is a request the exchange received and rejected: the response
// envelope carried a non-empty error array. The raw messages are preserved
// for logging and notifications.
type APIError struct {
	Method   string
	Messages []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange rejected %s: %s", e.Method, strings.Join(e.Messages, "; "))
}

// TransportError is a network-level failure (timeout, DNS, 5xx, unreadable
// body). The outcome of the underlying request is unknown, so callers must
// not assume it did not happen.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure on %s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
