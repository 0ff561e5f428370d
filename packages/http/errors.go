package http

import (
	"errors"
	"fmt"
)

var (
	// ErrNoURL is reported when a request is issued without a usable URL
	ErrNoURL = errors.New("no URL configured")
	// ErrFrozen is reported when a frozen requester is asked for a second request
	ErrFrozen = errors.New("requester is frozen and has already been used")
	// ErrNoResponse is reported when a response is inspected before any request completed
	ErrNoResponse = errors.New("no response captured")
	// ErrUnknownOption is reported for option keys the transport does not support
	ErrUnknownOption = errors.New("unknown option")
	// ErrInvalidOptionValue is reported when an option value has the wrong type or range
	ErrInvalidOptionValue = errors.New("invalid option value")
	// ErrRateLimited is reported when the rate limiter cannot grant a slot
	// before the context deadline. Nothing was sent.
	ErrRateLimited = errors.New("rate limit wait would exceed the context deadline")
)

// ConfigurationError reports a rejected option or a missing required field.
// It is always returned before any network activity.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// StateError reports misuse of a requester, such as reusing a frozen instance.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: %s: %v", e.Op, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// TransportError reports a connection-level failure (DNS, connect, TLS,
// timeout). HTTP error statuses are never reported this way.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a response body that could not be parsed in the
// requested format.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
