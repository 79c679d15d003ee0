// Package errs defines the error taxonomy of the reload proxy: configuration
// errors are fatal at startup, upstream failures are classified so the
// forwarding proxy can decide between retrying and surfacing 502/500.
package errs

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// UpstreamErrorKind classifies why an upstream request failed.
type UpstreamErrorKind int

const (
	// UpstreamRefused means nothing was listening on the upstream address.
	// This is the only retryable kind.
	UpstreamRefused UpstreamErrorKind = iota
	// UpstreamTransport covers every other transport failure: reset,
	// timeout, DNS resolution, broken pipe.
	UpstreamTransport
)

// String returns the string representation of the kind
func (k UpstreamErrorKind) String() string {
	switch k {
	case UpstreamRefused:
		return "refused"
	case UpstreamTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// ConfigError represents an invalid or missing configuration setting. It is
// the only error class that terminates the process.
type ConfigError struct {
	Key     string
	Message string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Message)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Key, e.Message)
}

// NewConfigError creates a configuration error for the given setting key.
func NewConfigError(key, message string) *ConfigError {
	return &ConfigError{Key: key, Message: message}
}

// UpstreamError wraps a failed upstream request with its classification and
// the number of attempts that were made before giving up.
type UpstreamError struct {
	Kind     UpstreamErrorKind
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("upstream %s after %d attempts: %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Kind, e.Err)
}

// Unwrap supports errors.Is/As chains down to the transport error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsRefused reports whether err represents a connection-refused failure,
// either an already-classified UpstreamError or a raw transport error.
func IsRefused(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind == UpstreamRefused
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// Classify wraps a raw transport error as an UpstreamError. Connection
// refused is detected through the syscall error inside net.OpError; anything
// else counts as a generic transport failure.
func Classify(err error, attempts int) *UpstreamError {
	kind := UpstreamTransport
	if errors.Is(err, syscall.ECONNREFUSED) {
		kind = UpstreamRefused
	} else {
		var opErr *net.OpError
		if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			kind = UpstreamRefused
		}
	}
	return &UpstreamError{Kind: kind, Attempts: attempts, Err: err}
}
