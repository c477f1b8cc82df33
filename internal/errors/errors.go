package errors

import (
	stdErrors "errors"
	"fmt"
)

// domainMarker is implemented by all of this package's error types so callers
// can classify an error chain without a type switch per concrete type.
type domainMarker interface {
	error
	isDomain()
}

// CodecError indicates a failure parsing or encoding the rip container
// format (bad signature, unexpected EOF in a header field, truncated chunk
// read).
type CodecError struct {
	Op  string // e.g. "parse.signature", "parse.metadata", "read.chunk"
	Err error
}

func (e *CodecError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("codec error: %s", e.Op)
	}
	return fmt.Sprintf("codec error: %s: %v", e.Op, e.Err)
}
func (e *CodecError) Unwrap() error { return e.Err }
func (e *CodecError) isDomain()     {}

// ConfigError indicates a fatal startup configuration problem: bad argv,
// an empty playlist, or a listener bind failure.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("config error: %s", e.Op)
	}
	return fmt.Sprintf("config error: %s: %v", e.Op, e.Err)
}
func (e *ConfigError) Unwrap() error { return e.Err }
func (e *ConfigError) isDomain()     {}

// ClientError indicates a per-connection failure: handshake rejection,
// a non-retryable read/write error, or a hangup. ClientError is always
// contained to the one client record that produced it.
type ClientError struct {
	Op  string
	Err error
}

func (e *ClientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("client error: %s", e.Op)
	}
	return fmt.Sprintf("client error: %s: %v", e.Op, e.Err)
}
func (e *ClientError) Unwrap() error { return e.Err }
func (e *ClientError) isDomain()     {}

// NewCodecError, NewConfigError, and NewClientError construct the
// corresponding error type, encouraging contextual wrapping at call sites
// with fmt.Errorf("...: %w", err) when further detail is needed.
func NewCodecError(op string, cause error) error  { return &CodecError{Op: op, Err: cause} }
func NewConfigError(op string, cause error) error { return &ConfigError{Op: op, Err: cause} }
func NewClientError(op string, cause error) error { return &ClientError{Op: op, Err: cause} }

// IsCodecError reports whether err is, or wraps, a *CodecError.
func IsCodecError(err error) bool {
	var e *CodecError
	return stdErrors.As(err, &e)
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var e *ConfigError
	return stdErrors.As(err, &e)
}

// IsClientError reports whether err is, or wraps, a *ClientError.
func IsClientError(err error) bool {
	var e *ClientError
	return stdErrors.As(err, &e)
}

// IsDomainError reports whether the error chain contains any of this
// package's error types.
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}
	var dm domainMarker
	return stdErrors.As(err, &dm)
}
