package mcp

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrHandshake is returned when the handshake cannot establish a
// session. It is fatal for the client instance: callers must not retry
// on the same Client.
var ErrHandshake = errors.New("mcp: handshake failed")

// ErrClosed is returned for requests issued after Close.
var ErrClosed = errors.New("mcp: client closed")

// ErrNotConnected is returned when a request is issued before Connect.
var ErrNotConnected = errors.New("mcp: client not connected")

// ErrorKind classifies a per-request failure.
type ErrorKind int

const (
	// ErrorKindTransport covers connection and HTTP-level failures.
	ErrorKindTransport ErrorKind = iota
	// ErrorKindTimeout means no matching response arrived in time.
	// Idempotent list methods may be retried by the caller; call
	// methods must not be, since the side effect may have happened.
	ErrorKindTimeout
	// ErrorKindDecode means the response stream ended without a
	// decodable matching response.
	ErrorKindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindDecode:
		return "decode"
	default:
		return "transport"
	}
}

// RequestError is a recoverable per-call failure. The client never
// retries on behalf of the caller.
type RequestError struct {
	Kind   ErrorKind
	Method string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mcp: request %s failed: %s", e.Method, e.Kind)
	}
	return fmt.Sprintf("mcp: request %s failed: %s: %s", e.Method, e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Kind == ErrorKindTimeout
}
