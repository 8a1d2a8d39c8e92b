// Package rsierr holds the errors returned by the rsi client packages.
//
// Match them with errors.As, ex.
//
//	var authErr *rsierr.AuthenticationError
//	if errors.As(err, &authErr) { ... }
package rsierr

import (
	"fmt"
)

// maxPayload bounds how much of a raw server payload is kept on an error.
const maxPayload = 2048

func truncate(payload string) string {
	if len(payload) <= maxPayload {
		return payload
	}
	return payload[:maxPayload] + "...(truncated)"
}

// TransportError is a network failure or a non-2xx response.
type TransportError struct {
	Method   string
	Endpoint string
	// Status is 0 when no response was received.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Endpoint, e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a response that was received but could not be accepted: an
// envelope reporting failure, graphql errors or a body that could not be decoded.
type ProtocolError struct {
	Endpoint string
	Reason   string
	Payload  string
	Err      error
}

func NewProtocolError(endpoint, reason string, payload []byte, err error) *ProtocolError {
	return &ProtocolError{
		Endpoint: endpoint,
		Reason:   reason,
		Payload:  truncate(string(payload)),
		Err:      err,
	}
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Endpoint, e.Reason)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Payload != "" {
		msg = fmt.Sprintf("%s (payload: %s)", msg, e.Payload)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ValidationError is returned for malformed input before any request is made.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// AuthenticationError is returned when login or the two-factor step fails.
type AuthenticationError struct {
	// Code is the server provided error code, if any.
	Code       string
	Diagnostic string
	Err        error
}

func (e *AuthenticationError) Error() string {
	msg := "authentication failed"
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Diagnostic != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Diagnostic)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when a lookup yields no records.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}
