// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"fmt"
	"strings"
)

// Sentinels for use with errors.Is. Each matches any error of the
// corresponding type anywhere in a chain.
var (
	ErrValidation       = &ValidationError{}
	ErrTransport        = &TransportError{}
	ErrProtocol         = &ProtocolError{}
	ErrRemoteInvocation = &RemoteInvocationError{}
	ErrStaleBinding     = &StaleBindingError{}
)

// ValidationError reports arguments rejected by an operation's schema.
// The underlying operation was not invoked.
type ValidationError struct {
	ID      string   // operation id
	Fields  []string // offending named arguments, when known
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("invalid input for API %s (%s): %s", e.ID, strings.Join(e.Fields, ", "), e.Message)
	}
	return fmt.Sprintf("invalid input for API %s: %s", e.ID, e.Message)
}

// Is supports errors.Is by matching any *ValidationError target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// StatusCode maps validation failures to HTTP 400 on the exposing side.
func (e *ValidationError) StatusCode() int { return 400 }

// TransportError is a network, timeout or non-success status failure that
// carried no structured error body.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s %s: transport failure", e.Method, e.URL)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is supports errors.Is by matching any *TransportError target.
func (e *TransportError) Is(target error) bool {
	_, ok := target.(*TransportError)
	return ok
}

// ProtocolError reports a violation of the binding protocol: a missing
// fingerprint, a malformed descriptor, or an operation that disappeared
// after reconciliation.
type ProtocolError struct {
	Group   string
	ID      string
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is supports errors.Is by matching any *ProtocolError target.
func (e *ProtocolError) Is(target error) bool {
	_, ok := target.(*ProtocolError)
	return ok
}

// RemoteInvocationError is a fault explicitly reported by the remote
// service through a structured {message, ...} error body.
type RemoteInvocationError struct {
	Message    string
	StatusCode int
	Details    map[string]any // remaining body fields
}

func (e *RemoteInvocationError) Error() string { return e.Message }

// Is supports errors.Is by matching any *RemoteInvocationError target.
func (e *RemoteInvocationError) Is(target error) bool {
	_, ok := target.(*RemoteInvocationError)
	return ok
}

// StaleBindingError is returned by a binding that was deprecated when the
// remote API surface changed.
type StaleBindingError struct {
	Group    string
	ID       string
	Expected string // name@version the binding was built against
}

func (e *StaleBindingError) Error() string {
	return fmt.Sprintf("remote server isn't compatible with current client (expects %s)", e.Expected)
}

// Is supports errors.Is by matching any *StaleBindingError target.
func (e *StaleBindingError) Is(target error) bool {
	_, ok := target.(*StaleBindingError)
	return ok
}

// StatusError lets an operation choose the HTTP status reported when it
// fails behind an [HttpServer].
type StatusError struct {
	Code    int
	Message string
}

// NewStatusError returns an error reported to remote callers with the given status.
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

func (e *StatusError) Error() string { return e.Message }

// StatusCode returns the HTTP status for this error.
func (e *StatusError) StatusCode() int { return e.Code }

// callError decorates a failure with the operation that produced it.
type callError struct {
	id  string
	err error
}

func (e *callError) Error() string {
	return fmt.Sprintf("error while calling API %s: %v", e.id, e.err)
}

func (e *callError) Unwrap() error { return e.err }
