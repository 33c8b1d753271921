package errors

import (
	"errors"
	"fmt"
)

// maxBodySnippet bounds how much of a remote body is echoed back in error strings.
const maxBodySnippet = 256

var (
	ErrNoTokenSupplied     = errors.New("no OAuth token supplied")
	ErrMalformedAuthHeader = errors.New("malformed auth header")
)

// ConfigurationError is returned when a client is constructed with bad or missing configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration missing %s", e.Field)
	}
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

// NewMissingConfig creates a ConfigurationError for an absent required option.
func NewMissingConfig(field string) *ConfigurationError {
	return &ConfigurationError{Field: field}
}

// RequestValidationError is raised for bad caller arguments before any I/O happens.
type RequestValidationError struct {
	Field  string
	Reason string
}

func (e *RequestValidationError) Error() string {
	return e.Reason
}

// NewRequestValidation creates a RequestValidationError.
func NewRequestValidation(field, reason string) *RequestValidationError {
	return &RequestValidationError{Field: field, Reason: reason}
}

// TransportError wraps a failure where no usable HTTP response was received.
type TransportError struct {
	URL        string
	Err        error
	NoResponse bool
	Timeout    bool
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("request to %s timed out: %v", e.URL, e.Err)
	case e.NoResponse:
		return fmt.Sprintf("no response received from %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is the generic failure for an unexpected remote status code.
type RemoteError struct {
	StatusCode int
	URL        string
	Message    string
	Body       string
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unexpected status code"
	}
	return fmt.Sprintf("%s: status %d from %s", msg, e.StatusCode, e.URL)
}

// NewRemoteError creates a RemoteError, keeping a bounded snippet of the body.
func NewRemoteError(status int, url, message string, body []byte) *RemoteError {
	return &RemoteError{StatusCode: status, URL: url, Message: message, Body: Snippet(body)}
}

// NotFoundError is returned for a remote 404.
type NotFoundError struct {
	URL     string
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// UnauthorisedError is returned for a remote 401 or 403.
type UnauthorisedError struct {
	StatusCode int
	URL        string
	Code       string
	Message    string
}

func (e *UnauthorisedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unauthorised (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("unauthorised (%d) calling %s", e.StatusCode, e.URL)
}

// BadRequestError is returned when the remote side rejects a payload with a 400.
type BadRequestError struct {
	URL     string
	Code    string
	Message string
}

func (e *BadRequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bad request (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("bad request: %s", e.Message)
}

// MalformedResponseError is returned when a JSON body was expected but was empty or unparseable.
type MalformedResponseError struct {
	URL     string
	Body    string
	Message string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("malformed response from %s: %s", e.URL, Snippet([]byte(e.Body)))
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Snippet truncates a body for inclusion in error messages.
func Snippet(body []byte) string {
	if len(body) <= maxBodySnippet {
		return string(body)
	}
	return string(body[:maxBodySnippet]) + "..."
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsUnauthorised reports whether err is or wraps an UnauthorisedError.
func IsUnauthorised(err error) bool {
	var target *UnauthorisedError
	return errors.As(err, &target)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsRequestValidation reports whether err is or wraps a RequestValidationError.
func IsRequestValidation(err error) bool {
	var target *RequestValidationError
	return errors.As(err, &target)
}

// StatusCode extracts the remote status code carried by err, or 0.
func StatusCode(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.StatusCode
	}
	var unauth *UnauthorisedError
	if errors.As(err, &unauth) {
		return unauth.StatusCode
	}
	if IsNotFound(err) {
		return 404
	}
	var bad *BadRequestError
	if errors.As(err, &bad) {
		return 400
	}
	return 0
}
