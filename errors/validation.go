package errors

import "fmt"

// ValidationResult is the outcome of validating a presented token.
type ValidationResult int

const (
	Valid ValidationResult = iota
	InvalidToken
	Expired
	InsufficientScope
	EmptyResponse
	RemoteUnavailable
)

func (r ValidationResult) String() string {
	switch r {
	case Valid:
		return "valid"
	case InvalidToken:
		return "invalid_token"
	case Expired:
		return "expired"
	case InsufficientScope:
		return "insufficient_scope"
	case EmptyResponse:
		return "empty_response"
	case RemoteUnavailable:
		return "remote_unavailable"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// TokenValidationError is the error form of a non-valid ValidationResult.
type TokenValidationError struct {
	Result ValidationResult
	Reason string
	Err    error
}

func (e *TokenValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("token validation failed: %s", e.Result)
	}
	return fmt.Sprintf("token validation failed: %s: %s", e.Result, e.Reason)
}

func (e *TokenValidationError) Unwrap() error { return e.Err }

// Is matches any TokenValidationError carrying the same Result, so the
// sentinels below work with errors.Is.
func (e *TokenValidationError) Is(target error) bool {
	t, ok := target.(*TokenValidationError)
	if !ok {
		return false
	}
	return t.Result == e.Result
}

var (
	ErrInvalidToken      = &TokenValidationError{Result: InvalidToken}
	ErrTokenExpired      = &TokenValidationError{Result: Expired}
	ErrInsufficientScope = &TokenValidationError{Result: InsufficientScope}
	ErrEmptyResponse     = &TokenValidationError{Result: EmptyResponse}
	ErrRemoteUnavailable = &TokenValidationError{Result: RemoteUnavailable}
)

// NewTokenValidation creates a TokenValidationError for result.
func NewTokenValidation(result ValidationResult, reason string, err error) *TokenValidationError {
	return &TokenValidationError{Result: result, Reason: reason, Err: err}
}
