package secretgate

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDuplicateUsername   = errors.New("username already taken")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredential   = errors.New("invalid credentials")
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrUnauthenticated     = errors.New("unauthenticated")

	ErrInvalidInput    = errors.New("invalid input")
	ErrUnknownProvider = errors.New("unknown identity provider")
	ErrAlreadyLinked   = errors.New("identity already linked to another account")
)

// Error codes reported to clients
const (
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidUsername = "invalid_username"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeUsernameTaken   = "username_taken"
	ErrCodeUserNotFound    = "user_not_found"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeUnauthenticated = "unauthenticated"
	ErrCodeUnknownProvider = "unknown_provider"
	ErrCodeAlreadyLinked   = "already_linked"
	ErrCodeUnavailable     = "unavailable"
	ErrCodeParse           = "parse_error"
)

// AuthError is an error carrying a client facing code and the form field it relates to
type AuthError struct {
	Code    string
	Message string
	Field   string
	Err     error
}

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status used when the error is rendered as JSON
func (e *AuthError) StatusCode() int {
	switch e.Code {
	case ErrCodeMissingField, ErrCodeInvalidUsername, ErrCodeWeakPassword, ErrCodeParse, ErrCodeUnknownProvider:
		return http.StatusBadRequest
	case ErrCodeUsernameTaken, ErrCodeAlreadyLinked:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusUnauthorized
}

// AuthErrorHandler handles an auth error. Returns true if it wrote a response.
type AuthErrorHandler func(err *AuthError, w http.ResponseWriter, r *http.Request) bool

// AuthErrorFrom converts any error returned by this package into an AuthError
func AuthErrorFrom(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	out := &AuthError{Err: err}
	switch {
	case errors.Is(err, ErrDuplicateUsername):
		out.Code, out.Message, out.Field = ErrCodeUsernameTaken, "Username is already taken", "username"
	case errors.Is(err, ErrUserNotFound):
		out.Code, out.Message, out.Field = ErrCodeUserNotFound, "No account with that username", "username"
	case errors.Is(err, ErrInvalidCredential):
		out.Code, out.Message, out.Field = ErrCodeInvalidCreds, "Invalid credentials", "password"
	case errors.Is(err, ErrUnauthenticated):
		out.Code, out.Message = ErrCodeUnauthenticated, "Login required"
	case errors.Is(err, ErrUnknownProvider):
		out.Code, out.Message = ErrCodeUnknownProvider, "Unknown identity provider"
	case errors.Is(err, ErrAlreadyLinked):
		out.Code, out.Message = ErrCodeAlreadyLinked, "That account is already linked"
	case errors.Is(err, ErrInvalidInput):
		out.Code, out.Message = ErrCodeMissingField, err.Error()
	default:
		out.Code, out.Message = ErrCodeUnavailable, "Service temporarily unavailable"
	}
	return out
}

// storeError normalizes an error coming back from a UserStore. Domain
// sentinels pass through, anything else is reported as a persistence failure.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrDuplicateUsername, ErrUserNotFound, ErrAlreadyLinked, ErrPersistenceConflict, ErrUnknownProvider} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrPersistenceConflict, err)
}
