package directory

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown user id and a wrong
	// password so callers cannot tell which one happened.
	ErrInvalidCredentials = errors.New("invalid user id or password")

	ErrUserIDConflict = errors.New("user id already taken")

	ErrInternal = errors.New("internal error")
)

// ValidationError reports bad client input. Message is safe to show.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }
