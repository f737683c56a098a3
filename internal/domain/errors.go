package domain

import "errors"

var (
	// Business errors. Terminal for the command that triggered them.
	ErrAlreadyExists       = errors.New("account already exists")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAccountClosed       = errors.New("account closed")
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrInvalidStateTransition is returned when a command or saga is asked
	// to move to a terminal state that conflicts with the one it already
	// reached. Repeating the same terminal transition is not an error.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	ErrValidation = errors.New("validation error")
)

// IsBusinessError reports whether err is an expected domain failure that
// should be recorded as a command/saga failure reason rather than retried.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAccountClosed) ||
		errors.Is(err, ErrConstraintViolation)
}
