package engine

import "fmt"

// Code is a machine-readable rejection reason.
type Code string

const (
	CodeInvalidInput      Code = "invalid_input"
	CodeInvalidCredential Code = "invalid_credential"
	CodeGameNotFound      Code = "game_not_found"
	CodeNotInProgress     Code = "not_in_progress"
	CodeNotYourTurn       Code = "not_your_turn"
	CodeAlreadyRolled     Code = "already_rolled"
	CodeNoPendingRoll     Code = "no_pending_roll"
	CodePendingRoll       Code = "pending_roll"
	CodeInvalidOption     Code = "invalid_option"
	CodeNoValidColumns    Code = "no_valid_columns"
	CodeNoGameAvailable   Code = "no_game_available"
	CodeStorage           Code = "storage_failure"
)

// Error is the domain error type returned by engine operations.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInput      = newError(CodeInvalidInput, "invalid input")
	ErrInvalidCredential = newError(CodeInvalidCredential, "Invalid player token.")
	ErrGameNotFound      = newError(CodeGameNotFound, "Invalid game ID.")
	ErrNotInProgress     = newError(CodeNotInProgress, "Game is not currently in progress.")
	ErrNotYourTurn       = newError(CodeNotYourTurn, "It is not your turn.")
	ErrAlreadyRolled     = newError(CodeAlreadyRolled, "You have already rolled this turn. Please advance a marker before rolling again.")
	ErrNoPendingRoll     = newError(CodeNoPendingRoll, "No dice roll found. You must roll before advancing.")
	ErrPendingRoll       = newError(CodePendingRoll, "You have a pending roll. Choose a pair to advance before stopping.")
	ErrInvalidOption     = newError(CodeInvalidOption, "Invalid pair option. Please choose a valid option.")
	ErrNoValidColumns    = newError(CodeNoValidColumns, "No valid columns were advanced. Please select a valid option.")
	ErrNoGameAvailable   = newError(CodeNoGameAvailable, "No game available to join.")
	ErrStorage           = newError(CodeStorage, "An error occurred while saving the game.")
)

// CodeOf returns the code carried by err, or CodeStorage for foreign errors.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return CodeStorage
}
