package grants

import "errors"

// Sentinel errors for every distinct precondition rejection. Callers assert
// on the exact cause with errors.Is; nothing is silently swallowed.
var (
	ErrProgramNotFound  = errors.New("grants: program not found")
	ErrValueMismatch    = errors.New("grants: deposited value does not match price")
	ErrInvalidTimeRange = errors.New("grants: start time must precede end time")
	ErrInvalidBuilder   = errors.New("grants: builder address required")
	ErrUnauthorized     = errors.New("grants: caller not authorized")
	ErrWindowClosed     = errors.New("grants: approval window closed")
	ErrAlreadyApproved  = errors.New("grants: program already approved")
	ErrNotApproved      = errors.New("grants: program not approved")
	ErrAlreadyClaimed   = errors.New("grants: program already claimed")
	ErrTooEarly         = errors.New("grants: program window not yet open")
	ErrTooLate          = errors.New("grants: program window already closed")
	ErrTransferFailed   = errors.New("grants: value transfer failed")
)

// Category groups the sentinel errors into the four failure classes the
// engine distinguishes for callers.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryValidation
	CategoryAuthorization
	CategoryState
	CategoryTransfer
)

// Classify resolves the failure class for an engine error. Unknown errors
// (nil state, storage faults) map to CategoryUnknown.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrProgramNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrValueMismatch), errors.Is(err, ErrInvalidTimeRange), errors.Is(err, ErrInvalidBuilder):
		return CategoryValidation
	case errors.Is(err, ErrUnauthorized):
		return CategoryAuthorization
	case errors.Is(err, ErrWindowClosed), errors.Is(err, ErrAlreadyApproved),
		errors.Is(err, ErrNotApproved), errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrTooEarly), errors.Is(err, ErrTooLate):
		return CategoryState
	case errors.Is(err, ErrTransferFailed):
		return CategoryTransfer
	default:
		return CategoryUnknown
	}
}
