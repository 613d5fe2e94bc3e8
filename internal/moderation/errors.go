package moderation

import "errors"

var (
	// ErrInvalidReason is returned before any store call when a rejection has no usable reason.
	ErrInvalidReason     = errors.New("a non-empty reason is required")
	ErrInvalidStatus     = errors.New("unknown report status")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsValidation reports whether err is caused by bad input rather than state.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidReason) || errors.Is(err, ErrInvalidStatus)
}

// IsConflict reports whether err means the target changed or was already decided.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed) || errors.Is(err, ErrInvalidTransition)
}
