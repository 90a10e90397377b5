package domain

import "errors"

var (
	// ErrValidation wraps every violated business rule; the wrapped message is user facing.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned when a reservation id does not exist.
	ErrNotFound = errors.New("reservation not found")
	// ErrSlotTaken is returned when the interval overlaps a persisted reservation.
	ErrSlotTaken = errors.New("slot no longer available - please retry")
	// ErrForbidden is returned when the caller neither owns the reservation nor holds its code.
	ErrForbidden = errors.New("not allowed to modify this reservation")
	// ErrTooManyAttempts is returned when code attempts exceed the configured limit.
	ErrTooManyAttempts = errors.New("too many attempts, try again later")
	// ErrStoreUnavailable marks a failure to reach the reservation store.
	ErrStoreUnavailable = errors.New("reservation store unavailable")
)

// IsConflict reports whether err is an overlap rejection.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotTaken)
}
