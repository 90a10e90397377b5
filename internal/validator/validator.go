// Package validator checks a proposed reservation window against the booking rules.
package validator

import (
	"fmt"
	"time"

	"grillbook/internal/domain"
	"grillbook/internal/models"
	"grillbook/internal/timeutil"
)

const (
	MsgSameDay   = "reservation must start and end the same day."
	MsgEndBefore = "end time must be after start time."
	MsgPast      = "cannot book a past date/time."
)

// Result is the verdict for a single window.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// Err returns nil for a valid result and an ErrValidation wrapper otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, r.Message)
}

type Validator struct {
	maxDuration time.Duration
	loc         *time.Location
	clock       timeutil.Clock
}

func New(maxDuration time.Duration, loc *time.Location, clock timeutil.Clock) *Validator {
	if maxDuration <= 0 {
		maxDuration = models.DefaultMaxDurationHours * time.Hour
	}
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = timeutil.SystemClock{Location: loc}
	}
	return &Validator{maxDuration: maxDuration, loc: loc, clock: clock}
}

// MaxDurationMessage is the text reported for an over-long window.
func (v *Validator) MaxDurationMessage() string {
	return fmt.Sprintf("reservation cannot exceed %s.", humanDuration(v.maxDuration))
}

// Validate applies the rules in order and reports the first violation.
func (v *Validator) Validate(start, end time.Time) Result {
	if end.Sub(start) > v.maxDuration {
		return Result{Message: v.MaxDurationMessage()}
	}
	if !timeutil.SameDay(start, end, v.loc) {
		return Result{Message: MsgSameDay}
	}
	if !end.After(start) {
		return Result{Message: MsgEndBefore}
	}
	if start.Before(v.clock.Now()) {
		return Result{Message: MsgPast}
	}
	return Result{Valid: true}
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}
