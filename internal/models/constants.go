package models

import "time"

// DefaultApartments are the units of the building.
var DefaultApartments = []string{"PB A", "PB B", "1C", "1D", "2E", "2F", "3G"}

const (
	// DefaultOpenTime is the first bookable start slot.
	DefaultOpenTime = "08:00"

	// DefaultCloseTime bounds the start slots (exclusive).
	DefaultCloseTime = "22:00"

	// DefaultSlotMinutes is the slot granularity.
	DefaultSlotMinutes = 30

	// DefaultMaxDurationHours is the longest allowed reservation.
	DefaultMaxDurationHours = 6

	// DefaultCodeLength is the number of digits in a cancellation code.
	DefaultCodeLength = 4

	// DefaultUpcomingDays is the window used by the upcoming reservations view.
	DefaultUpcomingDays = 10

	// ListCacheTTL is how long the cached reservation list lives in Redis.
	ListCacheTTL = 5 * time.Minute

	// DateLayout is the key used to bucket reservations per day.
	DateLayout = "2006-01-02"

	// ClockLayout is the HH:MM layout of schedule configuration.
	ClockLayout = "15:04"
)
