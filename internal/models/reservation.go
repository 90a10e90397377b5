package models

import "time"

// Reservation is a single booking of the shared grill.
type Reservation struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ApartmentNumber  string    `json:"apartment_number"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	CreatedAt        time.Time `json:"created_at"`
	CancellationCode string    `json:"-"`
	UserID           string    `json:"user_id,omitempty"`
}

// Duration returns the length of the booked window.
func (r *Reservation) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// IsPast reports whether the reservation already ended at now.
func (r *Reservation) IsPast(now time.Time) bool {
	return r.EndTime.Before(now)
}

// Overlaps reports whether [r.Start, r.End) intersects [start, end).
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && start.Before(r.EndTime)
}

// InLocation returns a copy with its timestamps expressed in loc.
func (r *Reservation) InLocation(loc *time.Location) *Reservation {
	c := *r
	if loc != nil {
		c.StartTime = r.StartTime.In(loc)
		c.EndTime = r.EndTime.In(loc)
		c.CreatedAt = r.CreatedAt.In(loc)
	}
	return &c
}

// ReservationInput carries the mutable fields of a reservation supplied by a resident.
type ReservationInput struct {
	Name            string    `json:"name"`
	Email           string    `json:"email,omitempty"`
	ApartmentNumber string    `json:"apartment_number"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	UserID          string    `json:"user_id,omitempty"`
}

// HistoryFilter narrows the history view. Zero values mean "any".
type HistoryFilter struct {
	Apartment string
	Month     time.Month
	Year      int
}

// Match reports whether the reservation passes the filter, evaluated on its start time.
func (f HistoryFilter) Match(r *Reservation) bool {
	if f.Apartment != "" && r.ApartmentNumber != f.Apartment {
		return false
	}
	if f.Month != 0 && r.StartTime.Month() != f.Month {
		return false
	}
	if f.Year != 0 && r.StartTime.Year() != f.Year {
		return false
	}
	return true
}
