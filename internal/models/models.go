package models

import "time"

// TimeSlot is a candidate start or end instant within a day.
type TimeSlot struct {
	Time      time.Time `json:"time"`
	Available bool      `json:"available"`
	IsPast    bool      `json:"is_past"`
}

// Selectable reports whether a resident may pick the slot.
func (s TimeSlot) Selectable() bool {
	return s.Available && !s.IsPast
}

// Density is the calendar highlight tier for a day.
type Density string

const (
	DensityNone   Density = ""
	DensityLow    Density = "low"
	DensityMedium Density = "medium"
	DensityHigh   Density = "high"
)

// DayMarker describes the calendar marker of a single day.
type DayMarker struct {
	Date  string  `json:"date"`
	Count int     `json:"count"`
	Level Density `json:"level"`
	Past  bool    `json:"past"`
}

// History splits reservations into past and upcoming ones.
type History struct {
	All      []*Reservation `json:"all"`
	Past     []*Reservation `json:"past"`
	Upcoming []*Reservation `json:"upcoming"`
}

// ConnectionStatus is the store health snapshot.
type ConnectionStatus struct {
	Connected bool      `json:"connected"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NotifyResult is the outcome of a best-effort notification.
type NotifyResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}
