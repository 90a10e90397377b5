// Package availability computes bookable slots and calendar density for the grill.
package availability

import (
	"fmt"
	"time"

	"grillbook/internal/models"
	"grillbook/internal/timeutil"
)

// Config holds the operating window of the resource.
type Config struct {
	Open        time.Duration // offset from midnight of the first start slot
	Close       time.Duration // offset from midnight bounding start slots, exclusive
	Granularity time.Duration
	MaxDuration time.Duration
	Location    *time.Location
}

// DefaultConfig is the 08:00-22:00, 30 minute, 6 hour window.
func DefaultConfig() Config {
	return Config{
		Open:        8 * time.Hour,
		Close:       22 * time.Hour,
		Granularity: models.DefaultSlotMinutes * time.Minute,
		MaxDuration: models.DefaultMaxDurationHours * time.Hour,
		Location:    time.Local,
	}
}

// Validate checks that the window produces at least one slot.
func (c Config) Validate() error {
	if c.Granularity <= 0 {
		return fmt.Errorf("slot granularity must be positive")
	}
	if c.MaxDuration < c.Granularity {
		return fmt.Errorf("max duration %s is shorter than granularity %s", c.MaxDuration, c.Granularity)
	}
	if c.Open < 0 || c.Close > 24*time.Hour || c.Close <= c.Open {
		return fmt.Errorf("invalid operating window %s-%s", c.Open, c.Close)
	}
	return nil
}

// Engine derives slot availability from a snapshot of reservations.
// It keeps no state between calls.
type Engine struct {
	cfg   Config
	clock timeutil.Clock
}

func NewEngine(cfg Config, clock timeutil.Clock) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if clock == nil {
		clock = timeutil.SystemClock{Location: cfg.Location}
	}
	return &Engine{cfg: cfg, clock: clock}
}

// Config returns the operating window the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// StartSlots lists candidate start instants of day. A slot t is unavailable when a
// reservation starting on the same day satisfies start <= t < end.
func (e *Engine) StartSlots(day time.Time, reservations []*models.Reservation) []models.TimeSlot {
	loc := e.cfg.Location
	sameDay := make([]*models.Reservation, 0, len(reservations))
	for _, r := range reservations {
		if timeutil.SameDay(r.StartTime, day, loc) {
			sameDay = append(sameDay, r)
		}
	}

	now := e.clock.Now()
	first := timeutil.AtClock(day, e.cfg.Open, loc)
	last := timeutil.AtClock(day, e.cfg.Close, loc)

	slots := make([]models.TimeSlot, 0, int(last.Sub(first)/e.cfg.Granularity)+1)
	for t := first; t.Before(last); t = t.Add(e.cfg.Granularity) {
		available := true
		for _, r := range sameDay {
			if !t.Before(r.StartTime) && t.Before(r.EndTime) {
				available = false
				break
			}
		}
		slots = append(slots, models.TimeSlot{
			Time:      t,
			Available: available,
			IsPast:    t.Before(now),
		})
	}
	return slots
}

// EndSlots lists candidate end instants for a reservation starting at start on day.
// Candidates run from start+granularity to min(start+max duration, end of day) inclusive.
// An end e is unavailable when another reservation satisfies start < e <= end; the
// reservation identified by excludeID (the one being edited) is ignored.
func (e *Engine) EndSlots(day, start time.Time, reservations []*models.Reservation, excludeID string) []models.TimeSlot {
	limit := start.Add(e.cfg.MaxDuration)
	if endOfDay := timeutil.EndOfDay(day, e.cfg.Location); endOfDay.Before(limit) {
		limit = endOfDay
	}

	now := e.clock.Now()
	var slots []models.TimeSlot
	for t := start.Add(e.cfg.Granularity); !t.After(limit); t = t.Add(e.cfg.Granularity) {
		available := true
		for _, r := range reservations {
			if excludeID != "" && r.ID == excludeID {
				continue
			}
			if t.After(r.StartTime) && !t.After(r.EndTime) {
				available = false
				break
			}
		}
		slots = append(slots, models.TimeSlot{
			Time:      t,
			Available: available,
			IsPast:    t.Before(now),
		})
	}
	return slots
}

// IsFree reports whether [start, end) overlaps none of the reservations,
// ignoring excludeID.
func IsFree(start, end time.Time, reservations []*models.Reservation, excludeID string) bool {
	for _, r := range reservations {
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if r.Overlaps(start, end) {
			return false
		}
	}
	return true
}
