package availability

import (
	"fmt"
	"sort"
	"time"

	"grillbook/internal/models"
	"grillbook/internal/timeutil"
)

// CountPerDay buckets reservations by the local date of their start time.
func (e *Engine) CountPerDay(reservations []*models.Reservation) map[string]int {
	counts := make(map[string]int)
	for _, r := range reservations {
		counts[timeutil.DateKey(r.StartTime, e.cfg.Location)]++
	}
	return counts
}

// Classify maps a day's reservation count to its highlight tier.
func Classify(count int) models.Density {
	switch {
	case count <= 0:
		return models.DensityNone
	case count == 1:
		return models.DensityLow
	case count <= 3:
		return models.DensityMedium
	default:
		return models.DensityHigh
	}
}

// DayMarkers returns one marker per day holding at least one reservation, ascending.
// Days before today are flagged as past regardless of their count.
func (e *Engine) DayMarkers(reservations []*models.Reservation) []models.DayMarker {
	counts := e.CountPerDay(reservations)
	today := timeutil.DateKey(e.clock.Now(), e.cfg.Location)

	markers := make([]models.DayMarker, 0, len(counts))
	for key, count := range counts {
		markers = append(markers, models.DayMarker{
			Date:  key,
			Count: count,
			Level: Classify(count),
			Past:  key < today,
		})
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].Date < markers[j].Date })
	return markers
}

// SameDayCount counts reservations starting on day, excluding excludeID.
func (e *Engine) SameDayCount(day time.Time, reservations []*models.Reservation, excludeID string) int {
	n := 0
	for _, r := range reservations {
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if timeutil.SameDay(r.StartTime, day, e.cfg.Location) {
			n++
		}
	}
	return n
}

const (
	warnThreshold   = 2
	strongThreshold = 4
)

// SameDayWarning is the advisory shown when a day is already busy. It never blocks a booking.
func SameDayWarning(count int) string {
	switch {
	case count >= strongThreshold:
		return fmt.Sprintf("Attention! This day has %d reservations. Overlapping times are very likely.", count)
	case count >= warnThreshold:
		return fmt.Sprintf("This day has %d reservations. Times may overlap.", count)
	default:
		return ""
	}
}
