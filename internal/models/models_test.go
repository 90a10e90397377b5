package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(day, hour, min int) time.Time {
	return time.Date(2026, time.March, day, hour, min, 0, 0, time.UTC)
}

func TestReservation_Helpers(t *testing.T) {
	r := &Reservation{StartTime: at(10, 12, 0), EndTime: at(10, 14, 0)}

	t.Run("Duration", func(t *testing.T) {
		assert.Equal(t, 2*time.Hour, r.Duration())
	})

	t.Run("IsPast", func(t *testing.T) {
		assert.False(t, r.IsPast(at(10, 14, 0)))
		assert.True(t, r.IsPast(at(10, 14, 1)))
	})

	t.Run("Overlaps", func(t *testing.T) {
		assert.True(t, r.Overlaps(at(10, 13, 0), at(10, 15, 0)))
		assert.True(t, r.Overlaps(at(10, 11, 0), at(10, 12, 30)))
		assert.False(t, r.Overlaps(at(10, 14, 0), at(10, 15, 0)))
		assert.False(t, r.Overlaps(at(10, 10, 0), at(10, 12, 0)))
	})
}

func TestHistoryFilter_Match(t *testing.T) {
	r := &Reservation{ApartmentNumber: "1C", StartTime: at(10, 12, 0)}

	assert.True(t, HistoryFilter{}.Match(r))
	assert.True(t, HistoryFilter{Apartment: "1C", Month: time.March, Year: 2026}.Match(r))
	assert.False(t, HistoryFilter{Apartment: "2E"}.Match(r))
	assert.False(t, HistoryFilter{Month: time.April}.Match(r))
	assert.False(t, HistoryFilter{Year: 2025}.Match(r))
}

func TestTimeSlot_Selectable(t *testing.T) {
	assert.True(t, TimeSlot{Available: true}.Selectable())
	assert.False(t, TimeSlot{Available: true, IsPast: true}.Selectable())
	assert.False(t, TimeSlot{Available: false}.Selectable())
}
