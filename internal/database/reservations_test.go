package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"grillbook/internal/domain"
	"grillbook/internal/timeutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2030, time.June, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func TestListAll_OrderedByStart(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	list, err := db.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	late := sampleReservation(at(15, 0), time.Hour)
	early := sampleReservation(at(9, 0), time.Hour)
	require.NoError(t, db.Insert(ctx, late))
	require.NoError(t, db.Insert(ctx, early))

	list, err = db.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)
}

func TestInsert_RejectsOverlap(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, sampleReservation(at(12, 0), 2*time.Hour)))

	tests := []struct {
		name  string
		start time.Time
		dur   time.Duration
		taken bool
	}{
		{"inside", at(12, 30), 30 * time.Minute, true},
		{"covers", at(11, 0), 4 * time.Hour, true},
		{"overlaps start", at(11, 30), time.Hour, true},
		{"overlaps end", at(13, 30), time.Hour, true},
		{"ends at start", at(11, 0), time.Hour, false},
		{"starts at end", at(14, 0), time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleReservation(tt.start, tt.dur)
			err := db.Insert(ctx, r)
			if tt.taken {
				assert.True(t, errors.Is(err, domain.ErrSlotTaken), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, db.Delete(ctx, r.ID))
		})
	}
}

func TestInsert_BackToBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, sampleReservation(at(9, 0), time.Hour)))
	require.NoError(t, db.Insert(ctx, sampleReservation(at(10, 0), time.Hour)))
	require.NoError(t, db.Insert(ctx, sampleReservation(at(8, 0), time.Hour)))

	list, err := db.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := sampleReservation(at(10, 0), time.Hour)
	r.UserID = "user-1"
	require.NoError(t, db.Insert(ctx, r))
	other := sampleReservation(at(14, 0), time.Hour)
	require.NoError(t, db.Insert(ctx, other))

	t.Run("moves within its own window", func(t *testing.T) {
		edited := *r
		edited.StartTime = at(10, 30)
		edited.EndTime = at(12, 0)
		edited.Title = "Asado"
		edited.CancellationCode = "0000"
		require.NoError(t, db.Update(ctx, &edited))

		got, err := db.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "Asado", got.Title)
		assert.True(t, at(10, 30).Equal(got.StartTime))
		assert.Equal(t, r.CancellationCode, got.CancellationCode)
		assert.True(t, r.CreatedAt.Truncate(time.Millisecond).Equal(got.CreatedAt))
		assert.Equal(t, "user-1", got.UserID)
	})

	t.Run("rejects overlap with another reservation", func(t *testing.T) {
		edited := *r
		edited.StartTime = at(13, 30)
		edited.EndTime = at(14, 30)
		assert.ErrorIs(t, db.Update(ctx, &edited), domain.ErrSlotTaken)
	})

	t.Run("missing id", func(t *testing.T) {
		ghost := sampleReservation(at(18, 0), time.Hour)
		ghost.ID = "ghost"
		assert.ErrorIs(t, db.Update(ctx, ghost), domain.ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	keep := sampleReservation(at(9, 0), time.Hour)
	drop := sampleReservation(at(11, 0), time.Hour)
	require.NoError(t, db.Insert(ctx, keep))
	require.NoError(t, db.Insert(ctx, drop))

	require.NoError(t, db.Delete(ctx, drop.ID))
	assert.ErrorIs(t, db.Delete(ctx, drop.ID), domain.ErrNotFound)

	list, err := db.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)
}

func TestInsert_StampsCreatedAtFromClock(t *testing.T) {
	logger := zerolog.Nop()
	stamp := time.Date(2030, time.May, 20, 8, 15, 0, 0, time.UTC)
	db, err := NewDB(":memory:", &logger, WithLocation(time.UTC), WithClock(timeutil.NewFixedClock(stamp)))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	r := sampleReservation(at(12, 0), time.Hour)
	require.NoError(t, db.Insert(ctx, r))
	assert.True(t, stamp.Equal(r.CreatedAt))

	got, err := db.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, stamp.Equal(got.CreatedAt))
}
