package domain

import (
	"context"
	"time"

	"grillbook/internal/models"
)

// ReservationStore is the persistence gateway for reservations.
type ReservationStore interface {
	ListAll(ctx context.Context) ([]*models.Reservation, error)
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	// Insert assigns ID and CreatedAt when absent and rejects overlaps with ErrSlotTaken.
	Insert(ctx context.Context, r *models.Reservation) error
	// Update rewrites the mutable fields; ID, CreatedAt and CancellationCode are kept.
	Update(ctx context.Context, r *models.Reservation) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Notifier delivers the confirmation email with the cancellation code.
type Notifier interface {
	SendReservationEmail(ctx context.Context, address string, r *models.Reservation, code string) (models.NotifyResult, error)
}

// Announcer pushes a short message about a reservation to a shared channel.
type Announcer interface {
	Announce(ctx context.Context, eventType string, r *models.Reservation) error
}

// EventPublisher emits domain events after successful persistence.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// CodeGenerator produces cancellation codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// AttemptLimiter throttles cancellation attempts per reservation.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}

// ListCache keeps a snapshot of the reservation list between writes.
type ListCache interface {
	GetList(ctx context.Context) ([]*models.Reservation, bool, error)
	SetList(ctx context.Context, list []*models.Reservation) error
	Invalidate(ctx context.Context) error
}
