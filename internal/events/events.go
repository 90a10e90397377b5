package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"grillbook/internal/models"

	"github.com/google/uuid"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationUpdated   = "reservation_updated"
	EventReservationCancelled = "reservation_cancelled"
)

// ReservationPayload is the reservation snapshot carried by events. It never
// includes the cancellation code.
type ReservationPayload struct {
	ReservationID   string    `json:"reservation_id"`
	Name            string    `json:"name"`
	ApartmentNumber string    `json:"apartment_number"`
	Title           string    `json:"title"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	// Reason is "code" or "owner" for cancellations.
	Reason string `json:"reason,omitempty"`
}

func NewReservationPayload(r *models.Reservation) ReservationPayload {
	return ReservationPayload{
		ReservationID:   r.ID,
		Name:            r.Name,
		ApartmentNumber: r.ApartmentNumber,
		Title:           r.Title,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
	}
}

// Reservation rebuilds the reservation fields present in the payload.
func (p ReservationPayload) Reservation() *models.Reservation {
	return &models.Reservation{
		ID:              p.ReservationID,
		Name:            p.Name,
		ApartmentNumber: p.ApartmentNumber,
		Title:           p.Title,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// DecodeReservation unmarshals a ReservationPayload from the event.
func (e *Event) DecodeReservation() (ReservationPayload, error) {
	var p ReservationPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return p, nil
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs subscribers synchronously and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
