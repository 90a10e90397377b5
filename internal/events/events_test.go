package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"grillbook/internal/models"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe("test_event", func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	if err := bus.PublishJSON("test_event", map[string]string{"foo": "bar"}); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}
	if received.ID == "" {
		t.Errorf("expected event id to be assigned")
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	if err := bus.Publish(&Event{Type: "event"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusHandlerErrorsAreJoined(t *testing.T) {
	bus := NewEventBus()
	errA := errors.New("a failed")
	called := false

	bus.Subscribe("event", func(_ *Event) error { return errA })
	bus.Subscribe("event", func(_ *Event) error { called = true; return nil })

	err := bus.Publish(&Event{Type: "event"})
	if !errors.Is(err, errA) {
		t.Errorf("expected joined error to contain errA, got %v", err)
	}
	if !called {
		t.Errorf("a failing handler must not stop later handlers")
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	if err := bus.Publish(&Event{Type: "unknown"}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
	if err := bus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}

func TestReservationPayloadRoundTrip(t *testing.T) {
	start := time.Date(2030, 2, 3, 18, 0, 0, 0, time.UTC)
	r := &models.Reservation{
		ID:               "res-1",
		Name:             "Ana",
		ApartmentNumber:  "PB A",
		Title:            "Asado",
		StartTime:        start,
		EndTime:          start.Add(2 * time.Hour),
		CancellationCode: "9911",
	}

	event, err := NewJSONEvent(EventReservationCreated, NewReservationPayload(r))
	if err != nil {
		t.Fatalf("NewJSONEvent failed: %v", err)
	}
	if event.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(event.Payload, &raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if _, ok := raw["cancellation_code"]; ok {
		t.Errorf("cancellation code must not be published")
	}

	p, err := event.DecodeReservation()
	if err != nil {
		t.Fatalf("DecodeReservation failed: %v", err)
	}
	got := p.Reservation()
	if got.ID != r.ID || got.Title != r.Title || !got.StartTime.Equal(r.StartTime) {
		t.Errorf("unexpected reservation %+v", got)
	}
}

func TestDecodeReservation_Invalid(t *testing.T) {
	e := &Event{Type: EventReservationUpdated, Payload: []byte("{")}
	if _, err := e.DecodeReservation(); err == nil {
		t.Errorf("expected decode error")
	}
}
