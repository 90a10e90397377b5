package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "grillbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Reservations successfully stored.",
		},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Cancellation attempts by result.",
		},
		[]string{"result"},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Writes rejected because the slot was taken meanwhile.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and result.",
		},
		[]string{"channel", "result"},
	)
)

// Cancellation result labels.
const (
	CancelSuccess   = "success"
	CancelWrongCode = "wrong_code"
	CancelNotFound  = "not_found"
	CancelThrottled = "throttled"
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservationsCreated, cancellations, slotConflicts, notifications)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncReservationCreated() {
	reservationsCreated.Inc()
}

func IncCancellation(result string) {
	cancellations.WithLabelValues(result).Inc()
}

func IncSlotConflict() {
	slotConflicts.Inc()
}

// IncNotification records a delivery outcome for channel ("email", "telegram").
func IncNotification(channel string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	notifications.WithLabelValues(channel, result).Inc()
}
