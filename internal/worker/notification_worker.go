package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"grillbook/internal/domain"
	"grillbook/internal/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NotificationTask is one announcement to deliver.
type NotificationTask struct {
	ID          string                    `json:"id"`
	EventType   string                    `json:"event_type"`
	Reservation events.ReservationPayload `json:"reservation"`
	Attempt     int                       `json:"attempt"`
	LastError   string                    `json:"last_error,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// NotificationWorker delivers reservation events to an Announcer with retries.
// Tasks go through Redis when available, otherwise through an in-memory queue.
type NotificationWorker struct {
	announcer     domain.Announcer
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan NotificationTask
	redisQueueKey string
	deadLetterKey string
	logger        *zerolog.Logger
	onResult      func(success bool)
}

func NewNotificationWorker(announcer domain.Announcer, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *NotificationWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &NotificationWorker{
		announcer:     announcer,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan NotificationTask, 128),
		redisQueueKey: "notifications:queue",
		deadLetterKey: "notifications:deadletter",
		logger:        logger,
	}
}

// OnResult registers a callback invoked after each final delivery outcome.
func (w *NotificationWorker) OnResult(fn func(success bool)) {
	w.onResult = fn
}

// Subscribe wires the worker to all reservation events on bus. Handlers only
// enqueue, so publishing never waits for delivery.
func (w *NotificationWorker) Subscribe(bus *events.EventBus) {
	for _, eventType := range []string{
		events.EventReservationCreated,
		events.EventReservationUpdated,
		events.EventReservationCancelled,
	} {
		bus.Subscribe(eventType, w.handleEvent)
	}
}

func (w *NotificationWorker) handleEvent(event *events.Event) error {
	payload, err := event.DecodeReservation()
	if err != nil {
		w.logger.Warn().Err(err).Str("event", event.Type).Msg("Skipping undecodable event")
		return nil
	}
	task := NotificationTask{
		ID:          event.ID,
		EventType:   event.Type,
		Reservation: payload,
		CreatedAt:   event.CreatedAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Enqueue(ctx, task); err != nil {
		w.logger.Warn().Err(err).Str("event", event.Type).Msg("Failed to enqueue notification")
	}
	return nil
}

// Enqueue schedules task via redis or the in-memory queue.
func (w *NotificationWorker) Enqueue(ctx context.Context, task NotificationTask) error {
	if task.EventType == "" {
		return errors.New("event type is required")
	}
	if task.Reservation.ReservationID == "" {
		return errors.New("reservation id is required")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	if w.redis != nil {
		if err := w.push(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Msg("Redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return fmt.Errorf("notification queue full, task %s dropped", task.ID)
	}
}

// Start runs the delivery loop until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		// Local retries drain before Redis is polled.
		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if w.redis == nil {
			select {
			case <-ctx.Done():
				return
			case t := <-w.queue:
				w.processTask(ctx, &t)
			}
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
		}
	}
}

func (w *NotificationWorker) tryLocalQueue() (NotificationTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return NotificationTask{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (NotificationTask, bool) {
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, redis.Nil) {
			w.logger.Error().Err(err).Msg("Redis BRPOP failed")
			sleep(ctx, time.Second)
		}
		return NotificationTask{}, false
	}
	if len(res) != 2 {
		return NotificationTask{}, false
	}
	var task NotificationTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode queued notification")
		return NotificationTask{}, false
	}
	return task, true
}

func (w *NotificationWorker) processTask(ctx context.Context, task *NotificationTask) {
	err := w.announcer.Announce(ctx, task.EventType, task.Reservation.Reservation())
	if err == nil {
		w.logger.Debug().Str("task", task.ID).Str("event", task.EventType).Msg("Notification delivered")
		w.report(true)
		return
	}
	w.retryOrFail(ctx, task, err)
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *NotificationTask, cause error) {
	task.Attempt++
	task.LastError = cause.Error()

	if w.retryPolicy.Exhausted(task.Attempt) {
		w.logger.Error().Err(cause).Str("task", task.ID).Int("attempts", task.Attempt).Msg("Notification failed permanently")
		w.pushDeadLetter(ctx, task)
		w.report(false)
		return
	}

	delay := w.retryPolicy.NextDelay(task.Attempt)
	w.logger.Warn().Err(cause).Str("task", task.ID).Dur("retry_in", delay).Msg("Notification failed, scheduling retry")

	retry := *task
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		select {
		case w.queue <- retry:
		default:
			w.logger.Warn().Str("task", retry.ID).Msg("Queue full, retry dropped")
		}
	})
}

func (w *NotificationWorker) push(ctx context.Context, key string, task NotificationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, task *NotificationTask) {
	if w.redis == nil {
		return
	}
	if err := w.push(ctx, w.deadLetterKey, *task); err != nil {
		w.logger.Error().Err(err).Str("task", task.ID).Msg("Dead letter push failed")
	}
}

func (w *NotificationWorker) report(success bool) {
	if w.onResult != nil {
		w.onResult(success)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
