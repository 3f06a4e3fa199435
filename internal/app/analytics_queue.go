package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"quest-session-service/internal/domain"
)

// QueueStore durably persists the pending queue. The queue saves on every
// mutation and on Close so pending events survive a restart.
type QueueStore interface {
	Load(ctx context.Context) ([]domain.AnalyticsEvent, error)
	Save(ctx context.Context, items []domain.AnalyticsEvent) error
}

// DeliverySink sends one event to the remote analytics store.
type DeliverySink interface {
	Deliver(ctx context.Context, event domain.AnalyticsEvent) error
}

// DefaultMaxRetries caps delivery attempts per event.
const DefaultMaxRetries = 3

// AnalyticsQueue delivers telemetry at least once, strictly FIFO, one event in
// flight at a time. Failed deliveries move to the back of the queue with linear
// backoff; events that exhaust their retries are dropped with a single
// user-facing notification.
type AnalyticsQueue struct {
	store          QueueStore
	sink           DeliverySink
	notifier       Notifier
	retryDelay     time.Duration
	deliverTimeout time.Duration

	mu         sync.Mutex
	items      []domain.AnalyticsEvent
	processing bool
	closed     bool
	stop       chan struct{}
	done       chan struct{}
}

// NewAnalyticsQueue hydrates pending events from the store and resumes
// delivery immediately if any survived a previous run.
func NewAnalyticsQueue(store QueueStore, sink DeliverySink, notifier Notifier, retryDelay, deliverTimeout time.Duration) *AnalyticsQueue {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	q := &AnalyticsQueue{
		store:          store,
		sink:           sink,
		notifier:       notifier,
		retryDelay:     retryDelay,
		deliverTimeout: deliverTimeout,
		stop:           make(chan struct{}),
	}

	items, err := store.Load(context.Background())
	if err != nil {
		log.Printf("analytics queue: hydrate failed: %v", err)
	}
	q.items = items

	q.mu.Lock()
	q.startLocked()
	q.mu.Unlock()
	return q
}

// Enqueue validates and appends an event, then kicks the processor if idle.
// A structurally invalid payload is a programming error and is rejected, never
// retried.
func (q *AnalyticsQueue) Enqueue(eventType string, payload map[string]any, maxRetries int) error {
	if err := validateEventPayload(eventType, payload); err != nil {
		return err
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	event := domain.AnalyticsEvent{
		ID:         uuid.NewString(),
		EventType:  eventType,
		Payload:    payload,
		Timestamp:  time.Now(),
		MaxRetries: maxRetries,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return &domain.ValidationError{Subject: "analytics event", Reason: "queue is closed"}
	}
	q.items = append(q.items, event)
	q.persistLocked()
	q.startLocked()
	return nil
}

// Pending returns a snapshot of undelivered events.
func (q *AnalyticsQueue) Pending() []domain.AnalyticsEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.AnalyticsEvent, len(q.items))
	copy(out, q.items)
	return out
}

// Close stops the processor and flushes the pending queue to the store.
func (q *AnalyticsQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stop)
	done := q.done
	q.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Save(ctx, q.items)
}

// startLocked launches the single processor goroutine. A second enqueue while
// one is running only appends.
func (q *AnalyticsQueue) startLocked() {
	if q.processing || q.closed || len(q.items) == 0 {
		return
	}
	q.processing = true
	q.done = make(chan struct{})
	go q.process(q.done)
}

func (q *AnalyticsQueue) process(done chan struct{}) {
	defer close(done)
	for {
		q.mu.Lock()
		if q.closed || len(q.items) == 0 {
			q.processing = false
			q.mu.Unlock()
			return
		}
		event := q.items[0]
		q.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), q.deliverTimeout)
		err := q.sink.Deliver(ctx, event)
		cancel()

		q.mu.Lock()
		if err == nil {
			q.items = q.items[1:]
			q.persistLocked()
			q.mu.Unlock()
			continue
		}

		event.RetryCount++
		q.items = q.items[1:]
		if event.RetryCount >= event.MaxRetries {
			log.Printf("analytics queue: dropping %s event %s after %d attempts: %v",
				event.EventType, event.ID, event.RetryCount, err)
			q.persistLocked()
			q.mu.Unlock()
			q.notifier.Notify("error", "Sync Issue",
				"Some progress data could not be saved. It will not affect your quest.")
			continue
		}
		q.items = append(q.items, event)
		q.persistLocked()
		q.mu.Unlock()

		select {
		case <-time.After(q.retryDelay * time.Duration(event.RetryCount)):
		case <-q.stop:
			return
		}
	}
}

func (q *AnalyticsQueue) persistLocked() {
	if err := q.store.Save(context.Background(), q.items); err != nil {
		log.Printf("analytics queue: persist failed: %v", err)
	}
}

// validateEventPayload checks the structural shape of quest/achievement
// details before the event enters the queue.
func validateEventPayload(eventType string, payload map[string]any) error {
	if eventType == "" {
		return &domain.ValidationError{Subject: "analytics event", Reason: "missing event type"}
	}
	if len(payload) == 0 {
		return &domain.ValidationError{Subject: "analytics event", Reason: "empty payload"}
	}
	if details, ok := payload["achievement"]; ok {
		m, ok := details.(map[string]any)
		if !ok {
			return &domain.ValidationError{Subject: "achievement details", Reason: "not an object"}
		}
		for _, key := range []string{"maxStreak", "finalScore"} {
			if _, ok := m[key]; !ok {
				return &domain.ValidationError{Subject: "achievement details", Reason: "missing " + key}
			}
		}
	}
	return nil
}
