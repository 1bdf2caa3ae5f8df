package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	"github.com/angelmondragon/pharmacy-backend/pkg/metrics"
)

const (
	defaultQueueSize      = 256
	defaultWorkers        = 2
	defaultDeliverTimeout = 5 * time.Second
)

// Event is one fire-and-forget fact addressed to a user.
type Event struct {
	ID         uuid.UUID              `json:"event_id"`
	UserID     uuid.UUID              `json:"user_id"`
	Kind       enums.NotificationKind `json:"kind"`
	Payload    map[string]any         `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Emitter accepts notifications without blocking or failing the caller.
type Emitter interface {
	Emit(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload map[string]any)
}

// Sink delivers a single event to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

type EmitterOptions struct {
	QueueSize      int
	Workers        int
	DeliverTimeout time.Duration
	Logger         *logger.Logger
	Metrics        *metrics.EngineMetrics
}

// AsyncEmitter queues events in memory and fans them out to sinks from a
// fixed worker pool. A full or closed queue drops the event with a warning.
type AsyncEmitter struct {
	queue          chan Event
	sinks          []Sink
	logg           *logger.Logger
	metrics        *metrics.EngineMetrics
	deliverTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	group  errgroup.Group
}

var _ Emitter = (*AsyncEmitter)(nil)

func NewAsyncEmitter(opts EmitterOptions, sinks ...Sink) *AsyncEmitter {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.DeliverTimeout <= 0 {
		opts.DeliverTimeout = defaultDeliverTimeout
	}

	e := &AsyncEmitter{
		queue:          make(chan Event, opts.QueueSize),
		sinks:          sinks,
		logg:           opts.Logger,
		metrics:        opts.Metrics,
		deliverTimeout: opts.DeliverTimeout,
	}
	for i := 0; i < opts.Workers; i++ {
		e.group.Go(e.work)
	}
	return e
}

func (e *AsyncEmitter) Emit(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload map[string]any) {
	event := Event{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       kind,
		Payload:    clonePayload(payload),
		OccurredAt: time.Now().UTC(),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(ctx, event, "closed")
		return
	}
	select {
	case e.queue <- event:
	default:
		e.drop(ctx, event, "queue_full")
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to end.
func (e *AsyncEmitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *AsyncEmitter) work() error {
	for event := range e.queue {
		e.deliver(event)
	}
	return nil
}

func (e *AsyncEmitter) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), e.deliverTimeout)
	defer cancel()

	var err error
	for _, sink := range e.sinks {
		if sinkErr := sink.Deliver(ctx, event); sinkErr != nil {
			err = multierr.Append(err, &sinkError{sink: sink.Name(), err: sinkErr})
		}
	}
	if err == nil {
		return
	}
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"event_id": event.ID.String(),
		"kind":     event.Kind.String(),
		"user_id":  event.UserID.String(),
		"failures": len(multierr.Errors(err)),
	})
	e.logg.Error(logCtx, "notifications.deliver_failed", err)
}

func (e *AsyncEmitter) drop(ctx context.Context, event Event, reason string) {
	e.metrics.IncNotificationDropped(event.Kind.String())
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"kind":    event.Kind.String(),
		"user_id": event.UserID.String(),
		"reason":  reason,
	})
	e.logg.Warn(logCtx, "notifications.dropped")
}

type sinkError struct {
	sink string
	err  error
}

func (s *sinkError) Error() string { return s.sink + ": " + s.err.Error() }
func (s *sinkError) Unwrap() error { return s.err }

// ErrNoUser is returned by sinks for events without a recipient.
var ErrNoUser = errors.New("notification has no recipient")

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
