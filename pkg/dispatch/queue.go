package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/kodok/internal/observability"
	"github.com/harun/kodok/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultCooldown = 1500 * time.Millisecond

type Config struct {
	// Cooldown is the pause after every successful send.
	Cooldown time.Duration
	// SendTimeout bounds a single Send call. Zero means no bound.
	SendTimeout time.Duration
	Clock       func() time.Time
	// OnOutcome, if set, is called by the worker after every attempt.
	OnOutcome func(item Item, outcome Outcome, err error)
}

// Queue is an unbounded FIFO drained by a single worker.
type Queue struct {
	sender Sender
	config Config
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	items    []queued
	inFlight bool
	notify   chan struct{}

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type queued struct {
	Item
	traceID string
}

func New(sender Sender, config Config) *Queue {
	observability.EnsureRegistered()

	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Queue{
		sender: sender,
		config: config,
		logger: log.With().Str("component", "dispatch").Logger(),
		sleep:  sleepContext,
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends a message and returns immediately.
func (q *Queue) Enqueue(destination, payload string) Item {
	return q.EnqueueWithContext(context.Background(), destination, payload)
}

// EnqueueWithContext is Enqueue that carries the trace id of ctx into the
// delivery logs.
func (q *Queue) EnqueueWithContext(ctx context.Context, destination, payload string) Item {
	item := Item{
		Destination: destination,
		Payload:     payload,
		EnqueuedAt:  q.config.Clock(),
	}
	depth := q.push(queued{Item: item, traceID: tracing.GetTraceID(ctx)})
	observability.RecordDispatchEnqueue(depth)

	q.logger.Debug().
		Str("destination", destination).
		Int("queue_depth", depth).
		Msg("Message enqueued")

	return item
}

func (q *Queue) push(item queued) int {
	q.mu.Lock()
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return depth
}

// Start launches the worker. It runs until ctx is done or Stop is called.
func (q *Queue) Start(ctx context.Context) error {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	if q.running {
		return fmt.Errorf("dispatch queue is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	q.running = true
	go q.run(ctx, q.done)

	q.logger.Info().
		Dur("cooldown", q.config.Cooldown).
		Msg("Dispatch worker started")

	return nil
}

// Stop halts the worker after its current step. Pending items are abandoned.
func (q *Queue) Stop() {
	q.runMu.Lock()
	if !q.running {
		q.runMu.Unlock()
		return
	}
	cancel, done := q.cancel, q.done
	q.running = false
	q.runMu.Unlock()

	cancel()
	<-done

	q.logger.Info().
		Int("abandoned", q.Len()).
		Msg("Dispatch worker stopped")
}

func (q *Queue) IsRunning() bool {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	return q.running
}

// Len returns the number of items waiting, excluding one being delivered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// WaitForIdle blocks until the queue is empty and nothing is in flight, or
// timeout elapses. It reports whether the queue became idle.
func (q *Queue) WaitForIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if q.idle() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		<-ticker.C
	}
}

func (q *Queue) idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0 && !q.inFlight
}

func (q *Queue) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		item, ok := q.next(ctx)
		if !ok {
			return
		}
		q.deliver(ctx, item)

		q.mu.Lock()
		q.inFlight = false
		q.mu.Unlock()
	}
}

// next blocks until an item is available or ctx is done.
func (q *Queue) next(ctx context.Context) (queued, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = queued{}
			q.items = q.items[1:]
			q.inFlight = true
			depth := len(q.items)
			q.mu.Unlock()
			observability.SetDispatchQueueDepth(depth)
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return queued{}, false
		case <-q.notify:
		}
	}
}

func (q *Queue) deliver(ctx context.Context, item queued) {
	logger := q.logger.With().
		Str("destination", item.Destination).
		Str("trace_id", item.traceID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Recovered from panic during delivery")
		}
	}()

	waited := q.config.Clock().Sub(item.EnqueuedAt)
	started := time.Now()
	err := q.send(ctx, item)
	sendDuration := time.Since(started)

	if err == nil {
		observability.RecordDispatchDelivery(string(OutcomeSent), sendDuration, waited)
		q.report(item, OutcomeSent, nil)
		logger.Debug().Dur("waited", waited).Msg("Message delivered")
		_ = q.sleep(ctx, q.config.Cooldown)
		return
	}

	if rl, ok := AsRateLimited(err); ok {
		observability.RecordDispatchDelivery(string(OutcomeRateLimited), sendDuration, waited)
		q.report(item, OutcomeRateLimited, err)
		delay := rl.RetryAfter
		if delay <= 0 {
			delay = q.config.Cooldown
		}
		logger.Warn().
			Dur("retry_after", delay).
			Msg("Delivery rate limited, requeueing")

		_ = q.sleep(ctx, delay)
		q.requeue(item)
		return
	}

	observability.RecordDispatchDelivery(string(OutcomeDropped), sendDuration, waited)
	q.report(item, OutcomeDropped, err)
	observability.RecordDeliveryAudit(ctx, item.Destination, string(OutcomeDropped), map[string]interface{}{
		"error":    err.Error(),
		"trace_id": item.traceID,
	})
	logger.Error().Err(err).Msg("Delivery failed, dropping message")
}

func (q *Queue) send(ctx context.Context, item queued) error {
	if item.traceID != "" {
		ctx = tracing.WithTraceID(ctx, item.traceID)
	}
	ctx, span := tracing.StartSpan(ctx, "kodok/dispatch", "dispatch.send",
		attribute.String("destination", item.Destination),
	)

	if q.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.config.SendTimeout)
		defer cancel()
	}

	err := q.sender.Send(ctx, item.Destination, item.Payload)
	tracing.EndSpan(span, err)
	return err
}

func (q *Queue) report(item queued, outcome Outcome, err error) {
	if q.config.OnOutcome != nil {
		q.config.OnOutcome(item.Item, outcome, err)
	}
}

// requeue appends a fresh copy of item at the tail.
func (q *Queue) requeue(item queued) {
	item.EnqueuedAt = q.config.Clock()
	depth := q.push(item)
	observability.RecordDispatchRequeue(depth)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
